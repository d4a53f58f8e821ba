package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-vloer/internal/common"
	"github.com/noah-isme/backend-vloer/internal/tier"
)

// ErrStoreUnavailable indicates a store dependency is not configured.
var ErrStoreUnavailable = errors.New("repo: store unavailable")

// foreignKeyViolation converts FK failures into a client-facing conflict.
func foreignKeyViolation(err error, message string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return common.NewAppError("CONFLICT", message, 409, err)
	}
	return err
}

// PriceListStore persists price lists, tiers, and variant links.
type PriceListStore struct {
	Pool *pgxpool.Pool
}

const priceListColumns = `id, name, type, status, starts_at, ends_at,
	customer_group_ids::text[], customer_ids::text[], priority, currency_code`

func scanPriceList(row pgx.Row) (tier.PriceList, error) {
	var (
		list     tier.PriceList
		startsAt *time.Time
		endsAt   *time.Time
		groupIDs []string
		custIDs  []string
	)
	err := row.Scan(&list.ID, &list.Name, &list.Type, &list.Status, &startsAt, &endsAt,
		&groupIDs, &custIDs, &list.Priority, &list.CurrencyCode)
	if err != nil {
		return tier.PriceList{}, err
	}
	list.StartsAt = startsAt
	list.EndsAt = endsAt
	if list.CustomerGroupIDs, err = parseUUIDs(groupIDs); err != nil {
		return tier.PriceList{}, err
	}
	if list.CustomerIDs, err = parseUUIDs(custIDs); err != nil {
		return tier.PriceList{}, err
	}
	return list, nil
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}

// ListPriceListsByVariant loads every list linked to the variant, tiers
// included. Filtering and ordering happen in the resolver, not here.
func (s *PriceListStore) ListPriceListsByVariant(ctx context.Context, variantID uuid.UUID) ([]tier.PriceList, error) {
	if s == nil || s.Pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+priceListColumns+`
FROM price_lists pl
JOIN variant_price_list_links l ON l.price_list_id = pl.id
WHERE l.variant_id = $1`, variantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lists []tier.PriceList
	for rows.Next() {
		list, err := scanPriceList(rows)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return s.attachTiers(ctx, lists)
}

func (s *PriceListStore) attachTiers(ctx context.Context, lists []tier.PriceList) ([]tier.PriceList, error) {
	if len(lists) == 0 {
		return lists, nil
	}
	ids := make([]uuid.UUID, 0, len(lists))
	index := make(map[uuid.UUID]int, len(lists))
	for i, list := range lists {
		ids = append(ids, list.ID)
		index[list.ID] = i
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, price_list_id, min_quantity, max_quantity, price_per_unit_area, priority
FROM price_tiers
WHERE price_list_id = ANY($1::uuid[])
ORDER BY min_quantity, priority`, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t tier.Tier
		if err := rows.Scan(&t.ID, &t.PriceListID, &t.MinQuantity, &t.MaxQuantity, &t.PricePerUnitArea, &t.Priority); err != nil {
			return nil, err
		}
		if i, ok := index[t.PriceListID]; ok {
			lists[i].Tiers = append(lists[i].Tiers, t)
		}
	}
	return lists, rows.Err()
}

// GetPriceList fetches one list with its tiers.
func (s *PriceListStore) GetPriceList(ctx context.Context, id uuid.UUID) (tier.PriceList, error) {
	if s == nil || s.Pool == nil {
		return tier.PriceList{}, ErrStoreUnavailable
	}
	row := s.Pool.QueryRow(ctx, `SELECT `+priceListColumns+` FROM price_lists WHERE id = $1`, id)
	list, err := scanPriceList(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tier.PriceList{}, tier.ErrPriceListNotFound
		}
		return tier.PriceList{}, err
	}
	lists, err := s.attachTiers(ctx, []tier.PriceList{list})
	if err != nil {
		return tier.PriceList{}, err
	}
	return lists[0], nil
}

// ListPriceLists pages through all lists ordered by priority.
func (s *PriceListStore) ListPriceLists(ctx context.Context, limit, offset int) ([]tier.PriceList, int64, error) {
	if s == nil || s.Pool == nil {
		return nil, 0, ErrStoreUnavailable
	}
	var total int64
	if err := s.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM price_lists`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.Pool.Query(ctx, `SELECT `+priceListColumns+`
FROM price_lists ORDER BY priority DESC, name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var lists []tier.PriceList
	for rows.Next() {
		list, err := scanPriceList(rows)
		if err != nil {
			return nil, 0, err
		}
		lists = append(lists, list)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	lists, err = s.attachTiers(ctx, lists)
	return lists, total, err
}

// CreatePriceList inserts a list.
func (s *PriceListStore) CreatePriceList(ctx context.Context, list tier.PriceList) (tier.PriceList, error) {
	if s == nil || s.Pool == nil {
		return tier.PriceList{}, ErrStoreUnavailable
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO price_lists
(id, name, type, status, starts_at, ends_at, customer_group_ids, customer_ids, priority, currency_code)
VALUES ($1, $2, $3, $4, $5, $6, $7::uuid[], $8::uuid[], $9, $10)`,
		list.ID, list.Name, list.Type, list.Status, list.StartsAt, list.EndsAt,
		uuidStrings(list.CustomerGroupIDs), uuidStrings(list.CustomerIDs), list.Priority, list.CurrencyCode)
	if err != nil {
		return tier.PriceList{}, err
	}
	return list, nil
}

// UpdatePriceList persists changes to an existing list.
func (s *PriceListStore) UpdatePriceList(ctx context.Context, list tier.PriceList) (tier.PriceList, error) {
	if s == nil || s.Pool == nil {
		return tier.PriceList{}, ErrStoreUnavailable
	}
	tag, err := s.Pool.Exec(ctx, `UPDATE price_lists SET
name = $2, type = $3, status = $4, starts_at = $5, ends_at = $6,
customer_group_ids = $7::uuid[], customer_ids = $8::uuid[], priority = $9, currency_code = $10, updated_at = now()
WHERE id = $1`,
		list.ID, list.Name, list.Type, list.Status, list.StartsAt, list.EndsAt,
		uuidStrings(list.CustomerGroupIDs), uuidStrings(list.CustomerIDs), list.Priority, list.CurrencyCode)
	if err != nil {
		return tier.PriceList{}, err
	}
	if tag.RowsAffected() == 0 {
		return tier.PriceList{}, tier.ErrPriceListNotFound
	}
	return list, nil
}

// DetachTiers removes every tier of the list.
func (s *PriceListStore) DetachTiers(ctx context.Context, listID uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM price_tiers WHERE price_list_id = $1`, listID)
	return err
}

// DetachVariants removes every variant link of the list.
func (s *PriceListStore) DetachVariants(ctx context.Context, listID uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM variant_price_list_links WHERE price_list_id = $1`, listID)
	return err
}

// DeletePriceList removes the list row.
func (s *PriceListStore) DeletePriceList(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.Pool.Exec(ctx, `DELETE FROM price_lists WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tier.ErrPriceListNotFound
	}
	return nil
}

// CreateTier inserts a tier.
func (s *PriceListStore) CreateTier(ctx context.Context, t tier.Tier) (tier.Tier, error) {
	if s == nil || s.Pool == nil {
		return tier.Tier{}, ErrStoreUnavailable
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO price_tiers
(id, price_list_id, min_quantity, max_quantity, price_per_unit_area, priority)
VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.PriceListID, t.MinQuantity, t.MaxQuantity, t.PricePerUnitArea, t.Priority)
	if err != nil {
		return tier.Tier{}, foreignKeyViolation(err, "tier references an unknown price list")
	}
	return t, nil
}

// UpdateTier persists changes to an existing tier.
func (s *PriceListStore) UpdateTier(ctx context.Context, t tier.Tier) (tier.Tier, error) {
	if s == nil || s.Pool == nil {
		return tier.Tier{}, ErrStoreUnavailable
	}
	row := s.Pool.QueryRow(ctx, `UPDATE price_tiers SET
min_quantity = $2, max_quantity = $3, price_per_unit_area = $4, priority = $5
WHERE id = $1
RETURNING price_list_id`, t.ID, t.MinQuantity, t.MaxQuantity, t.PricePerUnitArea, t.Priority)
	if err := row.Scan(&t.PriceListID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tier.Tier{}, tier.ErrTierNotFound
		}
		return tier.Tier{}, err
	}
	return t, nil
}

// DeleteTier removes a tier.
func (s *PriceListStore) DeleteTier(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.Pool.Exec(ctx, `DELETE FROM price_tiers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tier.ErrTierNotFound
	}
	return nil
}

// LinkVariant attaches a variant to a list. Linking twice is a no-op.
func (s *PriceListStore) LinkVariant(ctx context.Context, listID, variantID uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.Pool.Exec(ctx, `INSERT INTO variant_price_list_links (price_list_id, variant_id)
VALUES ($1, $2) ON CONFLICT DO NOTHING`, listID, variantID)
	return foreignKeyViolation(err, "link references an unknown price list or variant")
}

// UnlinkVariant detaches a variant from a list.
func (s *PriceListStore) UnlinkVariant(ctx context.Context, listID, variantID uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.Pool.Exec(ctx, `DELETE FROM variant_price_list_links WHERE price_list_id = $1 AND variant_id = $2`, listID, variantID)
	return err
}

// ListVariantIDsByProduct resolves a product's variants for entry pricing.
func (s *PriceListStore) ListVariantIDsByProduct(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	if s == nil || s.Pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.Pool.Query(ctx, `SELECT id FROM product_variants WHERE product_id = $1`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
