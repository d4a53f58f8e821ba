package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-vloer/internal/vat"
)

// VatNumberStore persists saved company VAT numbers.
type VatNumberStore struct {
	Pool *pgxpool.Pool
}

// ListStale returns numbers not checked since the cutoff, oldest first.
func (s *VatNumberStore) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]vat.SavedNumber, error) {
	if s == nil || s.Pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, customer_id, vat_number, country_code, valid, company_name, last_checked_at
FROM company_vat_numbers
WHERE last_checked_at IS NULL OR last_checked_at < $1
ORDER BY last_checked_at NULLS FIRST
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var numbers []vat.SavedNumber
	for rows.Next() {
		var n vat.SavedNumber
		if err := rows.Scan(&n.ID, &n.CustomerID, &n.VatNumber, &n.CountryCode, &n.Valid, &n.CompanyName, &n.LastCheckedAt); err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
	}
	return numbers, rows.Err()
}

// MarkChecked records the outcome of a revalidation.
func (s *VatNumberStore) MarkChecked(ctx context.Context, id uuid.UUID, valid bool, companyName string, checkedAt time.Time) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	var name any
	if companyName != "" {
		name = companyName
	}
	_, err := s.Pool.Exec(ctx, `UPDATE company_vat_numbers SET
valid = $2, company_name = COALESCE($3, company_name), last_checked_at = $4
WHERE id = $1`, id, valid, name, checkedAt)
	return err
}
