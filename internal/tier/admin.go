package tier

import (
	"context"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// ErrPriceListNotFound is returned when the referenced list does not exist.
	ErrPriceListNotFound = errors.New("price list not found")
	// ErrTierNotFound is returned when the referenced tier does not exist.
	ErrTierNotFound = errors.New("price tier not found")
	// ErrInvalidWindow is returned when a validity window ends before it starts.
	ErrInvalidWindow = errors.New("validity window ends before it starts")
	// ErrInvalidRange is returned when a tier's max quantity is below its min.
	ErrInvalidRange = errors.New("tier max quantity below min quantity")
)

// Store abstracts persistence for price list administration.
type Store interface {
	Querier
	GetPriceList(ctx context.Context, id uuid.UUID) (PriceList, error)
	ListPriceLists(ctx context.Context, limit, offset int) ([]PriceList, int64, error)
	CreatePriceList(ctx context.Context, list PriceList) (PriceList, error)
	UpdatePriceList(ctx context.Context, list PriceList) (PriceList, error)
	DetachTiers(ctx context.Context, listID uuid.UUID) error
	DetachVariants(ctx context.Context, listID uuid.UUID) error
	DeletePriceList(ctx context.Context, id uuid.UUID) error
	CreateTier(ctx context.Context, t Tier) (Tier, error)
	UpdateTier(ctx context.Context, t Tier) (Tier, error)
	DeleteTier(ctx context.Context, id uuid.UUID) error
	LinkVariant(ctx context.Context, listID, variantID uuid.UUID) error
	UnlinkVariant(ctx context.Context, listID, variantID uuid.UUID) error
}

// AdminService implements price list administration. Every successful write
// calls Invalidate so cached quotes never outlive an edit by more than the
// call itself.
type AdminService struct {
	Store      Store
	Validate   *validator.Validate
	Invalidate func(ctx context.Context)
}

// PriceListInput is the write payload for creating or updating a list.
type PriceListInput struct {
	Name             string      `json:"name" validate:"required,max=200"`
	Type             string      `json:"type" validate:"required,oneof=default customer_group sale"`
	Status           string      `json:"status" validate:"required,oneof=active draft"`
	StartsAt         *time.Time  `json:"starts_at"`
	EndsAt           *time.Time  `json:"ends_at"`
	CustomerGroupIDs []uuid.UUID `json:"customer_group_ids"`
	CustomerIDs      []uuid.UUID `json:"customer_ids"`
	Priority         int         `json:"priority"`
	CurrencyCode     string      `json:"currency_code" validate:"required,len=3,alpha"`
}

// TierInput is the write payload for creating or updating a tier.
type TierInput struct {
	MinQuantity      int   `json:"min_quantity" validate:"required,min=1"`
	MaxQuantity      *int  `json:"max_quantity"`
	PricePerUnitArea int64 `json:"price_per_unit_area" validate:"required,min=1"`
	Priority         int   `json:"priority"`
}

func (s *AdminService) validate(in any) error {
	if s.Validate == nil {
		return nil
	}
	return s.Validate.Struct(in)
}

func (s *AdminService) invalidate(ctx context.Context) {
	if s.Invalidate != nil {
		s.Invalidate(ctx)
	}
}

func checkListInput(in PriceListInput) error {
	if in.StartsAt != nil && in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
		return ErrInvalidWindow
	}
	return nil
}

func checkTierInput(in TierInput) error {
	if in.MaxQuantity != nil && *in.MaxQuantity < in.MinQuantity {
		return ErrInvalidRange
	}
	return nil
}

// CreatePriceList validates and persists a new list.
func (s *AdminService) CreatePriceList(ctx context.Context, in PriceListInput) (PriceList, error) {
	if err := s.validate(in); err != nil {
		return PriceList{}, err
	}
	if err := checkListInput(in); err != nil {
		return PriceList{}, err
	}
	list, err := s.Store.CreatePriceList(ctx, PriceList{
		ID:               uuid.New(),
		Name:             in.Name,
		Type:             in.Type,
		Status:           in.Status,
		StartsAt:         in.StartsAt,
		EndsAt:           in.EndsAt,
		CustomerGroupIDs: in.CustomerGroupIDs,
		CustomerIDs:      in.CustomerIDs,
		Priority:         in.Priority,
		CurrencyCode:     in.CurrencyCode,
	})
	if err != nil {
		return PriceList{}, fmt.Errorf("create price list: %w", err)
	}
	s.invalidate(ctx)
	return list, nil
}

// UpdatePriceList validates and persists changes to an existing list.
func (s *AdminService) UpdatePriceList(ctx context.Context, id uuid.UUID, in PriceListInput) (PriceList, error) {
	if err := s.validate(in); err != nil {
		return PriceList{}, err
	}
	if err := checkListInput(in); err != nil {
		return PriceList{}, err
	}
	existing, err := s.Store.GetPriceList(ctx, id)
	if err != nil {
		return PriceList{}, err
	}
	existing.Name = in.Name
	existing.Type = in.Type
	existing.Status = in.Status
	existing.StartsAt = in.StartsAt
	existing.EndsAt = in.EndsAt
	existing.CustomerGroupIDs = in.CustomerGroupIDs
	existing.CustomerIDs = in.CustomerIDs
	existing.Priority = in.Priority
	existing.CurrencyCode = in.CurrencyCode
	updated, err := s.Store.UpdatePriceList(ctx, existing)
	if err != nil {
		return PriceList{}, fmt.Errorf("update price list: %w", err)
	}
	s.invalidate(ctx)
	return updated, nil
}

// DeletePriceList detaches the list's tiers and variant links before removing
// the list itself, so in-flight resolutions never see a dangling reference.
func (s *AdminService) DeletePriceList(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Store.GetPriceList(ctx, id); err != nil {
		return err
	}
	if err := s.Store.DetachTiers(ctx, id); err != nil {
		return fmt.Errorf("detach tiers: %w", err)
	}
	if err := s.Store.DetachVariants(ctx, id); err != nil {
		return fmt.Errorf("detach variant links: %w", err)
	}
	if err := s.Store.DeletePriceList(ctx, id); err != nil {
		return fmt.Errorf("delete price list: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// GetPriceList loads one list with its tiers.
func (s *AdminService) GetPriceList(ctx context.Context, id uuid.UUID) (PriceList, error) {
	return s.Store.GetPriceList(ctx, id)
}

// ListPriceLists pages through all lists.
func (s *AdminService) ListPriceLists(ctx context.Context, limit, offset int) ([]PriceList, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListPriceLists(ctx, limit, offset)
}

// CreateTier validates and attaches a tier to a list. Overlapping quantity
// ranges are accepted; resolution handles them by ascending min quantity.
func (s *AdminService) CreateTier(ctx context.Context, listID uuid.UUID, in TierInput) (Tier, error) {
	if err := s.validate(in); err != nil {
		return Tier{}, err
	}
	if err := checkTierInput(in); err != nil {
		return Tier{}, err
	}
	if _, err := s.Store.GetPriceList(ctx, listID); err != nil {
		return Tier{}, err
	}
	t, err := s.Store.CreateTier(ctx, Tier{
		ID:               uuid.New(),
		PriceListID:      listID,
		MinQuantity:      in.MinQuantity,
		MaxQuantity:      in.MaxQuantity,
		PricePerUnitArea: in.PricePerUnitArea,
		Priority:         in.Priority,
	})
	if err != nil {
		return Tier{}, fmt.Errorf("create tier: %w", err)
	}
	s.invalidate(ctx)
	return t, nil
}

// UpdateTier validates and persists changes to a tier.
func (s *AdminService) UpdateTier(ctx context.Context, id uuid.UUID, in TierInput) (Tier, error) {
	if err := s.validate(in); err != nil {
		return Tier{}, err
	}
	if err := checkTierInput(in); err != nil {
		return Tier{}, err
	}
	t, err := s.Store.UpdateTier(ctx, Tier{
		ID:               id,
		MinQuantity:      in.MinQuantity,
		MaxQuantity:      in.MaxQuantity,
		PricePerUnitArea: in.PricePerUnitArea,
		Priority:         in.Priority,
	})
	if err != nil {
		return Tier{}, err
	}
	s.invalidate(ctx)
	return t, nil
}

// DeleteTier removes a tier.
func (s *AdminService) DeleteTier(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.DeleteTier(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// LinkVariant attaches a variant to a list.
func (s *AdminService) LinkVariant(ctx context.Context, listID, variantID uuid.UUID) error {
	if _, err := s.Store.GetPriceList(ctx, listID); err != nil {
		return err
	}
	if err := s.Store.LinkVariant(ctx, listID, variantID); err != nil {
		return fmt.Errorf("link variant: %w", err)
	}
	s.invalidate(ctx)
	return nil
}

// UnlinkVariant detaches a variant from a list.
func (s *AdminService) UnlinkVariant(ctx context.Context, listID, variantID uuid.UUID) error {
	if err := s.Store.UnlinkVariant(ctx, listID, variantID); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}
