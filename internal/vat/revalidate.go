package vat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SavedNumber is a VAT number stored on a customer account, revalidated in
// the background.
type SavedNumber struct {
	ID            uuid.UUID
	CustomerID    uuid.UUID
	VatNumber     string
	CountryCode   string
	Valid         bool
	CompanyName   *string
	LastCheckedAt *time.Time
}

// NumberStore persists saved VAT numbers and their check state.
type NumberStore interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]SavedNumber, error)
	MarkChecked(ctx context.Context, id uuid.UUID, valid bool, companyName string, checkedAt time.Time) error
}

// Revalidator re-checks saved VAT numbers against the registry. Numbers
// accepted while the registry was down eventually get a verified answer; a
// number that stops being valid flips the account back to taxed checkout.
type Revalidator struct {
	Store     NumberStore
	Service   *Service
	Interval  time.Duration
	BatchSize int
	Logger    *zerolog.Logger
	Now       func() time.Time
}

func (r *Revalidator) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Revalidator) interval() time.Duration {
	if r.Interval <= 0 {
		return 7 * 24 * time.Hour
	}
	return r.Interval
}

// RunOnce processes one batch of stale numbers. A registry outage leaves
// last_checked_at untouched so the number is retried on the next pass.
func (r *Revalidator) RunOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.interval())
	stale, err := r.Store.ListStale(ctx, cutoff, r.BatchSize)
	if err != nil {
		return 0, err
	}
	checked := 0
	for _, number := range stale {
		if ctx.Err() != nil {
			return checked, ctx.Err()
		}
		res := r.Service.ValidateNumber(ctx, number.VatNumber)
		if res.Error != "" && res.Valid {
			// Degraded answer, not a verified one. Skip the write.
			if r.Logger != nil {
				r.Logger.Warn().
					Str("vat_number_id", number.ID.String()).
					Msg("registry unavailable during revalidation, will retry")
			}
			continue
		}
		if err := r.Store.MarkChecked(ctx, number.ID, res.Valid, res.CompanyName, r.now()); err != nil {
			return checked, err
		}
		checked++
		if !res.Valid && number.Valid && r.Logger != nil {
			r.Logger.Info().
				Str("vat_number_id", number.ID.String()).
				Str("country", number.CountryCode).
				Msg("saved vat number no longer valid")
		}
	}
	return checked, nil
}
