package tier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Querier abstracts the read side of price list storage.
type Querier interface {
	ListPriceListsByVariant(ctx context.Context, variantID uuid.UUID) ([]PriceList, error)
}

// Service resolves tier prices for variants.
type Service struct {
	Q   Querier
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ResolvePrice returns the applicable price for the variant and quantity, or
// nil when no eligible list covers the quantity. A nil result is not an
// error; the caller decides the fallback.
func (s *Service) ResolvePrice(ctx context.Context, variantID uuid.UUID, quantity int, buyer BuyerContext) (*Result, error) {
	lists, err := s.Q.ListPriceListsByVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("list price lists for variant %s: %w", variantID, err)
	}
	return Resolve(lists, quantity, buyer, s.now()), nil
}

// TiersForVariant returns the full tier ladder of the list that would price
// the variant for this buyer, for display purposes.
func (s *Service) TiersForVariant(ctx context.Context, variantID uuid.UUID, buyer BuyerContext) ([]Tier, error) {
	lists, err := s.Q.ListPriceListsByVariant(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("list price lists for variant %s: %w", variantID, err)
	}
	return LadderFor(lists, buyer, s.now()), nil
}
