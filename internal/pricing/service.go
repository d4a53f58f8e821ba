package pricing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-vloer/internal/formula"
	"github.com/noah-isme/backend-vloer/internal/obs"
	"github.com/noah-isme/backend-vloer/internal/pricecache"
	"github.com/noah-isme/backend-vloer/internal/tier"
)

// ErrInvalidQuote is returned when the quote request itself is malformed.
var ErrInvalidQuote = errors.New("pricing: invalid quote request")

// VariantLister resolves which variants belong to a product.
type VariantLister interface {
	ListVariantIDsByProduct(ctx context.Context, productID uuid.UUID) ([]uuid.UUID, error)
}

// QuoteRequest describes one line to price.
type QuoteRequest struct {
	ProductID   uuid.UUID
	VariantID   uuid.UUID
	Quantity    int
	WidthValue  float64
	LengthValue float64
	FormulaID   *uuid.UUID
	Buyer       tier.BuyerContext
}

// Quote is the priced line.
type Quote struct {
	PricePerUnitArea Money      `json:"price_per_unit_area"`
	LineTotal        Money      `json:"line_total"`
	PriceListID      *uuid.UUID `json:"price_list_id,omitempty"`
	PriceListName    string     `json:"price_list_name,omitempty"`
	Fallback         bool       `json:"fallback"`
}

// StartingFrom is a product's lowest entry price across its variants.
type StartingFrom struct {
	PricePerUnitArea Money `json:"price_per_unit_area"`
	Fallback         bool  `json:"fallback"`
}

// Service computes price quotes. Lookups go through the in-process cache
// first; on miss the tier resolver supplies the price per square meter and
// the formula evaluator turns it into a line total.
type Service struct {
	Tiers    *tier.Service
	Formulas *formula.Service
	Variants VariantLister

	QuoteCache     *pricecache.Cache
	StartingCache  *pricecache.Cache
	Redis          *RedisCache
	FallbackPerSqm Money
	Logger         *zerolog.Logger
}

// Quote prices one line. A missing tier or a missing/inactive formula
// degrades to the fallback price path with Fallback set; a malformed formula
// expression is surfaced, never recovered.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (Quote, error) {
	if req.Quantity < 1 || req.WidthValue <= 0 || req.LengthValue <= 0 {
		return Quote{}, fmt.Errorf("%w: quantity and dimensions must be positive", ErrInvalidQuote)
	}

	started := time.Now()
	key := QuoteKey(req.ProductID, req.VariantID, req.WidthValue, req.LengthValue, req.Quantity, req.Buyer)
	if s.QuoteCache != nil {
		if cached, ok := s.QuoteCache.Get(key); ok {
			if q, ok := cached.(Quote); ok {
				countCache("memory", "hit")
				return q, nil
			}
		}
		countCache("memory", "miss")
	}

	q, err := s.compute(ctx, req)
	if err != nil {
		countQuote("error")
		return Quote{}, err
	}
	if s.QuoteCache != nil {
		s.QuoteCache.Set(key, q)
	}
	countQuote("ok")
	observeLatency("quote", started)
	return q, nil
}

func (s *Service) compute(ctx context.Context, req QuoteRequest) (Quote, error) {
	res, err := s.Tiers.ResolvePrice(ctx, req.VariantID, req.Quantity, req.Buyer)
	if err != nil {
		return Quote{}, err
	}

	q := Quote{}
	perSqm := s.FallbackPerSqm
	if res != nil {
		countTier("resolved")
		perSqm = res.PricePerUnitArea
		listID := res.PriceListID
		q.PriceListID = &listID
		q.PriceListName = res.PriceListName
	} else {
		countTier("fallback")
		q.Fallback = true
		if s.Logger != nil {
			s.Logger.Debug().
				Str("variant_id", req.VariantID.String()).
				Int("quantity", req.Quantity).
				Msg("no eligible tier, using fallback price")
		}
	}
	q.PricePerUnitArea = perSqm

	if req.FormulaID != nil && s.Formulas != nil {
		vars := map[string]float64{
			"width_value":   req.WidthValue,
			"length_value":  req.LengthValue,
			"price_per_sqm": float64(perSqm),
		}
		total, err := s.Formulas.CalculateByID(ctx, *req.FormulaID, vars, float64(req.Quantity))
		if err == nil {
			q.LineTotal = total
			return q, nil
		}
		if !errors.Is(err, formula.ErrFormulaNotFound) {
			return Quote{}, err
		}
		// Missing or inactive formula: fall back to the plain per-m² path.
		q.Fallback = true
	}

	q.LineTotal = SimpleLineTotal(req.WidthValue, req.LengthValue, perSqm, req.Quantity)
	return q, nil
}

// StartingFrom returns the lowest single-unit price across the product's
// variants, for category and listing pages. Results are cached aggressively:
// an in-process layer first, then a shared Redis layer.
func (s *Service) StartingFrom(ctx context.Context, productID uuid.UUID, buyer tier.BuyerContext) (StartingFrom, error) {
	key := StartingFromKey(productID, buyer)
	if s.StartingCache != nil {
		if cached, ok := s.StartingCache.Get(key); ok {
			if sf, ok := cached.(StartingFrom); ok {
				countCache("memory", "hit")
				return sf, nil
			}
		}
		countCache("memory", "miss")
	}
	if s.Redis != nil {
		var sf StartingFrom
		found, err := s.Redis.GetJSON(ctx, key, &sf)
		if err != nil && s.Logger != nil {
			s.Logger.Warn().Err(err).Msg("starting-from redis read failed")
		}
		if found {
			countCache("redis", "hit")
			if s.StartingCache != nil {
				s.StartingCache.Set(key, sf)
			}
			return sf, nil
		}
		countCache("redis", "miss")
	}

	variantIDs, err := s.Variants.ListVariantIDsByProduct(ctx, productID)
	if err != nil {
		return StartingFrom{}, fmt.Errorf("list variants for product %s: %w", productID, err)
	}

	sf := StartingFrom{PricePerUnitArea: s.FallbackPerSqm, Fallback: true}
	for _, variantID := range variantIDs {
		res, err := s.Tiers.ResolvePrice(ctx, variantID, 1, buyer)
		if err != nil {
			return StartingFrom{}, err
		}
		if res == nil {
			continue
		}
		if sf.Fallback || res.PricePerUnitArea < sf.PricePerUnitArea {
			sf.PricePerUnitArea = res.PricePerUnitArea
			sf.Fallback = false
		}
	}

	if s.StartingCache != nil {
		s.StartingCache.Set(key, sf)
	}
	if s.Redis != nil {
		if err := s.Redis.SetJSON(ctx, key, sf); err != nil && s.Logger != nil {
			s.Logger.Warn().Err(err).Msg("starting-from redis write failed")
		}
	}
	return sf, nil
}

// InvalidateCaches clears every pricing cache layer. Called after any write
// to price lists, tiers, or formulas.
func (s *Service) InvalidateCaches(ctx context.Context) {
	if s.QuoteCache != nil {
		s.QuoteCache.Clear()
	}
	if s.StartingCache != nil {
		s.StartingCache.Clear()
	}
	if s.Redis != nil {
		if err := s.Redis.DeleteByPrefix(ctx, "starting-from:"); err != nil && s.Logger != nil {
			s.Logger.Warn().Err(err).Msg("starting-from redis invalidation failed")
		}
	}
	if s.Logger != nil {
		s.Logger.Info().Msg("pricing caches cleared")
	}
}

func countQuote(result string) {
	if obs.QuoteTotal != nil {
		obs.QuoteTotal.WithLabelValues(result).Inc()
	}
}

func countCache(layer, outcome string) {
	if obs.QuoteCacheTotal != nil {
		obs.QuoteCacheTotal.WithLabelValues(layer, outcome).Inc()
	}
}

func countTier(outcome string) {
	if obs.TierResolutionTotal != nil {
		obs.TierResolutionTotal.WithLabelValues(outcome).Inc()
	}
}

func observeLatency(path string, started time.Time) {
	if obs.QuoteLatency != nil {
		obs.QuoteLatency.WithLabelValues(path).Observe(float64(time.Since(started).Milliseconds()))
	}
}
