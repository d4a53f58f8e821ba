package pricing_test

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vloer/internal/formula"
	"github.com/noah-isme/backend-vloer/internal/pricecache"
	"github.com/noah-isme/backend-vloer/internal/pricing"
	"github.com/noah-isme/backend-vloer/internal/tier"
)

type tierQuerier struct {
	lists map[uuid.UUID][]tier.PriceList
	calls int
}

func (q *tierQuerier) ListPriceListsByVariant(_ context.Context, variantID uuid.UUID) ([]tier.PriceList, error) {
	q.calls++
	return q.lists[variantID], nil
}

type formulaQuerier struct {
	formulas map[uuid.UUID]formula.Formula
}

func (q *formulaQuerier) GetFormulaByID(_ context.Context, id uuid.UUID) (formula.Formula, error) {
	f, ok := q.formulas[id]
	if !ok {
		return formula.Formula{}, formula.ErrFormulaNotFound
	}
	return f, nil
}

type variantLister struct {
	byProduct map[uuid.UUID][]uuid.UUID
}

func (l *variantLister) ListVariantIDsByProduct(_ context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	return l.byProduct[productID], nil
}

func singleTierList(price int64) tier.PriceList {
	return tier.PriceList{
		ID:           uuid.New(),
		Name:         "base",
		Type:         tier.ListTypeDefault,
		Status:       tier.ListStatusActive,
		CurrencyCode: "EUR",
		Tiers:        []tier.Tier{{ID: uuid.New(), MinQuantity: 1, PricePerUnitArea: price}},
	}
}

func newService(tq *tierQuerier, fq *formulaQuerier) *pricing.Service {
	svc := &pricing.Service{
		Tiers:          &tier.Service{Q: tq},
		QuoteCache:     pricecache.New(5*time.Minute, 0),
		StartingCache:  pricecache.New(time.Hour, 0),
		FallbackPerSqm: 500,
	}
	if fq != nil {
		svc.Formulas = &formula.Service{Q: fq}
	}
	return svc
}

func TestQuoteSimplePath(t *testing.T) {
	variantID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(1999)}}}
	svc := newService(tq, nil)

	q, err := svc.Quote(context.Background(), pricing.QuoteRequest{
		VariantID:   variantID,
		Quantity:    1,
		WidthValue:  120,
		LengthValue: 80,
		Buyer:       tier.BuyerContext{CurrencyCode: "EUR"},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1999), q.PricePerUnitArea)
	// 120cm x 80cm = 0.96 m2; 0.96 * 1999 = 1919.04 floors to 1919.
	require.Equal(t, int64(1919), q.LineTotal)
	require.False(t, q.Fallback)
	require.NotNil(t, q.PriceListID)
}

func TestQuoteCachesResult(t *testing.T) {
	variantID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(1000)}}}
	svc := newService(tq, nil)

	req := pricing.QuoteRequest{
		VariantID:   variantID,
		Quantity:    2,
		WidthValue:  100,
		LengthValue: 100,
		Buyer:       tier.BuyerContext{CurrencyCode: "EUR"},
	}
	first, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, tq.calls, "second quote must come from cache")

	// A different buyer group context must not share the entry.
	req.Buyer.CustomerGroupIDs = []uuid.UUID{uuid.New()}
	_, err = svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, tq.calls)
}

func TestQuoteSharedAcrossCustomersInSameGroup(t *testing.T) {
	variantID := uuid.New()
	groupID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(1000)}}}
	svc := newService(tq, nil)

	alice := uuid.New()
	bob := uuid.New()
	req := pricing.QuoteRequest{
		VariantID:   variantID,
		Quantity:    1,
		WidthValue:  100,
		LengthValue: 100,
		Buyer:       tier.BuyerContext{CustomerID: &alice, CustomerGroupIDs: []uuid.UUID{groupID}, CurrencyCode: "EUR"},
	}
	_, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)

	req.Buyer.CustomerID = &bob
	_, err = svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, tq.calls, "same-group customers must share cache entries")
}

func TestQuoteFallbackWhenNoTier(t *testing.T) {
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{}}
	svc := newService(tq, nil)

	q, err := svc.Quote(context.Background(), pricing.QuoteRequest{
		VariantID:   uuid.New(),
		Quantity:    1,
		WidthValue:  100,
		LengthValue: 100,
	})
	require.NoError(t, err)
	require.True(t, q.Fallback)
	require.Equal(t, int64(500), q.PricePerUnitArea)
	require.Equal(t, int64(500), q.LineTotal)
	require.Nil(t, q.PriceListID)
}

func TestQuoteWithFormula(t *testing.T) {
	variantID := uuid.New()
	formulaID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(1200)}}}
	fq := &formulaQuerier{formulas: map[uuid.UUID]formula.Formula{
		formulaID: {
			ID:         formulaID,
			Expression: "(width_value * length_value / 10000) * price_per_sqm * (1 + markup)",
			Parameters: map[string]float64{"markup": 0.1},
			IsActive:   true,
		},
	}}
	svc := newService(tq, fq)

	q, err := svc.Quote(context.Background(), pricing.QuoteRequest{
		VariantID:   variantID,
		Quantity:    2,
		WidthValue:  100,
		LengthValue: 100,
		FormulaID:   &formulaID,
		Buyer:       tier.BuyerContext{CurrencyCode: "EUR"},
	})
	require.NoError(t, err)
	// 1 m2 * 1200 * 1.1 = 1320 per unit, times 2 units.
	require.Equal(t, int64(2640), q.LineTotal)
	require.False(t, q.Fallback)
}

func TestQuoteInactiveFormulaFallsBack(t *testing.T) {
	variantID := uuid.New()
	formulaID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(1000)}}}
	fq := &formulaQuerier{formulas: map[uuid.UUID]formula.Formula{
		formulaID: {ID: formulaID, Expression: "price_per_sqm", IsActive: false},
	}}
	svc := newService(tq, fq)

	q, err := svc.Quote(context.Background(), pricing.QuoteRequest{
		VariantID:   variantID,
		Quantity:    1,
		WidthValue:  100,
		LengthValue: 100,
		FormulaID:   &formulaID,
		Buyer:       tier.BuyerContext{CurrencyCode: "EUR"},
	})
	require.NoError(t, err)
	require.True(t, q.Fallback, "inactive formula must degrade to the plain path")
	require.Equal(t, int64(1000), q.LineTotal)
}

func TestQuoteBrokenFormulaSurfaces(t *testing.T) {
	variantID := uuid.New()
	formulaID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(1000)}}}
	fq := &formulaQuerier{formulas: map[uuid.UUID]formula.Formula{
		formulaID: {ID: formulaID, Expression: "price_per_sqm * undefined_rate", IsActive: true},
	}}
	svc := newService(tq, fq)

	_, err := svc.Quote(context.Background(), pricing.QuoteRequest{
		VariantID:   variantID,
		Quantity:    1,
		WidthValue:  100,
		LengthValue: 100,
		FormulaID:   &formulaID,
	})
	require.ErrorIs(t, err, formula.ErrInvalidFormula)
}

func TestQuoteRejectsBadInput(t *testing.T) {
	svc := newService(&tierQuerier{}, nil)
	_, err := svc.Quote(context.Background(), pricing.QuoteRequest{VariantID: uuid.New(), Quantity: 0, WidthValue: 100, LengthValue: 100})
	require.ErrorIs(t, err, pricing.ErrInvalidQuote)
	_, err = svc.Quote(context.Background(), pricing.QuoteRequest{VariantID: uuid.New(), Quantity: 1, WidthValue: 0, LengthValue: 100})
	require.ErrorIs(t, err, pricing.ErrInvalidQuote)
}

func TestStartingFromPicksCheapestVariant(t *testing.T) {
	productID := uuid.New()
	cheapVariant := uuid.New()
	pricierVariant := uuid.New()
	unpriced := uuid.New()

	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{
		cheapVariant:   {singleTierList(800)},
		pricierVariant: {singleTierList(1200)},
	}}
	svc := newService(tq, nil)
	svc.Variants = &variantLister{byProduct: map[uuid.UUID][]uuid.UUID{
		productID: {pricierVariant, cheapVariant, unpriced},
	}}

	sf, err := svc.StartingFrom(context.Background(), productID, tier.BuyerContext{CurrencyCode: "EUR"})
	require.NoError(t, err)
	require.Equal(t, int64(800), sf.PricePerUnitArea)
	require.False(t, sf.Fallback)

	// Cached: resolver not consulted again.
	calls := tq.calls
	_, err = svc.StartingFrom(context.Background(), productID, tier.BuyerContext{CurrencyCode: "EUR"})
	require.NoError(t, err)
	require.Equal(t, calls, tq.calls)
}

func TestStartingFromFallbackWhenNothingPriced(t *testing.T) {
	productID := uuid.New()
	svc := newService(&tierQuerier{lists: map[uuid.UUID][]tier.PriceList{}}, nil)
	svc.Variants = &variantLister{byProduct: map[uuid.UUID][]uuid.UUID{productID: {uuid.New()}}}

	sf, err := svc.StartingFrom(context.Background(), productID, tier.BuyerContext{})
	require.NoError(t, err)
	require.True(t, sf.Fallback)
	require.Equal(t, int64(500), sf.PricePerUnitArea)
}

func TestStartingFromRedisLayer(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	productID := uuid.New()
	variantID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(900)}}}
	lister := &variantLister{byProduct: map[uuid.UUID][]uuid.UUID{productID: {variantID}}}

	first := newService(tq, nil)
	first.Variants = lister
	first.Redis = pricing.NewRedisCache(client, time.Hour)

	sf, err := first.StartingFrom(context.Background(), productID, tier.BuyerContext{CurrencyCode: "EUR"})
	require.NoError(t, err)
	require.Equal(t, int64(900), sf.PricePerUnitArea)

	// A second instance with a cold in-process cache warms up from Redis.
	second := newService(&tierQuerier{}, nil)
	second.Variants = &variantLister{}
	second.Redis = pricing.NewRedisCache(client, time.Hour)

	sf, err = second.StartingFrom(context.Background(), productID, tier.BuyerContext{CurrencyCode: "EUR"})
	require.NoError(t, err)
	require.Equal(t, int64(900), sf.PricePerUnitArea)

	// Invalidation clears the shared layer too.
	second.InvalidateCaches(context.Background())
	require.Empty(t, mr.Keys())
}

func TestInvalidateCachesForcesRecompute(t *testing.T) {
	variantID := uuid.New()
	tq := &tierQuerier{lists: map[uuid.UUID][]tier.PriceList{variantID: {singleTierList(1000)}}}
	svc := newService(tq, nil)

	req := pricing.QuoteRequest{
		VariantID:   variantID,
		Quantity:    1,
		WidthValue:  100,
		LengthValue: 100,
	}
	_, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)

	svc.InvalidateCaches(context.Background())

	tq.lists[variantID] = []tier.PriceList{singleTierList(1500)}
	q, err := svc.Quote(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, int64(1500), q.PricePerUnitArea)
}
