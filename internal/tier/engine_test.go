package tier

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func timePtr(t time.Time) *time.Time { return &t }
func intPtr(v int) *int              { return &v }

func activeList(name, listType string, priority int, tiers ...Tier) PriceList {
	return PriceList{
		ID:           uuid.New(),
		Name:         name,
		Type:         listType,
		Status:       ListStatusActive,
		Priority:     priority,
		CurrencyCode: "EUR",
		Tiers:        tiers,
	}
}

func flatTier(min int, max *int, price int64) Tier {
	return Tier{ID: uuid.New(), MinQuantity: min, MaxQuantity: max, PricePerUnitArea: price}
}

func TestEligibleWindow(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	buyer := BuyerContext{CurrencyCode: "EUR"}

	list := activeList("spring sale", ListTypeSale, 10)
	list.StartsAt = timePtr(now.Add(-time.Hour))
	list.EndsAt = timePtr(now.Add(time.Hour))
	if !Eligible(list, buyer, now) {
		t.Fatal("list inside its window must be eligible")
	}

	// Start bound is inclusive.
	if !Eligible(list, buyer, *list.StartsAt) {
		t.Fatal("starts_at instant must be eligible")
	}
	// End bound is exclusive.
	if Eligible(list, buyer, *list.EndsAt) {
		t.Fatal("ends_at instant must not be eligible")
	}

	if Eligible(list, buyer, now.Add(-2*time.Hour)) {
		t.Fatal("list before its window must not be eligible")
	}

	open := activeList("evergreen", ListTypeDefault, 0)
	if !Eligible(open, buyer, now) {
		t.Fatal("open-ended list must be eligible")
	}
}

func TestEligibleStatusAndCurrency(t *testing.T) {
	now := time.Now()
	buyer := BuyerContext{CurrencyCode: "EUR"}

	draft := activeList("draft", ListTypeDefault, 0)
	draft.Status = ListStatusDraft
	if Eligible(draft, buyer, now) {
		t.Fatal("draft list must not be eligible")
	}

	usd := activeList("dollar", ListTypeDefault, 0)
	usd.CurrencyCode = "USD"
	if Eligible(usd, buyer, now) {
		t.Fatal("currency mismatch must not be eligible")
	}
	if !Eligible(usd, BuyerContext{}, now) {
		t.Fatal("buyer without currency preference accepts any list")
	}
}

func TestEligibleRestrictions(t *testing.T) {
	now := time.Now()
	customerID := uuid.New()
	groupID := uuid.New()

	restricted := activeList("trade", ListTypeCustomerGroup, 5)
	restricted.CustomerGroupIDs = []uuid.UUID{groupID}
	restricted.CustomerIDs = []uuid.UUID{customerID}

	if Eligible(restricted, BuyerContext{CurrencyCode: "EUR"}, now) {
		t.Fatal("anonymous buyer must not see a restricted list")
	}
	if !Eligible(restricted, BuyerContext{CustomerID: &customerID, CurrencyCode: "EUR"}, now) {
		t.Fatal("direct customer membership must qualify")
	}
	if !Eligible(restricted, BuyerContext{CustomerGroupIDs: []uuid.UUID{groupID}, CurrencyCode: "EUR"}, now) {
		t.Fatal("group membership must qualify")
	}

	// Restricted type with empty sets applies to everyone.
	openSale := activeList("public sale", ListTypeSale, 5)
	if !Eligible(openSale, BuyerContext{CurrencyCode: "EUR"}, now) {
		t.Fatal("sale list without restrictions must apply to everyone")
	}
}

func TestSortListsPriorityAndTypeRank(t *testing.T) {
	defaultList := activeList("base", ListTypeDefault, 5)
	saleList := activeList("sale", ListTypeSale, 5)
	groupList := activeList("trade", ListTypeCustomerGroup, 5)
	highList := activeList("vip", ListTypeDefault, 9)

	lists := []PriceList{defaultList, saleList, groupList, highList}
	SortLists(lists)

	wantOrder := []string{"vip", "trade", "sale", "base"}
	for i, want := range wantOrder {
		if lists[i].Name != want {
			t.Fatalf("position %d: got %q, want %q", i, lists[i].Name, want)
		}
	}
}

func TestMatchTierRanges(t *testing.T) {
	tiers := []Tier{
		flatTier(50, nil, 700),
		flatTier(1, intPtr(9), 1000),
		flatTier(10, intPtr(49), 850),
	}

	cases := []struct {
		quantity int
		want     int64
		found    bool
	}{
		{1, 1000, true},
		{9, 1000, true},
		{10, 850, true},
		{49, 850, true},
		{50, 700, true},
		{5000, 700, true},
		{0, 0, false},
	}
	for _, tc := range cases {
		got := MatchTier(tiers, tc.quantity)
		if tc.found != (got != nil) {
			t.Fatalf("quantity %d: found=%v, want %v", tc.quantity, got != nil, tc.found)
		}
		if got != nil && got.PricePerUnitArea != tc.want {
			t.Fatalf("quantity %d: price %d, want %d", tc.quantity, got.PricePerUnitArea, tc.want)
		}
	}
}

func TestMatchTierOverlapFirstAscendingWins(t *testing.T) {
	overlapping := []Tier{
		flatTier(5, intPtr(20), 800),
		flatTier(1, intPtr(10), 950),
	}
	got := MatchTier(overlapping, 7)
	if got == nil || got.PricePerUnitArea != 950 {
		t.Fatalf("overlap must resolve by ascending min_quantity, got %+v", got)
	}
}

func TestResolvePrecedenceOverPrice(t *testing.T) {
	now := time.Now()
	buyer := BuyerContext{CurrencyCode: "EUR"}

	expensive := activeList("contract", ListTypeCustomerGroup, 10, flatTier(1, nil, 1200))
	cheap := activeList("base", ListTypeDefault, 1, flatTier(1, nil, 600))

	res := Resolve([]PriceList{cheap, expensive}, 5, buyer, now)
	if res == nil {
		t.Fatal("expected a result")
	}
	if res.PricePerUnitArea != 1200 || res.PriceListName != "contract" {
		t.Fatalf("higher-priority list must win even when pricier, got %+v", res)
	}
}

func TestResolveSkipsListWithoutCoveringTier(t *testing.T) {
	now := time.Now()
	buyer := BuyerContext{CurrencyCode: "EUR"}

	bulkOnly := activeList("bulk", ListTypeSale, 10, flatTier(100, nil, 500))
	base := activeList("base", ListTypeDefault, 1, flatTier(1, nil, 900))

	res := Resolve([]PriceList{bulkOnly, base}, 3, buyer, now)
	if res == nil || res.PriceListName != "base" {
		t.Fatalf("list without a covering tier must fall through, got %+v", res)
	}
}

func TestResolveNoMatch(t *testing.T) {
	now := time.Now()
	bulkOnly := activeList("bulk", ListTypeSale, 10, flatTier(100, nil, 500))
	if res := Resolve([]PriceList{bulkOnly}, 3, BuyerContext{CurrencyCode: "EUR"}, now); res != nil {
		t.Fatalf("expected no result, got %+v", res)
	}
	if res := Resolve(nil, 3, BuyerContext{}, now); res != nil {
		t.Fatalf("expected no result for empty input, got %+v", res)
	}
}

func TestLadderForSingleList(t *testing.T) {
	now := time.Now()
	buyer := BuyerContext{CurrencyCode: "EUR"}

	top := activeList("trade", ListTypeCustomerGroup, 10,
		flatTier(10, nil, 800),
		flatTier(1, intPtr(9), 950),
	)
	base := activeList("base", ListTypeDefault, 1, flatTier(1, nil, 600))

	ladder := LadderFor([]PriceList{base, top}, buyer, now)
	if len(ladder) != 2 {
		t.Fatalf("expected the full ladder of the winning list, got %d tiers", len(ladder))
	}
	if ladder[0].MinQuantity != 1 || ladder[1].MinQuantity != 10 {
		t.Fatalf("ladder must sort ascending, got %+v", ladder)
	}
	for _, tr := range ladder {
		if tr.PricePerUnitArea == 600 {
			t.Fatal("ladder must never mix tiers from a lower-priority list")
		}
	}
}
