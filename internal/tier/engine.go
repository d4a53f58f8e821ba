package tier

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Price list types and statuses.
const (
	ListTypeDefault       = "default"
	ListTypeCustomerGroup = "customer_group"
	ListTypeSale          = "sale"

	ListStatusActive = "active"
	ListStatusDraft  = "draft"
)

// PriceList bundles quantity tiers with eligibility rules and a validity
// window. Higher priority wins over lower priority.
type PriceList struct {
	ID               uuid.UUID   `json:"id"`
	Name             string      `json:"name"`
	Type             string      `json:"type"`
	Status           string      `json:"status"`
	StartsAt         *time.Time  `json:"starts_at,omitempty"`
	EndsAt           *time.Time  `json:"ends_at,omitempty"`
	CustomerGroupIDs []uuid.UUID `json:"customer_group_ids,omitempty"`
	CustomerIDs      []uuid.UUID `json:"customer_ids,omitempty"`
	Priority         int         `json:"priority"`
	CurrencyCode     string      `json:"currency_code"`
	Tiers            []Tier      `json:"tiers,omitempty"`
}

// Tier maps a quantity range to a price per unit area within one price list.
// MaxQuantity nil means unbounded.
type Tier struct {
	ID               uuid.UUID `json:"id"`
	PriceListID      uuid.UUID `json:"price_list_id"`
	MinQuantity      int       `json:"min_quantity"`
	MaxQuantity      *int      `json:"max_quantity,omitempty"`
	PricePerUnitArea int64     `json:"price_per_unit_area"`
	Priority         int       `json:"priority"`
}

// BuyerContext identifies who is asking for a price.
type BuyerContext struct {
	CustomerID       *uuid.UUID
	CustomerGroupIDs []uuid.UUID
	CurrencyCode     string
}

// Result is the outcome of a successful resolution.
type Result struct {
	PricePerUnitArea int64     `json:"price_per_unit_area"`
	PriceListID      uuid.UUID `json:"price_list_id"`
	PriceListName    string    `json:"price_list_name"`
}

// Eligible reports whether the buyer may use the list at the given instant.
// The validity window is inclusive at the start and exclusive at the end. A
// list restricted to customers or groups requires membership in either set;
// a restricted type with empty sets applies to everyone.
func Eligible(list PriceList, buyer BuyerContext, now time.Time) bool {
	if list.Status != ListStatusActive {
		return false
	}
	if buyer.CurrencyCode != "" && !strings.EqualFold(list.CurrencyCode, buyer.CurrencyCode) {
		return false
	}
	if list.StartsAt != nil && now.Before(*list.StartsAt) {
		return false
	}
	if list.EndsAt != nil && !now.Before(*list.EndsAt) {
		return false
	}
	if len(list.CustomerIDs) == 0 && len(list.CustomerGroupIDs) == 0 {
		return true
	}
	if buyer.CustomerID != nil {
		for _, id := range list.CustomerIDs {
			if id == *buyer.CustomerID {
				return true
			}
		}
	}
	for _, groupID := range list.CustomerGroupIDs {
		for _, buyerGroup := range buyer.CustomerGroupIDs {
			if groupID == buyerGroup {
				return true
			}
		}
	}
	return false
}

// typeRank orders list types for priority tie-breaks. More specific pricing
// wins over broader pricing.
func typeRank(listType string) int {
	switch listType {
	case ListTypeCustomerGroup:
		return 0
	case ListTypeSale:
		return 1
	default:
		return 2
	}
}

// SortLists orders lists by priority descending, ties broken by type rank.
func SortLists(lists []PriceList) {
	sort.SliceStable(lists, func(i, j int) bool {
		if lists[i].Priority != lists[j].Priority {
			return lists[i].Priority > lists[j].Priority
		}
		return typeRank(lists[i].Type) < typeRank(lists[j].Type)
	})
}

// MatchTier returns the first tier covering the quantity, scanning in
// ascending MinQuantity order with Priority as tie-break. Returns nil when no
// tier covers the quantity.
func MatchTier(tiers []Tier, quantity int) *Tier {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].MinQuantity != sorted[j].MinQuantity {
			return sorted[i].MinQuantity < sorted[j].MinQuantity
		}
		return sorted[i].Priority < sorted[j].Priority
	})
	for i := range sorted {
		t := sorted[i]
		if quantity < t.MinQuantity {
			continue
		}
		if t.MaxQuantity != nil && quantity > *t.MaxQuantity {
			continue
		}
		return &t
	}
	return nil
}

// Resolve selects the price for the quantity from the given lists. The first
// eligible list with any covering tier wins; lower-priority lists are never
// consulted even if they would be cheaper. Returns nil when no list covers
// the quantity.
func Resolve(lists []PriceList, quantity int, buyer BuyerContext, now time.Time) *Result {
	eligible := make([]PriceList, 0, len(lists))
	for _, list := range lists {
		if Eligible(list, buyer, now) {
			eligible = append(eligible, list)
		}
	}
	SortLists(eligible)
	for _, list := range eligible {
		if t := MatchTier(list.Tiers, quantity); t != nil {
			return &Result{
				PricePerUnitArea: t.PricePerUnitArea,
				PriceListID:      list.ID,
				PriceListName:    list.Name,
			}
		}
	}
	return nil
}

// LadderFor returns all tiers of the single highest-priority eligible list,
// sorted for display. It never falls through to a second list, so the ladder
// shown always comes from the list that would price the order.
func LadderFor(lists []PriceList, buyer BuyerContext, now time.Time) []Tier {
	eligible := make([]PriceList, 0, len(lists))
	for _, list := range lists {
		if Eligible(list, buyer, now) {
			eligible = append(eligible, list)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	SortLists(eligible)
	tiers := make([]Tier, len(eligible[0].Tiers))
	copy(tiers, eligible[0].Tiers)
	sort.SliceStable(tiers, func(i, j int) bool {
		if tiers[i].MinQuantity != tiers[j].MinQuantity {
			return tiers[i].MinQuantity < tiers[j].MinQuantity
		}
		return tiers[i].Priority < tiers[j].Priority
	})
	return tiers
}
