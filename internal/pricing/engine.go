package pricing

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-vloer/internal/tier"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// UnitArea converts plank dimensions in centimeters to square meters.
func UnitArea(widthValue, lengthValue float64) float64 {
	return widthValue * lengthValue / 10000
}

// SimpleLineTotal prices a line without a formula: unit area times the price
// per square meter, times quantity, floored toward zero so a computed price
// never rounds up against the buyer.
func SimpleLineTotal(widthValue, lengthValue float64, pricePerUnitArea Money, quantity int) Money {
	total := UnitArea(widthValue, lengthValue) * float64(pricePerUnitArea) * float64(quantity)
	return Money(math.Trunc(total))
}

// QuoteKey builds the deterministic cache key for a quote. Buyer identity is
// reduced to sorted group IDs and currency so customers in the same group
// share cache entries; the raw customer ID never enters the key.
func QuoteKey(productID, variantID uuid.UUID, widthValue, lengthValue float64, quantity int, buyer tier.BuyerContext) string {
	groups := make([]string, 0, len(buyer.CustomerGroupIDs))
	for _, id := range buyer.CustomerGroupIDs {
		groups = append(groups, id.String())
	}
	sort.Strings(groups)
	return fmt.Sprintf("quote:%s:%s:%gx%g:q%d:%s:%s",
		productID, variantID, widthValue, lengthValue, quantity,
		strings.ToUpper(buyer.CurrencyCode), strings.Join(groups, ","))
}

// StartingFromKey builds the cache key for a product's lowest entry price.
func StartingFromKey(productID uuid.UUID, buyer tier.BuyerContext) string {
	groups := make([]string, 0, len(buyer.CustomerGroupIDs))
	for _, id := range buyer.CustomerGroupIDs {
		groups = append(groups, id.String())
	}
	sort.Strings(groups)
	return fmt.Sprintf("starting-from:%s:%s:%s",
		productID, strings.ToUpper(buyer.CurrencyCode), strings.Join(groups, ","))
}
