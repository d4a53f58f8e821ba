package vat

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// TaxLine describes the tax treatment attached to a cart quote.
type TaxLine struct {
	Code                    string `json:"code"`
	Rate                    int64  `json:"rate"`
	ReverseChargePercentage int64  `json:"reverse_charge_percentage,omitempty"`
}

// Tax line codes.
const (
	TaxCodeStandard      = "STANDARD"
	TaxCodeReverseCharge = "REVERSE_CHARGE"
	TaxCodeExport        = "EXPORT"
)

// ReverseChargeAmounts splits a tax-inclusive gross total into net and VAT
// portions at the given rate. Net and VAT are rounded independently so a
// floating intermediate never compounds: net = round(gross / (1+rate)),
// vat = gross - net, both in minor units.
func ReverseChargeAmounts(gross int64, rateBps int64) (net, vat int64) {
	if gross == 0 {
		return 0, 0
	}
	if rateBps <= 0 {
		rateBps = 2100
	}
	divisor := decimal.NewFromInt(10000 + rateBps)
	net = decimal.NewFromInt(gross).
		Mul(decimal.NewFromInt(10000)).
		DivRound(divisor, 0).
		IntPart()
	vat = gross - net
	return net, vat
}

// ReverseCharge computes the VAT deduction for the service's configured rate.
// The amount is surfaced to the buyer as a deduction from the gross total and
// never materialized as a tax line-item adjustment, so upstream promotions
// stay untouched.
func (s *Service) ReverseCharge(gross int64) (net, vat int64) {
	return ReverseChargeAmounts(gross, s.rateBps())
}

// TaxLineFor resolves the tax treatment for a cart: standard-rated domestic
// sales, reverse-charged cross-border B2B sales, or zero-rated exports. The
// registry is consulted at most once.
func (s *Service) TaxLineFor(ctx context.Context, vatNumber, shippingCountry string) TaxLine {
	rate := s.rateBps() / 100
	home := s.homeCountry()
	shipping := strings.ToUpper(strings.TrimSpace(shippingCountry))
	trimmed := strings.TrimSpace(vatNumber)
	if trimmed == "" {
		if shipping == home {
			return TaxLine{Code: TaxCodeStandard, Rate: rate}
		}
		return TaxLine{Code: TaxCodeExport, Rate: 0}
	}
	res := s.ValidateNumber(ctx, trimmed)
	if Decide(res, true, shipping, home) {
		return TaxLine{Code: TaxCodeStandard, Rate: rate}
	}
	return TaxLine{Code: TaxCodeReverseCharge, Rate: 0, ReverseChargePercentage: rate}
}
