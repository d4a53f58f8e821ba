package vat

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-vloer/internal/obs"
)

// Result is the transient outcome of validating a VAT number. It is never
// persisted by this package.
type Result struct {
	Valid          bool   `json:"valid"`
	CountryCode    string `json:"country_code,omitempty"`
	VatNumber      string `json:"vat_number,omitempty"`
	CompanyName    string `json:"company_name,omitempty"`
	CompanyAddress string `json:"company_address,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Registry is the outbound contract to a VIES-compatible lookup endpoint.
type Registry interface {
	CheckVat(ctx context.Context, countryCode, vatNumber string) (RegistryResult, error)
}

// RegistryResult mirrors the registry response payload.
type RegistryResult struct {
	Valid   bool   `json:"valid"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address,omitempty"`
}

// Service decides VAT treatment for checkout. It is stateless; every call is
// request-scoped.
type Service struct {
	Registry    Registry
	HomeCountry string
	RateBps     int64
	Logger      *zerolog.Logger
}

// ValidateNumber normalizes and format-checks a raw VAT number, then confirms
// it against the registry. A format-valid number is accepted with Error set
// when the registry cannot be reached; checkout never blocks on the registry.
func (s *Service) ValidateNumber(ctx context.Context, raw string) Result {
	normalized := Normalize(raw)
	country, rest, ok := splitNumber(normalized)
	if !ok {
		return Result{Valid: false, Error: "vat number too short"}
	}
	if !checkFormat(country, rest) {
		return Result{Valid: false, CountryCode: country, VatNumber: rest, Error: "invalid format"}
	}
	if s.Registry == nil {
		return Result{Valid: true, CountryCode: country, VatNumber: rest}
	}
	resp, err := s.Registry.CheckVat(ctx, country, rest)
	if err != nil {
		countLookup("unavailable")
		if s.Logger != nil {
			s.Logger.Warn().Err(err).Str("country", country).Msg("vat registry unavailable, accepting format-valid number")
		}
		return Result{Valid: true, CountryCode: country, VatNumber: rest, Error: "registry unavailable"}
	}
	if resp.Valid {
		countLookup("valid")
	} else {
		countLookup("invalid")
	}
	return Result{
		Valid:          resp.Valid,
		CountryCode:    country,
		VatNumber:      rest,
		CompanyName:    strings.TrimSpace(resp.Name),
		CompanyAddress: strings.TrimSpace(resp.Address),
	}
}

func countLookup(result string) {
	if obs.VatLookupTotal != nil {
		obs.VatLookupTotal.WithLabelValues(result).Inc()
	}
}

// Decide applies the reverse-charge rules to an already-validated number.
// hasNumber distinguishes "no VAT number given" from an empty result.
func Decide(res Result, hasNumber bool, shippingCountry, homeCountry string) bool {
	shipping := strings.ToUpper(strings.TrimSpace(shippingCountry))
	home := strings.ToUpper(strings.TrimSpace(homeCountry))
	if !hasNumber {
		return shipping == home
	}
	if !res.Valid {
		// A failed B2B claim is charged VAT, never reverse-charged.
		return true
	}
	if shipping == home {
		return true
	}
	if res.CountryCode != shipping {
		// Registered jurisdiction must match where goods ship; otherwise the
		// reverse-charge claim is refused and VAT is charged.
		return true
	}
	return false
}

// ShouldCalculateTax reports whether VAT must be charged for the given buyer.
// A false result means cross-border B2B reverse charge (or an export outside
// the home market when no VAT number is involved).
func (s *Service) ShouldCalculateTax(ctx context.Context, vatNumber, shippingCountry string) bool {
	home := s.homeCountry()
	trimmed := strings.TrimSpace(vatNumber)
	if trimmed == "" {
		return Decide(Result{}, false, shippingCountry, home)
	}
	res := s.ValidateNumber(ctx, trimmed)
	return Decide(res, true, shippingCountry, home)
}

func (s *Service) homeCountry() string {
	if s == nil || strings.TrimSpace(s.HomeCountry) == "" {
		return "NL"
	}
	return strings.ToUpper(strings.TrimSpace(s.HomeCountry))
}

func (s *Service) rateBps() int64 {
	if s == nil || s.RateBps <= 0 {
		return 2100
	}
	return s.RateBps
}
