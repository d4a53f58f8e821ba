package vat

import (
	"regexp"
	"strings"
)

// countryPatterns validates the national part of a VAT number for the EU
// member states the shop actually trades with. Unknown prefixes fall back to
// a length heuristic in checkFormat.
var countryPatterns = map[string]*regexp.Regexp{
	"AT": regexp.MustCompile(`^U\d{8}$`),
	"BE": regexp.MustCompile(`^0\d{9}$`),
	"BG": regexp.MustCompile(`^\d{9,10}$`),
	"CZ": regexp.MustCompile(`^\d{8,10}$`),
	"DE": regexp.MustCompile(`^\d{9}$`),
	"DK": regexp.MustCompile(`^\d{8}$`),
	"EE": regexp.MustCompile(`^\d{9}$`),
	"ES": regexp.MustCompile(`^[A-Z0-9]\d{7}[A-Z0-9]$`),
	"FI": regexp.MustCompile(`^\d{8}$`),
	"FR": regexp.MustCompile(`^[A-Z0-9]{2}\d{9}$`),
	"IE": regexp.MustCompile(`^(\d{7}[A-Z]{1,2}|\d[A-Z0-9+*]\d{5}[A-Z])$`),
	"IT": regexp.MustCompile(`^\d{11}$`),
	"LU": regexp.MustCompile(`^\d{8}$`),
	"NL": regexp.MustCompile(`^\d{9}B\d{2}$`),
	"PL": regexp.MustCompile(`^\d{10}$`),
	"PT": regexp.MustCompile(`^\d{9}$`),
	"RO": regexp.MustCompile(`^\d{2,10}$`),
	"SE": regexp.MustCompile(`^\d{12}$`),
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Za-z0-9]`)

// Normalize strips separators and uppercases a raw VAT number as entered at
// checkout ("nl 8211.34.557.b01" -> "NL821134557B01").
func Normalize(raw string) string {
	return strings.ToUpper(nonAlphanumeric.ReplaceAllString(raw, ""))
}

// splitNumber separates the two-letter country prefix from the national part.
// It reports false when the normalized input is too short to contain both.
func splitNumber(normalized string) (country, rest string, ok bool) {
	if len(normalized) < 3 {
		return "", "", false
	}
	country = normalized[:2]
	rest = normalized[2:]
	for _, c := range country {
		if c < 'A' || c > 'Z' {
			return "", "", false
		}
	}
	return country, rest, true
}

// checkFormat validates the national part against the per-country table. A
// country without a pattern gets the 8-12 character length heuristic so that
// a new member state does not hard-fail checkout.
func checkFormat(country, rest string) bool {
	if pattern, ok := countryPatterns[country]; ok {
		return pattern.MatchString(rest)
	}
	return len(rest) >= 8 && len(rest) <= 12
}
