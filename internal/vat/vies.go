package vat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-vloer/internal/resilience"
)

// ErrRegistryUnavailable wraps transport and non-200 failures from the VAT
// registry. Callers recover from it locally by accepting the format-valid
// number; it never propagates to the buyer.
var ErrRegistryUnavailable = errors.New("vat: registry unavailable")

// ViesClient checks VAT numbers against a VIES-compatible REST endpoint.
type ViesClient struct {
	BaseURL string
	HTTP    *resilience.HTTPClient
	Timeout time.Duration
}

type viesRequest struct {
	CountryCode string `json:"countryCode"`
	VatNumber   string `json:"vatNumber"`
}

// CheckVat performs the single outbound lookup. The request is bounded by the
// configured timeout and is never retried here; one degraded answer per call.
func (c ViesClient) CheckVat(ctx context.Context, countryCode, vatNumber string) (RegistryResult, error) {
	if c.HTTP == nil {
		return RegistryResult{}, fmt.Errorf("%w: client not configured", ErrRegistryUnavailable)
	}
	payload, err := json.Marshal(viesRequest{CountryCode: countryCode, VatNumber: vatNumber})
	if err != nil {
		return RegistryResult{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return RegistryResult{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(callCtx, req)
	if err != nil {
		return RegistryResult{}, fmt.Errorf("%w: %v", ErrRegistryUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return RegistryResult{}, fmt.Errorf("%w: status %d", ErrRegistryUnavailable, resp.StatusCode)
	}
	var out RegistryResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RegistryResult{}, fmt.Errorf("%w: decode response: %v", ErrRegistryUnavailable, err)
	}
	return out, nil
}

func (c ViesClient) endpoint() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if base == "" {
		base = "https://ec.europa.eu/taxation_customs/vies/rest-api"
	}
	return base + "/check-vat-number"
}
