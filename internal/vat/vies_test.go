package vat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-vloer/internal/resilience"
	"github.com/noah-isme/backend-vloer/internal/vat"
)

func newViesClient(baseURL string) vat.ViesClient {
	return vat.ViesClient{
		BaseURL: baseURL,
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{},
			MaxAttempts: 1,
		},
		Timeout: time.Second,
	}
}

func TestViesClientCheckVat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/check-vat-number", r.URL.Path)

		var payload struct {
			CountryCode string `json:"countryCode"`
			VatNumber   string `json:"vatNumber"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.Equal(t, "NL", payload.CountryCode)
		require.Equal(t, "821134557B01", payload.VatNumber)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"valid":   true,
			"name":    "Vloerhuis BV",
			"address": "Keizersgracht 1, Amsterdam",
		})
	}))
	defer server.Close()

	client := newViesClient(server.URL)
	res, err := client.CheckVat(context.Background(), "NL", "821134557B01")
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Equal(t, "Vloerhuis BV", res.Name)
}

func TestViesClientNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newViesClient(server.URL)
	_, err := client.CheckVat(context.Background(), "DE", "123456789")
	require.Error(t, err)
	require.True(t, errors.Is(err, vat.ErrRegistryUnavailable))
}

func TestViesClientConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := newViesClient(server.URL)
	_, err := client.CheckVat(context.Background(), "DE", "123456789")
	require.Error(t, err)
	require.True(t, errors.Is(err, vat.ErrRegistryUnavailable))
}
