package vat

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-vloer/internal/common"
)

// Handler exposes VAT validation and tax decision endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

type validateRequest struct {
	VatNumber string `json:"vat_number"`
}

// Validate handles POST /api/v1/vat/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "vat service not configured", nil)
		return
	}
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if strings.TrimSpace(req.VatNumber) == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "vat_number is required", nil)
		return
	}
	res := h.service.ValidateNumber(r.Context(), req.VatNumber)
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

type taxRequest struct {
	VatNumber       string `json:"vat_number"`
	ShippingCountry string `json:"shipping_country"`
	GrossAmount     int64  `json:"gross_amount"`
}

type taxResponse struct {
	ShouldCalculateTax bool    `json:"should_calculate_tax"`
	TaxLine            TaxLine `json:"tax_line"`
	NetAmount          *int64  `json:"net_amount,omitempty"`
	VatAmount          *int64  `json:"vat_amount,omitempty"`
}

// QuoteTax handles POST /api/v1/quote/tax. When a gross amount is supplied and
// the order reverse-charges, the response includes the net/VAT split the buyer
// would see on an invoice.
func (h *Handler) QuoteTax(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "vat service not configured", nil)
		return
	}
	var req taxRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if strings.TrimSpace(req.ShippingCountry) == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "shipping_country is required", nil)
		return
	}
	if req.GrossAmount < 0 {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "gross_amount must not be negative", nil)
		return
	}

	line := h.service.TaxLineFor(r.Context(), req.VatNumber, req.ShippingCountry)
	resp := taxResponse{
		ShouldCalculateTax: line.Code == TaxCodeStandard,
		TaxLine:            line,
	}
	if line.Code == TaxCodeReverseCharge && req.GrossAmount > 0 {
		net, vatAmount := h.service.ReverseCharge(req.GrossAmount)
		resp.NetAmount = &net
		resp.VatAmount = &vatAmount
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": resp})
}
