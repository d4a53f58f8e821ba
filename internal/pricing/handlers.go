package pricing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-vloer/internal/common"
	"github.com/noah-isme/backend-vloer/internal/formula"
	"github.com/noah-isme/backend-vloer/internal/tier"
)

// Handler exposes quote endpoints.
type Handler struct {
	Svc *Service
}

type quoteRequestBody struct {
	ProductID   uuid.UUID   `json:"product_id"`
	VariantID   uuid.UUID   `json:"variant_id"`
	Quantity    int         `json:"quantity"`
	WidthValue  float64     `json:"width_value"`
	LengthValue float64     `json:"length_value"`
	FormulaID   *uuid.UUID  `json:"formula_id,omitempty"`
	CustomerID  *uuid.UUID  `json:"customer_id,omitempty"`
	GroupIDs    []uuid.UUID `json:"customer_group_ids,omitempty"`
	Currency    string      `json:"currency_code"`
}

// Quote handles POST /api/v1/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	var body quoteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	if body.VariantID == uuid.Nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "variant_id is required", nil)
		return
	}
	q, err := h.Svc.Quote(r.Context(), QuoteRequest{
		ProductID:   body.ProductID,
		VariantID:   body.VariantID,
		Quantity:    body.Quantity,
		WidthValue:  body.WidthValue,
		LengthValue: body.LengthValue,
		FormulaID:   body.FormulaID,
		Buyer: tier.BuyerContext{
			CustomerID:       body.CustomerID,
			CustomerGroupIDs: body.GroupIDs,
			CurrencyCode:     strings.ToUpper(strings.TrimSpace(body.Currency)),
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": q})
}

// StartingFrom handles GET /api/v1/products/{id}/starting-from.
func (h *Handler) StartingFrom(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "pricing service not configured", nil)
		return
	}
	productID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	buyer := tier.BuyerContext{CurrencyCode: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("currency")))}
	for _, raw := range r.URL.Query()["group_id"] {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid group_id", nil)
			return
		}
		buyer.CustomerGroupIDs = append(buyer.CustomerGroupIDs, id)
	}
	sf, err := h.Svc.StartingFrom(r.Context(), productID, buyer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sf})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuote):
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, formula.ErrInvalidFormula):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_FORMULA", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
