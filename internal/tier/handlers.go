package tier

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-vloer/internal/common"
)

// Handler exposes the public tier ladder endpoint.
type Handler struct {
	Svc *Service
}

// TiersForVariant handles GET /api/v1/variants/{id}/tiers. Buyer context
// comes from query parameters so storefront pages can render the ladder for
// an anonymous or group-scoped visitor.
func (h *Handler) TiersForVariant(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "tier service not configured", nil)
		return
	}
	variantID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid variant id", nil)
		return
	}
	buyer, err := buyerFromQuery(r)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	tiers, err := h.Svc.TiersForVariant(r.Context(), variantID, buyer)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load tiers", nil)
		return
	}
	if tiers == nil {
		tiers = []Tier{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": tiers})
}

func buyerFromQuery(r *http.Request) (BuyerContext, error) {
	q := r.URL.Query()
	buyer := BuyerContext{CurrencyCode: strings.ToUpper(strings.TrimSpace(q.Get("currency")))}
	if raw := strings.TrimSpace(q.Get("customer_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return BuyerContext{}, errors.New("invalid customer_id")
		}
		buyer.CustomerID = &id
	}
	for _, raw := range q["group_id"] {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return BuyerContext{}, errors.New("invalid group_id")
		}
		buyer.CustomerGroupIDs = append(buyer.CustomerGroupIDs, id)
	}
	return buyer, nil
}

// AdminHandler exposes price list administration endpoints.
type AdminHandler struct {
	Svc *AdminService
}

// List handles GET /api/v1/admin/price-lists.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "admin service not configured", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	lists, total, err := h.Svc.ListPriceLists(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       lists,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: int(total)},
	})
}

// Get handles GET /api/v1/admin/price-lists/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	list, err := h.Svc.GetPriceList(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": list})
}

// Create handles POST /api/v1/admin/price-lists.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "admin service not configured", nil)
		return
	}
	var in PriceListInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	list, err := h.Svc.CreatePriceList(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": list})
}

// Update handles PUT /api/v1/admin/price-lists/{id}.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var in PriceListInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	list, err := h.Svc.UpdatePriceList(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": list})
}

// Delete handles DELETE /api/v1/admin/price-lists/{id}.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Svc.DeletePriceList(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateTier handles POST /api/v1/admin/price-lists/{id}/tiers.
func (h *AdminHandler) CreateTier(w http.ResponseWriter, r *http.Request) {
	listID, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var in TierInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	t, err := h.Svc.CreateTier(r.Context(), listID, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": t})
}

// UpdateTier handles PUT /api/v1/admin/tiers/{id}.
func (h *AdminHandler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var in TierInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	t, err := h.Svc.UpdateTier(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": t})
}

// DeleteTier handles DELETE /api/v1/admin/tiers/{id}.
func (h *AdminHandler) DeleteTier(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Svc.DeleteTier(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type linkVariantRequest struct {
	VariantID uuid.UUID `json:"variant_id"`
}

// LinkVariant handles POST /api/v1/admin/price-lists/{id}/variants.
func (h *AdminHandler) LinkVariant(w http.ResponseWriter, r *http.Request) {
	listID, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req linkVariantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VariantID == uuid.Nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "variant_id is required", nil)
		return
	}
	if err := h.Svc.LinkVariant(r.Context(), listID, req.VariantID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UnlinkVariant handles DELETE /api/v1/admin/price-lists/{id}/variants/{variantId}.
func (h *AdminHandler) UnlinkVariant(w http.ResponseWriter, r *http.Request) {
	listID, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	variantID, err := uuid.Parse(chi.URLParam(r, "variantId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid variant id", nil)
		return
	}
	if err := h.Svc.UnlinkVariant(r.Context(), listID, variantID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) parseID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "admin service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	var appErr *common.AppError
	switch {
	case errors.As(err, &appErr):
		common.JSONError(w, appErr.HTTPStatus, appErr.Code, appErr.Message, appErr.Details)
	case errors.As(err, &verrs):
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "validation failed", map[string]any{"fields": fields})
	case errors.Is(err, ErrInvalidWindow), errors.Is(err, ErrInvalidRange):
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", err.Error(), nil)
	case errors.Is(err, ErrPriceListNotFound), errors.Is(err, ErrTierNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
