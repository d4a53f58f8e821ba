package formula

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-vloer/internal/common"
)

// AdminHandler exposes formula administration endpoints.
type AdminHandler struct {
	Svc *AdminService
}

// List handles GET /api/v1/admin/formulas.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "formula service not configured", nil)
		return
	}
	formulas, err := h.Svc.List(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if formulas == nil {
		formulas = []Formula{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": formulas})
}

// Get handles GET /api/v1/admin/formulas/{id}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	f, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": f})
}

// Create handles POST /api/v1/admin/formulas.
func (h *AdminHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "formula service not configured", nil)
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	f, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": f})
}

// Update handles PUT /api/v1/admin/formulas/{id}.
func (h *AdminHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	in, ok := h.decodeInput(w, r)
	if !ok {
		return
	}
	f, err := h.Svc.Update(r.Context(), id, in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": f})
}

// Delete handles DELETE /api/v1/admin/formulas/{id}.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateExpressionRequest struct {
	Expression string             `json:"expression"`
	Parameters map[string]float64 `json:"parameters"`
}

// ValidateExpression handles POST /api/v1/admin/formulas/validate. It runs
// the full calculation pipeline without persisting anything, so the admin UI
// can check an expression as it is typed.
func (h *AdminHandler) ValidateExpression(w http.ResponseWriter, r *http.Request) {
	var req validateExpressionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return
	}
	err := ValidateFormula(Formula{Expression: req.Expression, Parameters: req.Parameters})
	if err != nil {
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"valid": false, "error": err.Error()}})
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"valid": true}})
}

func (h *AdminHandler) decodeInput(w http.ResponseWriter, r *http.Request) (FormulaInput, bool) {
	var in FormulaInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "request body must be valid JSON", nil)
		return FormulaInput{}, false
	}
	if strings.TrimSpace(in.Name) == "" || strings.TrimSpace(in.Expression) == "" {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "name and expression are required", nil)
		return FormulaInput{}, false
	}
	return in, true
}

func (h *AdminHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "formula service not configured", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *AdminHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidFormula):
		common.JSONError(w, http.StatusUnprocessableEntity, "INVALID_FORMULA", err.Error(), nil)
	case errors.Is(err, ErrFormulaNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "formula not found", nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}
