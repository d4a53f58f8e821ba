package formula

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrFormulaNotFound is returned when the requested pricing formula does not
// exist or is inactive. Callers fall back to the plain per-m² pricing path.
var ErrFormulaNotFound = errors.New("formula: not found or inactive")

// Formula is a stored arithmetic pricing expression with default parameters.
type Formula struct {
	ID         uuid.UUID          `json:"id"`
	Name       string             `json:"name"`
	Expression string             `json:"expression"`
	Parameters map[string]float64 `json:"parameters"`
	IsActive   bool               `json:"is_active"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// sampleVariables drives ValidateFormula. The values are synthetic; they only
// exist to surface substitution and arithmetic errors before a formula is
// persisted.
var sampleVariables = map[string]float64{
	"width_value":   100,
	"length_value":  100,
	"markup":        0,
	"price_per_sqm": 120,
}

// CalculatePrice merges the formula's default parameters with call-time
// variables (variables win on collision), evaluates, multiplies by the volume
// multiplier, and floors toward zero to whole minor units. The floor is the
// intended "nice pricing" policy, not a rounding shortcut.
func CalculatePrice(f Formula, vars map[string]float64, volumeMultiplier float64) (int64, error) {
	merged := make(map[string]float64, len(f.Parameters)+len(vars))
	for name, value := range f.Parameters {
		merged[name] = value
	}
	for name, value := range vars {
		merged[name] = value
	}
	value, err := Evaluate(f.Expression, merged)
	if err != nil {
		return 0, err
	}
	total := value * volumeMultiplier
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return 0, fmt.Errorf("%w: result is not a finite number", ErrInvalidFormula)
	}
	return int64(math.Trunc(total)), nil
}

// ValidateFormula runs the full calculation pipeline against sample variables
// so a broken expression is rejected before it is saved. It performs no
// persistence.
func ValidateFormula(f Formula) error {
	_, err := CalculatePrice(f, sampleVariables, 1.0)
	return err
}

// Querier captures the storage lookup the service needs.
type Querier interface {
	GetFormulaByID(ctx context.Context, id uuid.UUID) (Formula, error)
}

// Service resolves stored formulas and prices lines with them.
type Service struct {
	Q Querier
}

// CalculateByID loads an active formula and prices with it. A missing or
// inactive formula yields ErrFormulaNotFound.
func (s *Service) CalculateByID(ctx context.Context, id uuid.UUID, vars map[string]float64, volumeMultiplier float64) (int64, error) {
	if s == nil || s.Q == nil {
		return 0, errors.New("formula service not configured")
	}
	f, err := s.Q.GetFormulaByID(ctx, id)
	if err != nil {
		return 0, err
	}
	if !f.IsActive {
		return 0, ErrFormulaNotFound
	}
	return CalculatePrice(f, vars, volumeMultiplier)
}
