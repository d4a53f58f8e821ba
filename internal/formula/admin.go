package formula

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// AdminStore abstracts persistence for formula administration.
type AdminStore interface {
	Querier
	ListFormulas(ctx context.Context) ([]Formula, error)
	CreateFormula(ctx context.Context, f Formula) (Formula, error)
	UpdateFormula(ctx context.Context, f Formula) (Formula, error)
	DeleteFormula(ctx context.Context, id uuid.UUID) error
}

// AdminService manages stored formulas. A formula is evaluated against
// sample variables before every save so a broken expression never reaches
// the quote path.
type AdminService struct {
	Store      AdminStore
	Invalidate func(ctx context.Context)
}

// FormulaInput is the write payload for creating or updating a formula.
type FormulaInput struct {
	Name       string             `json:"name"`
	Expression string             `json:"expression"`
	Parameters map[string]float64 `json:"parameters"`
	IsActive   bool               `json:"is_active"`
}

func (s *AdminService) invalidate(ctx context.Context) {
	if s.Invalidate != nil {
		s.Invalidate(ctx)
	}
}

// List returns all stored formulas.
func (s *AdminService) List(ctx context.Context) ([]Formula, error) {
	return s.Store.ListFormulas(ctx)
}

// Get fetches one formula.
func (s *AdminService) Get(ctx context.Context, id uuid.UUID) (Formula, error) {
	return s.Store.GetFormulaByID(ctx, id)
}

// Create validates and persists a new formula.
func (s *AdminService) Create(ctx context.Context, in FormulaInput) (Formula, error) {
	f := Formula{
		ID:         uuid.New(),
		Name:       in.Name,
		Expression: in.Expression,
		Parameters: in.Parameters,
		IsActive:   in.IsActive,
	}
	if err := ValidateFormula(f); err != nil {
		return Formula{}, err
	}
	created, err := s.Store.CreateFormula(ctx, f)
	if err != nil {
		return Formula{}, fmt.Errorf("create formula: %w", err)
	}
	s.invalidate(ctx)
	return created, nil
}

// Update validates and persists changes to a formula.
func (s *AdminService) Update(ctx context.Context, id uuid.UUID, in FormulaInput) (Formula, error) {
	f := Formula{
		ID:         id,
		Name:       in.Name,
		Expression: in.Expression,
		Parameters: in.Parameters,
		IsActive:   in.IsActive,
	}
	if err := ValidateFormula(f); err != nil {
		return Formula{}, err
	}
	updated, err := s.Store.UpdateFormula(ctx, f)
	if err != nil {
		return Formula{}, err
	}
	s.invalidate(ctx)
	return updated, nil
}

// Delete removes a formula.
func (s *AdminService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.Store.DeleteFormula(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}
