package repo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/backend-vloer/internal/formula"
)

// FormulaStore persists pricing formulas. Parameters live in a JSONB column
// so an administrator can add a new knob without a schema change.
type FormulaStore struct {
	Pool *pgxpool.Pool
}

func scanFormula(row pgx.Row) (formula.Formula, error) {
	var (
		f      formula.Formula
		params []byte
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Expression, &params, &f.IsActive, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return formula.Formula{}, err
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &f.Parameters); err != nil {
			return formula.Formula{}, err
		}
	}
	return f, nil
}

// GetFormulaByID fetches one formula.
func (s *FormulaStore) GetFormulaByID(ctx context.Context, id uuid.UUID) (formula.Formula, error) {
	if s == nil || s.Pool == nil {
		return formula.Formula{}, ErrStoreUnavailable
	}
	row := s.Pool.QueryRow(ctx, `SELECT id, name, expression, parameters, is_active, created_at, updated_at
FROM pricing_formulas WHERE id = $1`, id)
	f, err := scanFormula(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return formula.Formula{}, formula.ErrFormulaNotFound
	}
	return f, err
}

// ListFormulas returns all formulas ordered by name.
func (s *FormulaStore) ListFormulas(ctx context.Context) ([]formula.Formula, error) {
	if s == nil || s.Pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, name, expression, parameters, is_active, created_at, updated_at
FROM pricing_formulas ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var formulas []formula.Formula
	for rows.Next() {
		f, err := scanFormula(rows)
		if err != nil {
			return nil, err
		}
		formulas = append(formulas, f)
	}
	return formulas, rows.Err()
}

// CreateFormula inserts a formula.
func (s *FormulaStore) CreateFormula(ctx context.Context, f formula.Formula) (formula.Formula, error) {
	if s == nil || s.Pool == nil {
		return formula.Formula{}, ErrStoreUnavailable
	}
	params, err := json.Marshal(f.Parameters)
	if err != nil {
		return formula.Formula{}, err
	}
	row := s.Pool.QueryRow(ctx, `INSERT INTO pricing_formulas (id, name, expression, parameters, is_active)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at, updated_at`, f.ID, f.Name, f.Expression, params, f.IsActive)
	if err := row.Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		return formula.Formula{}, err
	}
	return f, nil
}

// UpdateFormula persists changes to an existing formula.
func (s *FormulaStore) UpdateFormula(ctx context.Context, f formula.Formula) (formula.Formula, error) {
	if s == nil || s.Pool == nil {
		return formula.Formula{}, ErrStoreUnavailable
	}
	params, err := json.Marshal(f.Parameters)
	if err != nil {
		return formula.Formula{}, err
	}
	row := s.Pool.QueryRow(ctx, `UPDATE pricing_formulas SET
name = $2, expression = $3, parameters = $4, is_active = $5, updated_at = now()
WHERE id = $1
RETURNING created_at, updated_at`, f.ID, f.Name, f.Expression, params, f.IsActive)
	if err := row.Scan(&f.CreatedAt, &f.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return formula.Formula{}, formula.ErrFormulaNotFound
		}
		return formula.Formula{}, err
	}
	return f, nil
}

// DeleteFormula removes a formula.
func (s *FormulaStore) DeleteFormula(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.Pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.Pool.Exec(ctx, `DELETE FROM pricing_formulas WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return formula.ErrFormulaNotFound
	}
	return nil
}
