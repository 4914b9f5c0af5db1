package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
	"github.com/campuskit/be-fin-approvals/internal/engine"
)

// BudgetRepository implements engine.BudgetReader over the budgets table.
type BudgetRepository struct {
	db *pgxpool.Pool
}

// NewBudgetRepository creates a new BudgetRepository.
func NewBudgetRepository(db *pgxpool.Pool) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// ActiveBudget returns the current allocation for a domain. A domain with no
// active budget yields a zero snapshot, which disables the exceedance check.
func (r *BudgetRepository) ActiveBudget(ctx context.Context, domain engine.Domain) (engine.BudgetSnapshot, error) {
	query := `
		SELECT total_amount::text, spent_amount::text
		FROM budgets
		WHERE domain = $1 AND is_active = TRUE
		ORDER BY created_at DESC
		LIMIT 1
	`

	var total, spent string
	err := r.db.QueryRow(ctx, query, string(domain)).Scan(&total, &spent)
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.BudgetSnapshot{}, nil
	}
	if err != nil {
		return engine.BudgetSnapshot{}, apperr.Wrap(err, apperr.ErrCodeUnavailable, "querying active budget")
	}

	snapshot := engine.BudgetSnapshot{}
	if snapshot.Total, err = decimal.NewFromString(total); err != nil {
		return engine.BudgetSnapshot{}, apperr.Wrap(err, apperr.ErrCodeInternal, "parsing budget total")
	}
	if snapshot.Spent, err = decimal.NewFromString(spent); err != nil {
		return engine.BudgetSnapshot{}, apperr.Wrap(err, apperr.ErrCodeInternal, "parsing budget spent")
	}
	return snapshot, nil
}
