// Package repository provides Postgres-backed implementations of the
// engine's collaborator interfaces. The tables are owned by the dashboard's
// persistence layer; this package only reads them, except for the
// append-only audit log.
package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
	"github.com/campuskit/be-fin-approvals/internal/engine"
)

// HistoryRepository implements engine.HistoryReader over the transactions
// table.
type HistoryRepository struct {
	db *pgxpool.Pool
}

// NewHistoryRepository creates a new HistoryRepository.
func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecentTransactionsBySubmitter returns a submitter's transactions within
// the trailing window, newest first.
func (r *HistoryRepository) RecentTransactionsBySubmitter(ctx context.Context, submitter string, window time.Duration) ([]engine.Transaction, error) {
	query := `
		SELECT id, domain, amount::text, category, submitter, submitter_role,
		       COALESCE(documentation_ref, ''), created_at
		FROM transactions
		WHERE submitter = $1 AND created_at >= $2
		ORDER BY created_at DESC
	`

	rows, err := r.db.Query(ctx, query, submitter, time.Now().Add(-window))
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeUnavailable, "querying submitter transactions")
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// HistoricalAverage returns the mean amount of the trailing sample for a
// domain, or zero when no history exists.
func (r *HistoryRepository) HistoricalAverage(ctx context.Context, domain engine.Domain, sampleSize int) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(AVG(amount), 0)::text
		FROM (
			SELECT amount
			FROM transactions
			WHERE domain = $1
			ORDER BY created_at DESC
			LIMIT $2
		) sample
	`

	var raw string
	if err := r.db.QueryRow(ctx, query, string(domain), sampleSize).Scan(&raw); err != nil {
		return decimal.Decimal{}, apperr.Wrap(err, apperr.ErrCodeUnavailable, "querying historical average")
	}
	mean, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, apperr.Wrap(err, apperr.ErrCodeInternal, "parsing historical average")
	}
	return mean, nil
}

func scanTransactions(rows pgx.Rows) ([]engine.Transaction, error) {
	var out []engine.Transaction
	for rows.Next() {
		var (
			tx     engine.Transaction
			domain string
			amount string
		)
		err := rows.Scan(&tx.ID, &domain, &amount, &tx.Category, &tx.Submitter,
			&tx.SubmitterRole, &tx.DocumentationRef, &tx.CreatedAt)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scanning transaction")
		}
		tx.Domain = engine.Domain(domain)
		tx.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "parsing transaction amount")
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}
