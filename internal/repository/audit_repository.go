package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
	"github.com/campuskit/be-fin-approvals/internal/engine"
)

// AuditRepository implements engine.AuditSink over the approval_audit_log
// table. The table carries a delete-prevention trigger; Append is the only
// mutation exposed.
type AuditRepository struct {
	db *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append durably inserts one audit entry and stamps its id and timestamp.
func (r *AuditRepository) Append(ctx context.Context, entry *engine.AuditEntry) error {
	var payloadJSON []byte
	if entry.Payload != nil {
		var err error
		payloadJSON, err = json.Marshal(entry.Payload)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "marshaling audit payload")
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO approval_audit_log
		    (id, action, domain, transaction_id, actor, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING performed_at
	`

	return r.db.QueryRow(ctx, query,
		entry.ID,
		entry.Action,
		string(entry.Domain),
		entry.TransactionID,
		entry.Actor,
		payloadJSON,
	).Scan(&entry.Timestamp)
}

// ByTransaction returns the full audit trail for a transaction ordered
// oldest-first.
func (r *AuditRepository) ByTransaction(ctx context.Context, transactionID string) ([]*engine.AuditEntry, error) {
	query := `
		SELECT id, action, domain, transaction_id, actor, performed_at, payload
		FROM approval_audit_log
		WHERE transaction_id = $1
		ORDER BY performed_at ASC
	`

	rows, err := r.db.Query(ctx, query, transactionID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeUnavailable, "querying audit log")
	}
	defer rows.Close()

	return scanAuditEntries(rows)
}

func scanAuditEntries(rows pgx.Rows) ([]*engine.AuditEntry, error) {
	var entries []*engine.AuditEntry
	for rows.Next() {
		entry := &engine.AuditEntry{}
		var (
			domain      string
			payloadJSON []byte
		)
		err := rows.Scan(&entry.ID, &entry.Action, &domain, &entry.TransactionID,
			&entry.Actor, &entry.Timestamp, &payloadJSON)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scanning audit entry")
		}
		entry.Domain = engine.Domain(domain)
		if payloadJSON != nil {
			if err := json.Unmarshal(payloadJSON, &entry.Payload); err != nil {
				return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "unmarshaling audit payload")
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
