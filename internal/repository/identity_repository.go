package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskit/be-fin-approvals/internal/apperr"
	"github.com/campuskit/be-fin-approvals/internal/engine"
)

// IdentityRepository implements engine.IdentityResolver over the users table.
type IdentityRepository struct {
	db *pgxpool.Pool
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// UsersWithRole returns active users holding a role, in stable username
// order so chain building is deterministic.
func (r *IdentityRepository) UsersWithRole(ctx context.Context, role string) ([]engine.UserIdentity, error) {
	query := `
		SELECT username, role
		FROM users
		WHERE role = $1 AND is_active = TRUE
		ORDER BY username ASC
	`

	rows, err := r.db.Query(ctx, query, role)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeUnavailable, "querying users by role")
	}
	defer rows.Close()

	var users []engine.UserIdentity
	for rows.Next() {
		var u engine.UserIdentity
		if err := rows.Scan(&u.Username, &u.Role); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "scanning user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
