package repository

import (
	"context"
	"database/sql"

	"account-trust-gate/internal/capability/domain"
)

// PostgresRepository reads capability grants from the capabilities table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a capability repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListForSubject returns the subject's grants, newest first. Status is stored
// as text and passed through; level interpretation belongs to the policy engine.
func (r *PostgresRepository) ListForSubject(ctx context.Context, subject string) ([]domain.Capability, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, type, level, granted_at, expires_at, status
		FROM capabilities
		WHERE subject = $1
		ORDER BY granted_at DESC`, subject)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Capability
	for rows.Next() {
		var (
			c       domain.Capability
			expires sql.NullTime
			status  string
		)
		if err := rows.Scan(&c.ID, &c.Type, &c.Level, &c.GrantedAt, &expires, &status); err != nil {
			return nil, err
		}
		c.ExpiresAt = expires.Time
		c.Status = domain.Status(status)
		out = append(out, c)
	}
	return out, rows.Err()
}
