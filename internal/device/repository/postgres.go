package repository

import (
	"context"
	"database/sql"

	"account-trust-gate/internal/device/domain"
)

// PostgresRepository reads known devices from the known_devices table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a known-device repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// ListForUser returns the user's known devices, most recently seen first.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]domain.KnownDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT fingerprint_hash, user_id, trusted, last_seen
		FROM known_devices
		WHERE user_id = $1
		ORDER BY last_seen DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.KnownDevice
	for rows.Next() {
		var d domain.KnownDevice
		if err := rows.Scan(&d.FingerprintHash, &d.UserID, &d.Trusted, &d.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
