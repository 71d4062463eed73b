package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"account-trust-gate/internal/audit/domain"
)

// PostgresRepository persists audit entries to the audit_entries table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit repository backed by the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts one audit entry. The entry must have ID and Timestamp set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.Entry) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, actor_id, action, resource, resource_id, success, error, details, source_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ActorID, e.Action, e.Resource, nullString(e.ResourceID), e.Success,
		nullString(e.Error), details, nullString(e.SourceAddress), e.Timestamp,
	)
	return err
}

// ListSince returns entries created at or after since, oldest first, up to limit rows.
func (r *PostgresRepository) ListSince(ctx context.Context, since time.Time, limit int32) ([]*domain.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_id, action, resource, resource_id, success, error, details, source_address, created_at
		FROM audit_entries
		WHERE created_at >= $1
		ORDER BY created_at ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Entry
	for rows.Next() {
		var (
			e          domain.Entry
			resourceID sql.NullString
			errMsg     sql.NullString
			source     sql.NullString
			details    []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Action, &e.Resource, &resourceID, &e.Success, &errMsg, &details, &source, &e.Timestamp); err != nil {
			return nil, err
		}
		e.ResourceID = resourceID.String
		e.Error = errMsg.String
		e.SourceAddress = source.String
		if len(details) > 0 {
			_ = json.Unmarshal(details, &e.Details)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
