package repository

import (
	"context"
	"time"

	"account-trust-gate/internal/audit/domain"
)

// Repository defines the durable audit mirror. The in-memory ring is the
// source of truth for queries; the mirror exists for retention beyond the
// ring and for external tooling.
type Repository interface {
	Create(ctx context.Context, e *domain.Entry) error
	ListSince(ctx context.Context, since time.Time, limit int32) ([]*domain.Entry, error)
}
