package repository

import (
	"context"

	"account-trust-gate/internal/device/domain"
)

// Repository loads known devices from the persistence layer. Read-only: this
// subsystem never writes durable device records.
type Repository interface {
	ListForUser(ctx context.Context, userID string) ([]domain.KnownDevice, error)
}
