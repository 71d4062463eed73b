package repository

import (
	"context"

	"account-trust-gate/internal/capability/domain"
)

// Repository loads durable capability grants for a subject. Read-only: the
// authentication surface uses it to assemble the capabilities presented in a
// validation context; nothing here writes grants.
type Repository interface {
	ListForSubject(ctx context.Context, subject string) ([]domain.Capability, error)
}
