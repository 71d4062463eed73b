package audit

import (
	"context"
	"time"

	"account-trust-gate/internal/audit/domain"
	auditrepo "account-trust-gate/internal/audit/repository"
)

// writeTimeout bounds a single mirror write so a slow database never stalls
// the caller holding an audit entry.
const writeTimeout = 3 * time.Second

// RepositorySink mirrors entries to a durable Repository.
type RepositorySink struct {
	repo auditrepo.Repository
}

// NewRepositorySink returns a sink persisting entries through repo.
func NewRepositorySink(repo auditrepo.Repository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Write(entry *domain.Entry) error {
	if s.repo == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return s.repo.Create(ctx, entry)
}
