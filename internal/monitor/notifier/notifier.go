// Package notifier delivers high-severity alerts to an external channel.
// Delivery is fire-and-forget: a failed notification never fails the check
// that raised the alert.
package notifier

import (
	"context"

	"account-trust-gate/internal/monitor/domain"
)

// Notifier publishes alerts. Callers use it best-effort: log and ignore errors.
type Notifier interface {
	// Notify sends a single alert. Implementations may block briefly; the
	// monitor calls it from a goroutine.
	Notify(ctx context.Context, alert *domain.Alert) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}

// Noop discards all alerts. Used when no channel is configured.
type Noop struct{}

func (Noop) Notify(context.Context, *domain.Alert) error { return nil }

func (Noop) Close() error { return nil }
