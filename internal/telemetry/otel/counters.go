package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Counters implements the monitor and policy engine metric hooks on OTel
// counter instruments. All increments are recorded against a background
// context; the counters are wired into synchronous call paths and must not
// inherit request deadlines.
type Counters struct {
	attempts  otelmetric.Int64Counter
	alerts    otelmetric.Int64Counter
	blocked   otelmetric.Int64Counter
	decisions otelmetric.Int64Counter
}

// NewCounters builds the instrument set on the given MeterProvider.
func NewCounters(mp *metric.MeterProvider) (*Counters, error) {
	meter := mp.Meter("atg")
	attempts, err := meter.Int64Counter("atg.login_attempts",
		otelmetric.WithDescription("Login attempts recorded by the security monitor"))
	if err != nil {
		return nil, fmt.Errorf("login_attempts counter: %w", err)
	}
	alerts, err := meter.Int64Counter("atg.alerts",
		otelmetric.WithDescription("Security alerts raised"))
	if err != nil {
		return nil, fmt.Errorf("alerts counter: %w", err)
	}
	blocked, err := meter.Int64Counter("atg.blocked_sources",
		otelmetric.WithDescription("Source addresses added to the block-list"))
	if err != nil {
		return nil, fmt.Errorf("blocked_sources counter: %w", err)
	}
	decisions, err := meter.Int64Counter("atg.policy_decisions",
		otelmetric.WithDescription("Policy engine allow/deny decisions"))
	if err != nil {
		return nil, fmt.Errorf("policy_decisions counter: %w", err)
	}
	return &Counters{attempts: attempts, alerts: alerts, blocked: blocked, decisions: decisions}, nil
}

// IncAttempt records one login attempt.
func (c *Counters) IncAttempt(success bool) {
	c.attempts.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.Bool("success", success)))
}

// IncAlert records one raised alert.
func (c *Counters) IncAlert(alertType, severity string) {
	c.alerts.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("type", alertType),
		attribute.String("severity", severity)))
}

// IncBlocked records one block-list addition.
func (c *Counters) IncBlocked() {
	c.blocked.Add(context.Background(), 1)
}

// IncDecision records one policy decision.
func (c *Counters) IncDecision(action string, allowed bool) {
	c.decisions.Add(context.Background(), 1, otelmetric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("allowed", allowed)))
}
