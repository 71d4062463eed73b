package main

import (
	"go.uber.org/zap"

	"account-trust-gate/internal/audit"
	"account-trust-gate/internal/device"
	"account-trust-gate/internal/monitor"
	"account-trust-gate/internal/policy/domain"
	"account-trust-gate/internal/policy/engine"
	"account-trust-gate/internal/session"
	atgotel "account-trust-gate/internal/telemetry/otel"
	"account-trust-gate/internal/threatintel"
)

// gate bundles the subsystem services behind one handle for the host process.
// The auth layer embeds the same pieces; this binary only keeps them running.
type gate struct {
	sessions *session.Manager
	monitor  *monitor.Monitor
	devices  *device.Service
	audit    *audit.Logger
	engine   *engine.Engine
	logger   *zap.Logger
}

func newGate(sessions *session.Manager, mon *monitor.Monitor, devices *device.Service, intel threatintel.Lookup, auditLog *audit.Logger, counters *atgotel.Counters, logger *zap.Logger) *gate {
	return &gate{
		sessions: sessions,
		monitor:  mon,
		devices:  devices,
		audit:    auditLog,
		engine:   engine.NewEngine(sessions, mon, intel, auditLog, counters, logger),
		logger:   logger,
	}
}

// registerBaselinePolicies installs the default policy set: a session and
// device gate on ordinary account actions and a capability-gated policy on
// money movement. Consumers replace or extend these at runtime.
func (g *gate) registerBaselinePolicies() error {
	standard := &domain.Policy{
		Name:   "account-standard",
		Type:   "account",
		Active: true,
		Rules: []domain.ValidationRule{
			{Type: domain.RuleSessionValid, Required: true, ErrorMessage: "Valid session required"},
			{Type: domain.RuleDeviceBinding, Required: true, ErrorMessage: "Device binding required"},
			{Type: domain.RuleFraudCheck, Required: true, ErrorMessage: "Fraud check failed"},
		},
	}
	withdrawal := &domain.Policy{
		Name:   "account-withdrawal",
		Type:   "transactional",
		Active: true,
		Rules: []domain.ValidationRule{
			{Type: domain.RuleSessionValid, Required: true, ErrorMessage: "Valid session required"},
			{Type: domain.RuleDeviceBinding, Required: true, ErrorMessage: "Device binding required"},
			{Type: domain.RuleFraudCheck, Required: true, ErrorMessage: "Fraud check failed"},
		},
		CapabilityRequirements: []domain.CapabilityRequirement{
			{CapabilityType: "withdrawal", MinimumLevel: 1, ExpiryCheck: true, RevocationCheck: true},
		},
	}

	for _, p := range []*domain.Policy{standard, withdrawal} {
		if err := g.engine.RegisterPolicy(p); err != nil {
			return err
		}
	}
	mappings := map[string]string{
		"account.update":   "account-standard",
		"account.close":    "account-standard",
		"account.withdraw": "account-withdrawal",
		"account.transfer": "account-withdrawal",
	}
	for action, policy := range mappings {
		if err := g.engine.MapActionToPolicy(action, policy); err != nil {
			return err
		}
	}
	return nil
}
