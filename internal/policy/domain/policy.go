package domain

import (
	capdomain "account-trust-gate/internal/capability/domain"
)

// RuleType identifies a validation rule kind.
type RuleType string

const (
	// RuleSessionValid fails when the session token is blank or, with a
	// session verifier wired, when the underlying session is invalid.
	RuleSessionValid RuleType = "SESSION_VALID"
	// RuleDeviceBinding fails when no device id is present.
	RuleDeviceBinding RuleType = "DEVICE_BINDING"
	// RuleFraudCheck fails when fraud signals are present or the source
	// address is blocked.
	RuleFraudCheck RuleType = "FRAUD_CHECK"
	// RuleCustom evaluates a Rego expression against the context.
	RuleCustom RuleType = "CUSTOM"
)

// ValidationRule is one ordered check inside a policy.
type ValidationRule struct {
	Type RuleType
	// Required rules flip the decision to deny on failure; optional rules
	// only produce warnings.
	Required bool
	// ErrorMessage is reported verbatim on failure.
	ErrorMessage string
	// Expression is the Rego body for CUSTOM rules; it must define `allow`.
	Expression string
}

// CapabilityRequirement demands a presented capability of a given type and level.
type CapabilityRequirement struct {
	CapabilityType  string
	MinimumLevel    int
	ExpiryCheck     bool
	RevocationCheck bool
}

// Policy is a named, versioned set of validation rules and capability
// requirements bound to one or more actions.
type Policy struct {
	Name                   string
	Type                   string
	Rules                  []ValidationRule
	CapabilityRequirements []CapabilityRequirement
	Version                int
	Active                 bool
}

// Clone returns a deep copy so registry readers never alias registry state.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Rules = append([]ValidationRule(nil), p.Rules...)
	cp.CapabilityRequirements = append([]CapabilityRequirement(nil), p.CapabilityRequirements...)
	return &cp
}

// Context is the read-only input to ValidateAction.
type Context struct {
	ActorID      string
	Action       string
	SessionToken string
	DeviceID     string
	SourceIP     string
	FraudSignals []string
	Capabilities []capdomain.Capability
}

// Result is a scored allow/deny decision. All failures are additive: every
// failed rule and capability requirement is reported, not just the first.
type Result struct {
	IsValid     bool
	FailedRules []string
	Warnings    []string
	// ValidationScore is the percentage of rules that passed (100 when none fail).
	ValidationScore int
}
