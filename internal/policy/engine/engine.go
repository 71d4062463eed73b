package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	capdomain "account-trust-gate/internal/capability/domain"
	"account-trust-gate/internal/policy/domain"
	"account-trust-gate/internal/threatintel"
)

// SessionVerifier reports whether a raw session token maps to a live session.
// Optional; without one, SESSION_VALID only checks that a token is present.
type SessionVerifier interface {
	TokenValid(token string) bool
}

// BlockChecker answers block-list membership for a source address.
type BlockChecker interface {
	IsBlocked(ipAddress string) bool
}

// Auditor receives one entry per decision. Failures inside the auditor are
// its own concern and never surface here.
type Auditor interface {
	LogSuccess(actorID, action, resource, resourceID, sourceAddress string, details map[string]string)
	LogFailure(actorID, action, resource, resourceID, sourceAddress, errMsg string, details map[string]string)
}

// Metrics counts decisions.
type Metrics interface {
	IncDecision(action string, allowed bool)
}

// Engine is a stateless evaluator over a policy registry and external state.
// Policies are registered and mapped to actions; ValidateAction always
// resolves the currently mapped policy, never a cached one.
type Engine struct {
	mu        sync.RWMutex
	policies  map[string]*domain.Policy
	actionMap map[string]string

	sessions SessionVerifier
	blocks   BlockChecker
	intel    threatintel.Lookup
	auditor  Auditor
	metrics  Metrics
	log      *zap.Logger

	nowF func() time.Time
}

// NewEngine returns an engine with an empty registry. sessions, blocks,
// intel, auditor and metrics may each be nil; the corresponding checks or
// side effects are skipped.
func NewEngine(sessions SessionVerifier, blocks BlockChecker, intel threatintel.Lookup, auditor Auditor, metrics Metrics, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		policies:  make(map[string]*domain.Policy),
		actionMap: make(map[string]string),
		sessions:  sessions,
		blocks:    blocks,
		intel:     intel,
		auditor:   auditor,
		metrics:   metrics,
		log:       log,
		nowF:      time.Now,
	}
}

// RegisterPolicy adds a named policy to the registry. CUSTOM rule
// expressions are compile-checked up front so a bad expression is caught at
// registration, not at validation time. Registering an existing name
// replaces it and resets the version.
func (e *Engine) RegisterPolicy(p *domain.Policy) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("policy name required")
	}
	if err := checkCustomRules(p); err != nil {
		return err
	}
	cp := p.Clone()
	if cp.Version <= 0 {
		cp.Version = 1
	}
	e.mu.Lock()
	e.policies[cp.Name] = cp
	e.mu.Unlock()
	e.log.Info("policy registered", zap.String("policy", cp.Name), zap.Int("version", cp.Version))
	return nil
}

// UpdatePolicy replaces an existing policy and increments its version.
func (e *Engine) UpdatePolicy(p *domain.Policy) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("policy name required")
	}
	if err := checkCustomRules(p); err != nil {
		return err
	}
	cp := p.Clone()
	e.mu.Lock()
	old, ok := e.policies[cp.Name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("policy %q not registered", cp.Name)
	}
	cp.Version = old.Version + 1
	e.policies[cp.Name] = cp
	e.mu.Unlock()
	e.log.Info("policy updated", zap.String("policy", cp.Name), zap.Int("version", cp.Version))
	return nil
}

// MapActionToPolicy binds an action to a registered policy by name.
func (e *Engine) MapActionToPolicy(action, policyName string) error {
	if action == "" {
		return fmt.Errorf("action required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.policies[policyName]; !ok {
		return fmt.Errorf("policy %q not registered", policyName)
	}
	e.actionMap[action] = policyName
	return nil
}

// GetPolicyForAction resolves the policy currently mapped to an action, or
// nil when the action is unmapped.
func (e *Engine) GetPolicyForAction(action string) *domain.Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	name, ok := e.actionMap[action]
	if !ok {
		return nil
	}
	return e.policies[name].Clone()
}

func checkCustomRules(p *domain.Policy) error {
	for i, r := range p.Rules {
		if r.Type != domain.RuleCustom {
			continue
		}
		if _, err := compileCustomRule(r.Expression); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

// ValidateAction evaluates the policy mapped to the context's action and
// returns a scored decision. Unmapped actions are allowed with a warning so
// an unconfigured action never breaks an unrelated flow; the audit entry
// makes it visible. All rule failures are additive: every failed required
// rule and unmet capability requirement is reported, not just the first.
func (e *Engine) ValidateAction(ctx context.Context, vc domain.Context) domain.Result {
	p := e.GetPolicyForAction(vc.Action)
	if p == nil {
		res := domain.Result{
			IsValid:         true,
			Warnings:        []string{"no policy mapped for action " + vc.Action},
			ValidationScore: 100,
		}
		e.log.Warn("action has no mapped policy, allowing", zap.String("action", vc.Action), zap.String("actor", vc.ActorID))
		e.record(vc, nil, res)
		return res
	}
	if !p.Active {
		res := domain.Result{
			IsValid:         true,
			Warnings:        []string{"policy " + p.Name + " is inactive"},
			ValidationScore: 100,
		}
		e.log.Warn("mapped policy inactive, allowing", zap.String("action", vc.Action), zap.String("policy", p.Name))
		e.record(vc, p, res)
		return res
	}

	res := domain.Result{IsValid: true}
	passed := 0
	for _, r := range p.Rules {
		ok, msg := e.evaluateRule(ctx, r, &vc)
		if ok {
			passed++
			continue
		}
		if r.Required {
			res.IsValid = false
			res.FailedRules = append(res.FailedRules, msg)
		} else {
			res.Warnings = append(res.Warnings, msg)
		}
	}
	if n := len(p.Rules); n > 0 {
		res.ValidationScore = passed * 100 / n
	} else {
		res.ValidationScore = 100
	}

	now := e.nowF()
	for _, req := range p.CapabilityRequirements {
		if msg := checkCapability(req, vc.Capabilities, now); msg != "" {
			res.IsValid = false
			res.FailedRules = append(res.FailedRules, msg)
		}
	}

	e.record(vc, p, res)
	return res
}

func (e *Engine) evaluateRule(ctx context.Context, r domain.ValidationRule, vc *domain.Context) (bool, string) {
	msg := r.ErrorMessage
	switch r.Type {
	case domain.RuleSessionValid:
		if msg == "" {
			msg = "Valid session required"
		}
		if strings.TrimSpace(vc.SessionToken) == "" {
			return false, msg
		}
		if e.sessions != nil && !e.sessions.TokenValid(vc.SessionToken) {
			return false, msg
		}
		return true, ""
	case domain.RuleDeviceBinding:
		if msg == "" {
			msg = "Device binding required"
		}
		if strings.TrimSpace(vc.DeviceID) == "" {
			return false, msg
		}
		return true, ""
	case domain.RuleFraudCheck:
		if msg == "" {
			msg = "Fraud check failed"
		}
		if len(vc.FraudSignals) > 0 {
			// A signal matching a known fraud pattern is named in the
			// failure so the caller gets actionable feedback.
			if e.intel != nil {
				for _, s := range vc.FraudSignals {
					if e.intel.MatchesFraudPattern(ctx, s) {
						return false, msg + ": known fraud pattern " + s
					}
				}
			}
			return false, msg
		}
		if e.blocks != nil && vc.SourceIP != "" && e.blocks.IsBlocked(vc.SourceIP) {
			return false, msg
		}
		if e.intel != nil && vc.SourceIP != "" && e.intel.IsKnownBadAddress(ctx, vc.SourceIP) {
			return false, msg
		}
		return true, ""
	case domain.RuleCustom:
		if msg == "" {
			msg = "Custom rule failed"
		}
		compiler, err := compileCustomRule(r.Expression)
		if err != nil {
			e.log.Error("custom rule compile failed", zap.Error(err))
			return false, msg
		}
		allowed, err := evaluateCustomRule(ctx, compiler, vc)
		if err != nil {
			e.log.Error("custom rule evaluation failed", zap.Error(err))
			return false, msg
		}
		if !allowed {
			return false, msg
		}
		return true, ""
	default:
		e.log.Warn("unknown rule type, skipping", zap.String("type", string(r.Type)))
		return true, ""
	}
}

// checkCapability finds the presented capability matching the requirement and
// returns an empty string when it satisfies every requested check. When
// several capabilities share the type, the highest level wins.
func checkCapability(req domain.CapabilityRequirement, presented []capdomain.Capability, now time.Time) string {
	var match *capdomain.Capability
	for i := range presented {
		c := &presented[i]
		if c.Type != req.CapabilityType {
			continue
		}
		if match == nil || c.Level > match.Level {
			match = c
		}
	}
	if match == nil {
		return "Capability " + req.CapabilityType + " not found"
	}
	if req.RevocationCheck && match.Status == capdomain.StatusRevoked {
		return "Capability " + req.CapabilityType + " revoked"
	}
	if req.ExpiryCheck && (match.Status == capdomain.StatusExpired || (!match.ExpiresAt.IsZero() && now.After(match.ExpiresAt))) {
		return "Capability " + req.CapabilityType + " expired"
	}
	if match.Level < req.MinimumLevel {
		return "Capability " + req.CapabilityType + " insufficient level"
	}
	return ""
}

func (e *Engine) record(vc domain.Context, p *domain.Policy, res domain.Result) {
	if e.metrics != nil {
		e.metrics.IncDecision(vc.Action, res.IsValid)
	}
	if e.auditor == nil {
		return
	}
	details := map[string]string{
		"score": strconv.Itoa(res.ValidationScore),
	}
	if p != nil {
		details["policy"] = p.Name
		details["policy_version"] = strconv.Itoa(p.Version)
	}
	if len(res.Warnings) > 0 {
		details["warnings"] = strings.Join(res.Warnings, "; ")
	}
	if res.IsValid {
		e.auditor.LogSuccess(vc.ActorID, "policy.validate", "action", vc.Action, vc.SourceIP, details)
		return
	}
	e.auditor.LogFailure(vc.ActorID, "policy.validate", "action", vc.Action, vc.SourceIP, strings.Join(res.FailedRules, "; "), details)
}
