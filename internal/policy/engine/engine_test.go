package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	capdomain "account-trust-gate/internal/capability/domain"
	"account-trust-gate/internal/policy/domain"
	"account-trust-gate/internal/threatintel"
)

type stubVerifier struct{ valid bool }

func (s stubVerifier) TokenValid(string) bool { return s.valid }

type stubBlocks struct{ blocked map[string]bool }

func (s stubBlocks) IsBlocked(ip string) bool { return s.blocked[ip] }

type captureAuditor struct {
	successes []string
	failures  []string
}

func (c *captureAuditor) LogSuccess(_, _, _, resourceID, _ string, _ map[string]string) {
	c.successes = append(c.successes, resourceID)
}

func (c *captureAuditor) LogFailure(_, _, _, resourceID, _, errMsg string, _ map[string]string) {
	c.failures = append(c.failures, resourceID+": "+errMsg)
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(nil, nil, nil, nil, nil, zap.NewNop())
}

func basePolicy(name string) *domain.Policy {
	return &domain.Policy{
		Name:   name,
		Type:   "transactional",
		Active: true,
		Rules: []domain.ValidationRule{
			{Type: domain.RuleSessionValid, Required: true},
			{Type: domain.RuleDeviceBinding, Required: true},
		},
	}
}

func TestRegisterAndUpdatePolicy_Versioning(t *testing.T) {
	e := newTestEngine(t)
	p := basePolicy("withdrawal")
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatalf("RegisterPolicy: %v", err)
	}
	if err := e.MapActionToPolicy("withdraw", "withdrawal"); err != nil {
		t.Fatalf("MapActionToPolicy: %v", err)
	}

	got := e.GetPolicyForAction("withdraw")
	if got == nil || got.Version != 1 {
		t.Fatalf("expected version 1, got %+v", got)
	}

	p.Rules = append(p.Rules, domain.ValidationRule{Type: domain.RuleFraudCheck, Required: true})
	if err := e.UpdatePolicy(p); err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}
	got = e.GetPolicyForAction("withdraw")
	if got.Version != 2 {
		t.Fatalf("expected version 2 after update, got %d", got.Version)
	}
	if len(got.Rules) != 3 {
		t.Fatalf("expected updated rules to be live, got %d", len(got.Rules))
	}
}

func TestUpdatePolicy_UnknownName(t *testing.T) {
	e := newTestEngine(t)
	if err := e.UpdatePolicy(basePolicy("ghost")); err == nil {
		t.Fatal("expected error updating unregistered policy")
	}
}

func TestMapActionToPolicy_UnknownPolicy(t *testing.T) {
	e := newTestEngine(t)
	if err := e.MapActionToPolicy("withdraw", "ghost"); err == nil {
		t.Fatal("expected error mapping to unregistered policy")
	}
}

func TestGetPolicyForAction_LiveResolution(t *testing.T) {
	e := newTestEngine(t)
	if err := e.RegisterPolicy(basePolicy("strict")); err != nil {
		t.Fatal(err)
	}
	lax := &domain.Policy{Name: "lax", Type: "transactional", Active: true}
	if err := e.RegisterPolicy(lax); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("transfer", "strict"); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("transfer", "lax"); err != nil {
		t.Fatal(err)
	}
	if got := e.GetPolicyForAction("transfer"); got.Name != "lax" {
		t.Fatalf("expected remap to resolve live, got %q", got.Name)
	}
}

func TestValidateAction_UnmappedActionAllowsWithWarning(t *testing.T) {
	aud := &captureAuditor{}
	e := NewEngine(nil, nil, nil, aud, nil, zap.NewNop())
	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "acct_1", Action: "ping"})
	if !res.IsValid {
		t.Fatal("unmapped action must be allowed")
	}
	if len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "no policy mapped") {
		t.Fatalf("expected unmapped warning, got %v", res.Warnings)
	}
	if res.ValidationScore != 100 {
		t.Fatalf("expected score 100, got %d", res.ValidationScore)
	}
	if len(aud.successes) != 1 {
		t.Fatalf("expected audit entry for unmapped allow, got %v", aud.successes)
	}
}

func TestValidateAction_InactivePolicyAllowsWithWarning(t *testing.T) {
	e := newTestEngine(t)
	p := basePolicy("frozen")
	p.Active = false
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("transfer", "frozen"); err != nil {
		t.Fatal(err)
	}
	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "acct_1", Action: "transfer"})
	if !res.IsValid || len(res.Warnings) != 1 {
		t.Fatalf("inactive policy should allow with warning, got %+v", res)
	}
}

func TestValidateAction_BlankDeviceFailsExactlyDeviceBinding(t *testing.T) {
	e := newTestEngine(t)
	p := basePolicy("withdrawal")
	p.CapabilityRequirements = []domain.CapabilityRequirement{
		{CapabilityType: "withdrawal", MinimumLevel: 1, ExpiryCheck: true, RevocationCheck: true},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("withdraw", "withdrawal"); err != nil {
		t.Fatal(err)
	}

	res := e.ValidateAction(context.Background(), domain.Context{
		ActorID:      "acct_1",
		Action:       "withdraw",
		SessionToken: "token-ok",
		DeviceID:     "",
		Capabilities: []capdomain.Capability{{
			ID: "cap-1", Type: "withdrawal", Level: 3,
			ExpiresAt: time.Now().Add(time.Hour), Status: capdomain.StatusActive,
		}},
	})
	if res.IsValid {
		t.Fatal("blank device id must deny")
	}
	if len(res.FailedRules) != 1 || res.FailedRules[0] != "Device binding required" {
		t.Fatalf("expected exactly [Device binding required], got %v", res.FailedRules)
	}
	if res.ValidationScore != 50 {
		t.Fatalf("expected score 50 with 1 of 2 rules passing, got %d", res.ValidationScore)
	}
}

func TestValidateAction_AdditiveFailures(t *testing.T) {
	e := newTestEngine(t)
	p := basePolicy("strict")
	p.Rules = append(p.Rules, domain.ValidationRule{Type: domain.RuleFraudCheck, Required: true})
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("transfer", "strict"); err != nil {
		t.Fatal(err)
	}
	res := e.ValidateAction(context.Background(), domain.Context{
		ActorID:      "acct_1",
		Action:       "transfer",
		FraudSignals: []string{"velocity"},
	})
	if res.IsValid {
		t.Fatal("expected deny")
	}
	if len(res.FailedRules) != 3 {
		t.Fatalf("expected all three failures reported, got %v", res.FailedRules)
	}
	if res.ValidationScore != 0 {
		t.Fatalf("expected score 0, got %d", res.ValidationScore)
	}
}

func TestValidateAction_OptionalRuleFailureWarns(t *testing.T) {
	e := newTestEngine(t)
	p := &domain.Policy{
		Name:   "soft",
		Active: true,
		Rules: []domain.ValidationRule{
			{Type: domain.RuleSessionValid, Required: true},
			{Type: domain.RuleDeviceBinding, Required: false, ErrorMessage: "device id recommended"},
		},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("view", "soft"); err != nil {
		t.Fatal(err)
	}
	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "acct_1", Action: "view", SessionToken: "tok"})
	if !res.IsValid {
		t.Fatalf("optional failure must not deny, got %+v", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "device id recommended" {
		t.Fatalf("expected optional failure as warning, got %v", res.Warnings)
	}
	if res.ValidationScore != 50 {
		t.Fatalf("optional failures still count against the score, got %d", res.ValidationScore)
	}
}

func TestValidateAction_InsufficientCapabilityLevel(t *testing.T) {
	e := newTestEngine(t)
	p := &domain.Policy{
		Name:   "admin-ops",
		Active: true,
		CapabilityRequirements: []domain.CapabilityRequirement{
			{CapabilityType: "admin", MinimumLevel: 5},
		},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("delete_account", "admin-ops"); err != nil {
		t.Fatal(err)
	}
	res := e.ValidateAction(context.Background(), domain.Context{
		ActorID: "acct_1",
		Action:  "delete_account",
		Capabilities: []capdomain.Capability{{
			ID: "cap-1", Type: "admin", Level: 2, Status: capdomain.StatusActive,
		}},
	})
	if res.IsValid {
		t.Fatal("level 2 against minimum 5 must deny")
	}
	if len(res.FailedRules) != 1 || !strings.Contains(res.FailedRules[0], "insufficient level") {
		t.Fatalf("expected insufficient level failure, got %v", res.FailedRules)
	}
}

func TestValidateAction_ExpiredAndRevokedCapabilities(t *testing.T) {
	e := newTestEngine(t)
	p := &domain.Policy{
		Name:   "payout",
		Active: true,
		CapabilityRequirements: []domain.CapabilityRequirement{
			{CapabilityType: "payout", MinimumLevel: 1, ExpiryCheck: true, RevocationCheck: true},
		},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("payout", "payout"); err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.nowF = func() time.Time { return fixed }

	cases := []struct {
		name string
		cap  capdomain.Capability
		want string
	}{
		{
			name: "revoked high level",
			cap:  capdomain.Capability{ID: "c1", Type: "payout", Level: 9, Status: capdomain.StatusRevoked},
			want: "revoked",
		},
		{
			name: "expired by status",
			cap:  capdomain.Capability{ID: "c2", Type: "payout", Level: 9, Status: capdomain.StatusExpired},
			want: "expired",
		},
		{
			name: "expired by timestamp",
			cap: capdomain.Capability{
				ID: "c3", Type: "payout", Level: 9,
				ExpiresAt: fixed.Add(-time.Minute), Status: capdomain.StatusActive,
			},
			want: "expired",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := e.ValidateAction(context.Background(), domain.Context{
				ActorID:      "acct_1",
				Action:       "payout",
				Capabilities: []capdomain.Capability{tc.cap},
			})
			if res.IsValid {
				t.Fatal("expected deny")
			}
			if len(res.FailedRules) != 1 || !strings.Contains(res.FailedRules[0], tc.want) {
				t.Fatalf("expected %q failure, got %v", tc.want, res.FailedRules)
			}
		})
	}
}

func TestValidateAction_MissingCapability(t *testing.T) {
	e := newTestEngine(t)
	p := &domain.Policy{
		Name:   "payout",
		Active: true,
		CapabilityRequirements: []domain.CapabilityRequirement{
			{CapabilityType: "payout", MinimumLevel: 1},
		},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("payout", "payout"); err != nil {
		t.Fatal(err)
	}
	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "acct_1", Action: "payout"})
	if res.IsValid || len(res.FailedRules) != 1 || !strings.Contains(res.FailedRules[0], "not found") {
		t.Fatalf("expected not found failure, got %+v", res)
	}
}

func TestValidateAction_SessionVerifierConsulted(t *testing.T) {
	e := NewEngine(stubVerifier{valid: false}, nil, nil, nil, nil, zap.NewNop())
	p := &domain.Policy{
		Name:   "session-only",
		Active: true,
		Rules:  []domain.ValidationRule{{Type: domain.RuleSessionValid, Required: true}},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("read", "session-only"); err != nil {
		t.Fatal(err)
	}
	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "a", Action: "read", SessionToken: "stale"})
	if res.IsValid {
		t.Fatal("verifier rejection must fail the session rule")
	}
}

func TestValidateAction_BlockedSourceFailsFraudCheck(t *testing.T) {
	blocks := stubBlocks{blocked: map[string]bool{"203.0.113.9": true}}
	e := NewEngine(nil, blocks, nil, nil, nil, zap.NewNop())
	p := &domain.Policy{
		Name:   "fraud-only",
		Active: true,
		Rules:  []domain.ValidationRule{{Type: domain.RuleFraudCheck, Required: true}},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("login", "fraud-only"); err != nil {
		t.Fatal(err)
	}
	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "a", Action: "login", SourceIP: "203.0.113.9"})
	if res.IsValid {
		t.Fatal("blocked source must fail the fraud rule")
	}
	res = e.ValidateAction(context.Background(), domain.Context{ActorID: "a", Action: "login", SourceIP: "198.51.100.1"})
	if !res.IsValid {
		t.Fatalf("unblocked source should pass, got %+v", res)
	}
}

func TestValidateAction_ThreatIntelConsulted(t *testing.T) {
	intel := &threatintel.Static{
		BadAddresses:  map[string]bool{"203.0.113.9": true},
		FraudPatterns: map[string]bool{"velocity": true},
	}
	e := NewEngine(nil, nil, intel, nil, nil, zap.NewNop())
	p := &domain.Policy{
		Name:   "fraud-only",
		Active: true,
		Rules:  []domain.ValidationRule{{Type: domain.RuleFraudCheck, Required: true}},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("login", "fraud-only"); err != nil {
		t.Fatal(err)
	}

	// A reputation-feed hit fails the rule even with no presented signals.
	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "a", Action: "login", SourceIP: "203.0.113.9"})
	if res.IsValid {
		t.Fatal("known-bad address must fail the fraud rule")
	}

	// A presented signal matching a known fraud pattern is named in the failure.
	res = e.ValidateAction(context.Background(), domain.Context{
		ActorID: "a", Action: "login", SourceIP: "198.51.100.1",
		FraudSignals: []string{"velocity"},
	})
	if res.IsValid || len(res.FailedRules) != 1 || !strings.Contains(res.FailedRules[0], "velocity") {
		t.Fatalf("expected confirmed-pattern failure naming the signal, got %+v", res)
	}

	// A clean context from a clean address passes.
	res = e.ValidateAction(context.Background(), domain.Context{ActorID: "a", Action: "login", SourceIP: "198.51.100.1"})
	if !res.IsValid {
		t.Fatalf("clean context should pass, got %+v", res)
	}
}

func TestValidateAction_CustomRule(t *testing.T) {
	e := newTestEngine(t)
	p := &domain.Policy{
		Name:   "custom",
		Active: true,
		Rules: []domain.ValidationRule{{
			Type:         domain.RuleCustom,
			Required:     true,
			ErrorMessage: "actor not allowed",
			Expression:   `allow if input.actor == "alice"`,
		}},
	}
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatalf("RegisterPolicy: %v", err)
	}
	if err := e.MapActionToPolicy("export", "custom"); err != nil {
		t.Fatal(err)
	}

	res := e.ValidateAction(context.Background(), domain.Context{ActorID: "alice", Action: "export"})
	if !res.IsValid {
		t.Fatalf("expected allow for alice, got %+v", res)
	}
	res = e.ValidateAction(context.Background(), domain.Context{ActorID: "bob", Action: "export"})
	if res.IsValid || len(res.FailedRules) != 1 || res.FailedRules[0] != "actor not allowed" {
		t.Fatalf("expected custom rule denial for bob, got %+v", res)
	}
}

func TestRegisterPolicy_BadCustomExpression(t *testing.T) {
	e := newTestEngine(t)
	p := &domain.Policy{
		Name:   "broken",
		Active: true,
		Rules: []domain.ValidationRule{{
			Type:       domain.RuleCustom,
			Required:   true,
			Expression: `allow if {`,
		}},
	}
	if err := e.RegisterPolicy(p); err == nil {
		t.Fatal("expected compile error at registration")
	}
}

func TestValidateAction_AuditTrail(t *testing.T) {
	aud := &captureAuditor{}
	e := NewEngine(nil, nil, nil, aud, nil, zap.NewNop())
	p := basePolicy("withdrawal")
	if err := e.RegisterPolicy(p); err != nil {
		t.Fatal(err)
	}
	if err := e.MapActionToPolicy("withdraw", "withdrawal"); err != nil {
		t.Fatal(err)
	}
	e.ValidateAction(context.Background(), domain.Context{ActorID: "acct_1", Action: "withdraw", SessionToken: "tok", DeviceID: "dev"})
	e.ValidateAction(context.Background(), domain.Context{ActorID: "acct_1", Action: "withdraw"})
	if len(aud.successes) != 1 {
		t.Fatalf("expected one success entry, got %v", aud.successes)
	}
	if len(aud.failures) != 1 || !strings.Contains(aud.failures[0], "Valid session required") {
		t.Fatalf("expected one failure entry with rule message, got %v", aud.failures)
	}
}
