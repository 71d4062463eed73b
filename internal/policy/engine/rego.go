package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/rego"

	"account-trust-gate/internal/policy/domain"
)

const customRulePackage = "atg.rules"

// compileCustomRule compiles a CUSTOM rule expression. An expression may be a
// full Rego module; a bare rule body gets wrapped into the atg.rules package
// with a deny-by-default allow.
func compileCustomRule(expression string) (*ast.Compiler, error) {
	src := strings.TrimSpace(expression)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	if !strings.HasPrefix(src, "package ") {
		src = "package " + customRulePackage + "\n\ndefault allow := false\n\n" + src + "\n"
	}
	compiler, err := ast.CompileModules(map[string]string{"rule.rego": src})
	if err != nil {
		return nil, fmt.Errorf("compile rule: %w", err)
	}
	return compiler, nil
}

// evaluateCustomRule runs a compiled CUSTOM rule against the validation
// context and reports whether data.atg.rules.allow evaluated to true.
func evaluateCustomRule(ctx context.Context, compiler *ast.Compiler, vc *domain.Context) (bool, error) {
	q := rego.New(
		rego.Query("data."+customRulePackage+".allow"),
		rego.Compiler(compiler),
		rego.Input(buildRuleInput(vc)),
	)
	rs, err := q.Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("eval rule: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, fmt.Errorf("rule query returned no result")
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("rule allow is not boolean")
	}
	return allowed, nil
}

func buildRuleInput(vc *domain.Context) map[string]interface{} {
	signals := make([]interface{}, 0, len(vc.FraudSignals))
	for _, s := range vc.FraudSignals {
		signals = append(signals, s)
	}
	caps := make([]interface{}, 0, len(vc.Capabilities))
	for _, c := range vc.Capabilities {
		caps = append(caps, map[string]interface{}{
			"id":     c.ID,
			"type":   c.Type,
			"level":  c.Level,
			"status": string(c.Status),
		})
	}
	return map[string]interface{}{
		"actor":         vc.ActorID,
		"action":        vc.Action,
		"device_id":     vc.DeviceID,
		"source_ip":     vc.SourceIP,
		"fraud_signals": signals,
		"capabilities":  caps,
	}
}
