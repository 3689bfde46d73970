package policy

import (
	"strings"
	"testing"
)

func TestExpressionCondition(t *testing.T) {
	cs := mustParse(t, map[string]interface{}{
		KeyExpression: `action_type == "payment" && parameters.amount > 100.0`,
	})

	matched, reason := cs.Match(req("payment", "payments", map[string]interface{}{"amount": 500.0}), tuesdayNoon)
	if !matched {
		t.Error("expression should match a large payment")
	}
	if reason == "" {
		t.Error("expression match must produce a reason")
	}

	matched, _ = cs.Match(req("payment", "payments", map[string]interface{}{"amount": 50.0}), tuesdayNoon)
	if matched {
		t.Error("expression should not match a small payment")
	}
	// Evaluation errors (missing keys) mean no match, not a failure.
	matched, _ = cs.Match(req("payment", "payments", nil), tuesdayNoon)
	if matched {
		t.Error("expression over a missing key must not match")
	}
}

func TestExpressionConditionCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		expr interface{}
	}{
		{"syntax error", `action_type ==`},
		{"unknown variable", `no_such_var == 1`},
		{"empty", ``},
		{"not a string", 42.0},
		{"too long", strings.Repeat("a == a && ", 200) + "true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConditions(map[string]interface{}{KeyExpression: tt.expr}); err == nil {
				t.Error("expected strict parse to fail")
			}
		})
	}
}

func TestValidateExpression(t *testing.T) {
	if err := ValidateExpression(`agent_id == "support-bot"`); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateExpression(`(((`); err == nil {
		t.Error("invalid expression accepted")
	}
}
