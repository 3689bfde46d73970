package decision

import (
	"testing"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
)

func TestDecideEnforce(t *testing.T) {
	engine := NewEngine(DefaultThresholds())

	tests := []struct {
		name  string
		score float64
		want  Decision
	}{
		{"zero risk allows", 0, Allow},
		{"below approval allows", 0.79, Allow},
		{"at approval threshold pends", 0.8, Pending},
		{"between thresholds pends", 0.9, Pending},
		{"at block threshold denies", 1.0, Deny},
		{"above block denies", 1.7, Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := engine.Decide(tt.score, gatemode.ModeEnforce)
			if out.Decision != tt.want {
				t.Errorf("Decide(%v) = %v, want %v", tt.score, out.Decision, tt.want)
			}
			if out.Observed != tt.want {
				t.Errorf("Observed = %v, want %v (no rewrite in enforce)", out.Observed, tt.want)
			}
			if out.Rewritten() {
				t.Error("enforce mode must not rewrite")
			}
		})
	}
}

func TestDecideObserveRewritesNonAllow(t *testing.T) {
	engine := NewEngine(DefaultThresholds())

	out := engine.Decide(1.5, gatemode.ModeObserve)
	if out.Decision != Allow {
		t.Errorf("observe decision = %v, want allow", out.Decision)
	}
	if out.Observed != Deny {
		t.Errorf("observed = %v, want deny", out.Observed)
	}
	if !out.Rewritten() {
		t.Error("rewrite must be visible")
	}

	out = engine.Decide(0.85, gatemode.ModeObserve)
	if out.Decision != Allow || out.Observed != Pending {
		t.Errorf("observe pending = (%v, %v), want (allow, pending)", out.Decision, out.Observed)
	}

	out = engine.Decide(0.1, gatemode.ModeObserve)
	if out.Decision != Allow || out.Rewritten() {
		t.Error("allow passes through untouched in observe mode")
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0, RiskLow},
		{0.29, RiskLow},
		{0.3, RiskMedium},
		{0.79, RiskMedium},
		{0.8, RiskHigh},
		{2.0, RiskHigh},
	}
	for _, tt := range tests {
		if got := Level(tt.score); got != tt.want {
			t.Errorf("Level(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	if err := (Thresholds{Approval: 0.9, Block: 0.8}).Validate(); err == nil {
		t.Error("block <= approval must be rejected")
	}
	if err := (Thresholds{Approval: -0.1, Block: 1.0}).Validate(); err == nil {
		t.Error("negative approval must be rejected")
	}
}
