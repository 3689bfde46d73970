package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoadDefaults(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}
	InitViper(path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "ENFORCE" {
		t.Errorf("mode = %q, want ENFORCE", cfg.Mode)
	}
	if cfg.ApprovalThreshold != 0.8 || cfg.BlockThreshold != 1.0 {
		t.Errorf("thresholds = %v/%v", cfg.ApprovalThreshold, cfg.BlockThreshold)
	}
	if cfg.RateLimitRequests != 1000 || cfg.RateLimitWindow() != time.Minute {
		t.Errorf("rate limit = %d/%v", cfg.RateLimitRequests, cfg.RateLimitWindow())
	}
	if cfg.ApprovalExpiry() != 24*time.Hour {
		t.Errorf("approval expiry = %v", cfg.ApprovalExpiry())
	}
}

func TestBareEnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("MODE", "OBSERVE")
	t.Setenv("APPROVAL_THRESHOLD", "0.5")
	t.Setenv("RATE_LIMIT_REQUESTS", "42")

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}
	InitViper(path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "OBSERVE" {
		t.Errorf("mode = %q, want OBSERVE", cfg.Mode)
	}
	if cfg.ApprovalThreshold != 0.5 {
		t.Errorf("approval threshold = %v, want 0.5", cfg.ApprovalThreshold)
	}
	if cfg.RateLimitRequests != 42 {
		t.Errorf("rate limit = %d, want 42", cfg.RateLimitRequests)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	base := Config{
		ListenAddr:             ":8080",
		Mode:                   "ENFORCE",
		ApprovalThreshold:      0.8,
		BlockThreshold:         1.0,
		RateLimitRequests:      100,
		RateLimitWindowSeconds: 60,
		ApprovalExpirySeconds:  3600,
		PolicyRefreshSeconds:   30,
		LogFormat:              "text",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := base
	bad.Mode = "SHADOW"
	if err := bad.Validate(); err == nil {
		t.Error("unknown mode accepted")
	}

	bad = base
	bad.BlockThreshold = 0.7
	if err := bad.Validate(); err == nil {
		t.Error("block <= approval accepted")
	}

	bad = base
	bad.RateLimitRequests = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero rate limit accepted")
	}

	bad = base
	bad.LogFormat = "xml"
	if err := bad.Validate(); err == nil {
		t.Error("bad log format accepted")
	}
}

func TestLoadAgentsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `agents:
  - agent_id: support-bot
    name: Support Bot
    enabled: true
    scopes: [refund, payment]
    rate_limit_override: 500
    keys:
      - key_hash: "sha256:deadbeef"
        name: primary
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := LoadAgentsFile(path)
	if err != nil {
		t.Fatalf("LoadAgentsFile: %v", err)
	}
	if len(f.Agents) != 1 {
		t.Fatalf("agents = %d, want 1", len(f.Agents))
	}
	a := f.Agents[0]
	if a.AgentID != "support-bot" || !a.Enabled || len(a.Scopes) != 2 {
		t.Errorf("agent = %+v", a)
	}
	if a.RateLimitOverride == nil || *a.RateLimitOverride != 500 {
		t.Errorf("rate limit override = %v", a.RateLimitOverride)
	}
	if len(a.Keys) != 1 || a.Keys[0].KeyHash != "sha256:deadbeef" {
		t.Errorf("keys = %+v", a.Keys)
	}
}

func TestLoadAgentsFileRejectsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	if err := os.WriteFile(path, []byte("agents:\n  - name: no id\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAgentsFile(path); err == nil {
		t.Error("agent without id accepted")
	}
}
