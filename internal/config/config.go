// Package config provides configuration loading and validation for the
// Sentinel gateway.
package config

import (
	"time"
)

// Config is the top-level gateway configuration, loaded from environment
// variables (SENTINEL_ prefix or the bare spec keys) with an optional
// YAML file underneath.
type Config struct {
	// ListenAddr is the HTTP listen address.
	ListenAddr string `yaml:"listen_addr" mapstructure:"listen_addr" validate:"required"`

	// Mode is the initial gateway mode: OBSERVE or ENFORCE.
	Mode string `yaml:"mode" mapstructure:"mode" validate:"required"`

	// ApprovalThreshold is the risk score at or above which a request
	// needs human approval.
	ApprovalThreshold float64 `yaml:"approval_threshold" mapstructure:"approval_threshold" validate:"gte=0,lte=1"`

	// BlockThreshold is the risk score at or above which a request is
	// denied. Must exceed ApprovalThreshold.
	BlockThreshold float64 `yaml:"block_threshold" mapstructure:"block_threshold" validate:"gte=0,lte=1"`

	// RateLimitRequests is the per-agent request budget per window.
	RateLimitRequests int `yaml:"rate_limit_requests" mapstructure:"rate_limit_requests" validate:"gt=0"`

	// RateLimitWindowSeconds is the fixed window length.
	RateLimitWindowSeconds int `yaml:"rate_limit_window_seconds" mapstructure:"rate_limit_window_seconds" validate:"gt=0"`

	// ApprovalWebhookURL is where approval requests are posted.
	// Empty disables webhook notification.
	ApprovalWebhookURL string `yaml:"approval_webhook_url" mapstructure:"approval_webhook_url" validate:"omitempty,url"`

	// ApprovalExpirySeconds is how long a pending approval lives.
	ApprovalExpirySeconds int `yaml:"approval_expiry_seconds" mapstructure:"approval_expiry_seconds" validate:"gt=0"`

	// CounterStoreURL selects the shared counter/cache store
	// (redis://host:port/db). Empty selects the in-memory store
	// (single instance only).
	CounterStoreURL string `yaml:"counter_store_url" mapstructure:"counter_store_url"`

	// AuditStoreURL selects the relational store (postgres:// or
	// sqlite://path). Empty selects the in-memory store.
	AuditStoreURL string `yaml:"audit_store_url" mapstructure:"audit_store_url"`

	// ForwardTargetURL is the HTTP target allowed actions are forwarded
	// to. Empty installs the no-op sink.
	ForwardTargetURL string `yaml:"forward_target_url" mapstructure:"forward_target_url" validate:"omitempty,url"`

	// PolicyRefreshSeconds is the background policy refresh safety net.
	PolicyRefreshSeconds int `yaml:"policy_refresh_seconds" mapstructure:"policy_refresh_seconds" validate:"gt=0"`

	// AgentKeysFile seeds agents and hashed API keys from a YAML file.
	AgentKeysFile string `yaml:"agent_keys_file" mapstructure:"agent_keys_file"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// LogFormat is text or json.
	LogFormat string `yaml:"log_format" mapstructure:"log_format" validate:"oneof=text json"`

	// DevMode seeds a local development agent and key.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// RateLimitWindow returns the window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// ApprovalExpiry returns the approval lifetime as a duration.
func (c *Config) ApprovalExpiry() time.Duration {
	return time.Duration(c.ApprovalExpirySeconds) * time.Second
}

// PolicyRefreshInterval returns the refresh cadence as a duration.
func (c *Config) PolicyRefreshInterval() time.Duration {
	return time.Duration(c.PolicyRefreshSeconds) * time.Second
}
