package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes viper with defaults, the optional config file,
// and environment bindings. Each key is overridable as SENTINEL_<KEY>;
// the core governance keys also answer to their bare names (MODE,
// APPROVAL_THRESHOLD, ...) for container deployments.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("sentinel")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/sentinel")
	}

	viper.SetDefault("listen_addr", ":8080")
	viper.SetDefault("mode", "ENFORCE")
	viper.SetDefault("approval_threshold", 0.8)
	viper.SetDefault("block_threshold", 1.0)
	viper.SetDefault("rate_limit_requests", 1000)
	viper.SetDefault("rate_limit_window_seconds", 60)
	viper.SetDefault("approval_webhook_url", "")
	viper.SetDefault("approval_expiry_seconds", 86400)
	viper.SetDefault("counter_store_url", "")
	viper.SetDefault("audit_store_url", "")
	viper.SetDefault("forward_target_url", "")
	viper.SetDefault("policy_refresh_seconds", 30)
	viper.SetDefault("agent_keys_file", "")
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("dev_mode", false)

	viper.SetEnvPrefix("SENTINEL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindBareEnvKeys()
}

// bindBareEnvKeys binds the recognized unprefixed environment keys.
func bindBareEnvKeys() {
	bare := map[string]string{
		"mode":                      "MODE",
		"approval_threshold":        "APPROVAL_THRESHOLD",
		"block_threshold":           "BLOCK_THRESHOLD",
		"rate_limit_requests":       "RATE_LIMIT_REQUESTS",
		"rate_limit_window_seconds": "RATE_LIMIT_WINDOW_SECONDS",
		"approval_webhook_url":      "APPROVAL_WEBHOOK_URL",
		"approval_expiry_seconds":   "APPROVAL_EXPIRY_SECONDS",
		"counter_store_url":         "COUNTER_STORE_URL",
		"audit_store_url":           "AUDIT_STORE_URL",
	}
	for key, env := range bare {
		_ = viper.BindEnv(key, "SENTINEL_"+env, env)
	}
}

// Load reads the configuration and validates it. A missing config file
// is not an error; environment variables and defaults suffice.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
