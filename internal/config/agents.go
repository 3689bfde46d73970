package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AgentsFile is the YAML seed file for agents and their hashed API keys.
// Raw keys never appear in the file; hashes come from `sentinel hash-key`.
type AgentsFile struct {
	Agents []AgentConfig `yaml:"agents"`
}

// AgentConfig seeds one agent.
type AgentConfig struct {
	AgentID           string           `yaml:"agent_id"`
	Name              string           `yaml:"name"`
	Enabled           bool             `yaml:"enabled"`
	Scopes            []string         `yaml:"scopes"`
	RateLimitOverride *int             `yaml:"rate_limit_override"`
	Keys              []AgentKeyConfig `yaml:"keys"`
}

// AgentKeyConfig seeds one hashed API key.
type AgentKeyConfig struct {
	// KeyHash is "sha256:<hex>", bare SHA-256 hex, or an Argon2id PHC
	// string.
	KeyHash string `yaml:"key_hash"`
	Name    string `yaml:"name"`
}

// LoadAgentsFile parses the agent seed file at path.
func LoadAgentsFile(path string) (*AgentsFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agents file: %w", err)
	}
	var f AgentsFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse agents file: %w", err)
	}
	for i, a := range f.Agents {
		if a.AgentID == "" {
			return nil, fmt.Errorf("agents[%d]: agent_id is required", i)
		}
		for j, k := range a.Keys {
			if k.KeyHash == "" {
				return nil, fmt.Errorf("agents[%d].keys[%d]: key_hash is required", i, j)
			}
		}
	}
	return &f, nil
}
