package auth

import (
	"context"
	"errors"
)

// Sentinel errors for credential lookup.
var (
	// ErrKeyNotFound is returned when no key matches the given hash.
	ErrKeyNotFound = errors.New("api key not found")
	// ErrAgentNotFound is returned when an agent id cannot be resolved.
	ErrAgentNotFound = errors.New("agent not found")
)

// Store provides credential lookup for authentication.
// The interface lives in the domain so adapters (memory, SQL) depend on
// the domain and not the other way around.
type Store interface {
	// GetAPIKey retrieves an API key by its hash.
	// Returns ErrKeyNotFound if the key doesn't exist.
	GetAPIKey(ctx context.Context, keyHash string) (*APIKey, error)

	// GetAgent retrieves an agent by ID.
	// Returns ErrAgentNotFound if the agent doesn't exist.
	GetAgent(ctx context.Context, id string) (*Agent, error)

	// ListAPIKeys returns all stored API keys for iteration-based
	// verification of non-SHA-256 hashes.
	ListAPIKeys(ctx context.Context) ([]*APIKey, error)
}
