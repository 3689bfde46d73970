// Package memory provides in-memory implementations of the outbound
// ports. Thread-safe; intended for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/auth"
)

// AuthStore implements auth.Store with in-memory maps.
type AuthStore struct {
	mu     sync.RWMutex
	keys   map[string]*auth.APIKey // key hash -> key
	agents map[string]*auth.Agent  // agent id -> agent
}

// NewAuthStore creates an empty in-memory auth store.
func NewAuthStore() *AuthStore {
	return &AuthStore{
		keys:   make(map[string]*auth.APIKey),
		agents: make(map[string]*auth.Agent),
	}
}

// AddAgent registers an agent (for seeding).
func (s *AuthStore) AddAgent(a *auth.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.agents[a.ID] = &cp
}

// AddAPIKey registers a hashed API key (for seeding).
func (s *AuthStore) AddAPIKey(k *auth.APIKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *k
	s.keys[k.Key] = &cp
}

// GetAPIKey retrieves an API key by its hash.
func (s *AuthStore) GetAPIKey(_ context.Context, keyHash string) (*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.keys[keyHash]
	if !ok {
		return nil, auth.ErrKeyNotFound
	}
	cp := *k
	return &cp, nil
}

// GetAgent retrieves an agent by ID.
func (s *AuthStore) GetAgent(_ context.Context, id string) (*auth.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, auth.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAPIKeys returns all stored API keys.
func (s *AuthStore) ListAPIKeys(_ context.Context) ([]*auth.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.APIKey, 0, len(s.keys))
	for _, k := range s.keys {
		cp := *k
		out = append(out, &cp)
	}
	return out, nil
}

// Compile-time interface verification.
var _ auth.Store = (*AuthStore)(nil)
