package memory

import (
	"context"
	"sync"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

// PolicyStore implements policy.Store with an in-memory map.
type PolicyStore struct {
	mu    sync.RWMutex
	rules map[string]policy.Rule
}

// NewPolicyStore creates an empty in-memory rule store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{rules: make(map[string]policy.Rule)}
}

// List returns all rules.
func (s *PolicyStore) List(_ context.Context) ([]policy.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]policy.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	return out, nil
}

// Get returns a rule by ID.
func (s *PolicyStore) Get(_ context.Context, id string) (*policy.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return nil, policy.ErrRuleNotFound
	}
	cp := r
	return &cp, nil
}

// Create inserts a new rule.
func (s *PolicyStore) Create(_ context.Context, r *policy.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rules[r.ID]; exists {
		return policy.ErrRuleExists
	}
	s.rules[r.ID] = *r
	return nil
}

// Delete removes a rule by ID.
func (s *PolicyStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return policy.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

// Compile-time interface verification.
var _ policy.Store = (*PolicyStore)(nil)

// RuleCache implements policy.Cache in memory.
type RuleCache struct {
	mu     sync.RWMutex
	rules  []policy.Rule
	loaded bool
}

// NewRuleCache creates an empty in-memory rule cache.
func NewRuleCache() *RuleCache {
	return &RuleCache{}
}

// GetAll returns the cached rule set.
func (c *RuleCache) GetAll(_ context.Context) ([]policy.Rule, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, false, nil
	}
	out := make([]policy.Rule, len(c.rules))
	copy(out, c.rules)
	return out, true, nil
}

// PutAll replaces the cached rule set.
func (c *RuleCache) PutAll(_ context.Context, rules []policy.Rule) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = make([]policy.Rule, len(rules))
	copy(c.rules, rules)
	c.loaded = true
	return nil
}

// Invalidate drops the cached rule set.
func (c *RuleCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = nil
	c.loaded = false
	return nil
}

// Compile-time interface verification.
var _ policy.Cache = (*RuleCache)(nil)
