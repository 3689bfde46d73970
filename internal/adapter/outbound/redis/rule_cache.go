package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

// RuleCache implements policy.Cache over redis. The whole rule set is
// stored as one JSON value so readers never observe a partially updated
// cache; the TTL bounds staleness if invalidation messages are lost.
type RuleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRuleCache creates a rule cache with the default TTL.
func NewRuleCache(client *redis.Client) *RuleCache {
	return &RuleCache{client: client, ttl: defaultCacheTTL}
}

// GetAll returns the cached rule set; ok is false on a miss.
func (c *RuleCache) GetAll(ctx context.Context) ([]policy.Rule, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, cacheReadTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, rulesKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rule cache get: %w", err)
	}

	var rules []policy.Rule
	if err := json.Unmarshal(raw, &rules); err != nil {
		// A corrupt cache value is treated as a miss; the durable store
		// repopulates it.
		return nil, false, fmt.Errorf("rule cache decode: %w", err)
	}
	return rules, true, nil
}

// PutAll replaces the cached rule set.
func (c *RuleCache) PutAll(ctx context.Context, rules []policy.Rule) error {
	ctx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()

	raw, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("rule cache encode: %w", err)
	}
	if err := c.client.Set(ctx, rulesKey, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("rule cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached rule set.
func (c *RuleCache) Invalidate(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()

	if err := c.client.Del(ctx, rulesKey).Err(); err != nil {
		return fmt.Errorf("rule cache invalidate: %w", err)
	}
	return nil
}

// Compile-time interface verification.
var _ policy.Cache = (*RuleCache)(nil)
