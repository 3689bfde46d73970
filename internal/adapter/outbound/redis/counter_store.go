package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/ratelimit"
)

// CounterStore implements ratelimit.CounterStore over redis. Increments
// are atomic across gateway instances via an INCR+EXPIRE pipeline.
type CounterStore struct {
	client *redis.Client
}

// NewCounterStore creates a counter store over the given client.
func NewCounterStore(client *redis.Client) *CounterStore {
	return &CounterStore{client: client}
}

// IncrWindow increments the window counter and arranges expiry.
func (s *CounterStore) IncrWindow(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("incr window: %w", err)
	}
	return incr.Val(), nil
}

// GetWindow returns the current counter value, 0 if absent.
func (s *CounterStore) GetWindow(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	n, err := s.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get window: %w", err)
	}
	return n, nil
}

// Compile-time interface verification.
var _ ratelimit.CounterStore = (*CounterStore)(nil)
