// Package redis implements the shared counter/cache store ports over a
// redis deployment: rate-limit windows, the rule cache, the gateway
// mode, and the pub/sub channels that fan changes out to peers.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Key and channel names in the shared store.
const (
	rulesKey          = "policy:rules"
	modeKey           = "mode"
	modeChannel       = "sentinel:mode"
	policyChannel     = "sentinel:policy:changes"
	defaultCacheTTL   = 5 * time.Minute
	connectTimeout    = 5 * time.Second
	operationTimeout  = 200 * time.Millisecond
	cacheReadTimeout  = time.Second
	cacheWriteTimeout = time.Second
)

// Open connects to the redis deployment at url (redis://host:port/db)
// and verifies the connection.
func Open(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return client, nil
}

// Ping reports whether the store is reachable.
func Ping(ctx context.Context, client *redis.Client) bool {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return client.Ping(ctx).Err() == nil
}
