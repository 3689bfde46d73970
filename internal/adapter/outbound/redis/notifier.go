package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

// ChangeNotifier implements policy.ChangeNotifier over redis pub/sub.
type ChangeNotifier struct {
	client *redis.Client
}

// NewChangeNotifier creates a change notifier over the given client.
func NewChangeNotifier(client *redis.Client) *ChangeNotifier {
	return &ChangeNotifier{client: client}
}

// PublishChange broadcasts a rule change event.
func (n *ChangeNotifier) PublishChange(ctx context.Context, ev policy.ChangeEvent) error {
	ctx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()

	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("change event encode: %w", err)
	}
	if err := n.client.Publish(ctx, policyChannel, raw).Err(); err != nil {
		return fmt.Errorf("change event publish: %w", err)
	}
	return nil
}

// SubscribeChanges delivers peer-published rule changes.
func (n *ChangeNotifier) SubscribeChanges(ctx context.Context) (<-chan policy.ChangeEvent, func(), error) {
	sub := n.client.Subscribe(ctx, policyChannel)
	// Force the subscription to establish so errors surface here.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe policy changes: %w", err)
	}

	out := make(chan policy.ChangeEvent, 16)
	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = sub.Close() })
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				var ev policy.ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}

// Compile-time interface verification.
var _ policy.ChangeNotifier = (*ChangeNotifier)(nil)

// ModePublisher implements gatemode.Publisher over redis: the current
// mode is persisted under the mode key and broadcast on a channel so
// peers converge without restarts.
type ModePublisher struct {
	client *redis.Client
}

// NewModePublisher creates a mode publisher over the given client.
func NewModePublisher(client *redis.Client) *ModePublisher {
	return &ModePublisher{client: client}
}

// PublishMode persists and broadcasts the new mode.
func (p *ModePublisher) PublishMode(ctx context.Context, m gatemode.Mode) error {
	ctx, cancel := context.WithTimeout(ctx, cacheWriteTimeout)
	defer cancel()

	if err := p.client.Set(ctx, modeKey, string(m), 0).Err(); err != nil {
		return fmt.Errorf("mode set: %w", err)
	}
	if err := p.client.Publish(ctx, modeChannel, string(m)).Err(); err != nil {
		return fmt.Errorf("mode publish: %w", err)
	}
	return nil
}

// WatchMode delivers peer-published mode changes.
func (p *ModePublisher) WatchMode(ctx context.Context) (<-chan gatemode.Mode, func(), error) {
	sub := p.client.Subscribe(ctx, modeChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("subscribe mode: %w", err)
	}

	out := make(chan gatemode.Mode, 4)
	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = sub.Close() })
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case msg, ok := <-sub.Channel():
				if !ok {
					return
				}
				m, err := gatemode.Parse(msg.Payload)
				if err != nil {
					continue
				}
				select {
				case out <- m:
				default:
				}
			}
		}
	}()
	return out, cancel, nil
}

// LoadMode returns the persisted mode, ok=false when unset.
func (p *ModePublisher) LoadMode(ctx context.Context) (gatemode.Mode, bool) {
	ctx, cancel := context.WithTimeout(ctx, cacheReadTimeout)
	defer cancel()

	raw, err := p.client.Get(ctx, modeKey).Result()
	if err != nil {
		return "", false
	}
	m, err := gatemode.Parse(raw)
	if err != nil {
		return "", false
	}
	return m, true
}

// Compile-time interface verification.
var _ gatemode.Publisher = (*ModePublisher)(nil)
