package memory

import (
	"context"
	"sync"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/gatemode"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

// ChangeNotifier implements policy.ChangeNotifier with in-process fanout.
// Single-instance only; multi-instance deployments use the redis adapter.
type ChangeNotifier struct {
	mu   sync.Mutex
	subs map[int]chan policy.ChangeEvent
	next int
}

// NewChangeNotifier creates an in-process change notifier.
func NewChangeNotifier() *ChangeNotifier {
	return &ChangeNotifier{subs: make(map[int]chan policy.ChangeEvent)}
}

// PublishChange fans the event out to all subscribers. Slow subscribers
// miss events rather than block the publisher; the periodic refresh
// covers missed events.
func (n *ChangeNotifier) PublishChange(_ context.Context, ev policy.ChangeEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// SubscribeChanges registers a subscriber channel.
func (n *ChangeNotifier) SubscribeChanges(ctx context.Context) (<-chan policy.ChangeEvent, func(), error) {
	n.mu.Lock()
	id := n.next
	n.next++
	ch := make(chan policy.ChangeEvent, 16)
	n.subs[id] = ch
	n.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, id)
			n.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Compile-time interface verification.
var _ policy.ChangeNotifier = (*ChangeNotifier)(nil)

// ModePublisher implements gatemode.Publisher with in-process fanout.
type ModePublisher struct {
	mu   sync.Mutex
	mode gatemode.Mode
	subs map[int]chan gatemode.Mode
	next int
}

// NewModePublisher creates an in-process mode publisher.
func NewModePublisher(initial gatemode.Mode) *ModePublisher {
	return &ModePublisher{mode: initial, subs: make(map[int]chan gatemode.Mode)}
}

// PublishMode records and fans out the new mode.
func (p *ModePublisher) PublishMode(_ context.Context, m gatemode.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mode = m
	for _, ch := range p.subs {
		select {
		case ch <- m:
		default:
		}
	}
	return nil
}

// WatchMode registers a subscriber channel.
func (p *ModePublisher) WatchMode(ctx context.Context) (<-chan gatemode.Mode, func(), error) {
	p.mu.Lock()
	id := p.next
	p.next++
	ch := make(chan gatemode.Mode, 4)
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Compile-time interface verification.
var _ gatemode.Publisher = (*ModePublisher)(nil)
