// Package gatemode holds the process-wide gateway mode selector.
package gatemode

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// Mode selects how decisions are applied across the whole gateway.
type Mode string

const (
	// ModeObserve logs the true decision but answers ALLOW. Used for
	// safe rollout against live traffic.
	ModeObserve Mode = "OBSERVE"
	// ModeEnforce applies decisions as computed.
	ModeEnforce Mode = "ENFORCE"
)

// Parse normalizes and validates a mode string.
func Parse(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeObserve:
		return ModeObserve, nil
	case ModeEnforce:
		return ModeEnforce, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want OBSERVE or ENFORCE)", s)
	}
}

// Publisher propagates mode changes to peer instances through the shared
// cache. Implementations: redis (prod), memory (dev/test).
type Publisher interface {
	// PublishMode persists and broadcasts the new mode.
	PublishMode(ctx context.Context, m Mode) error

	// WatchMode returns a channel delivering peer-published modes plus a
	// cancel function. The channel closes when ctx is done or cancel is
	// called.
	WatchMode(ctx context.Context) (<-chan Mode, func(), error)
}

// Switch is the process-wide atomic mode holder. Reads are lock-free;
// the single mutator is Set. Cross-instance propagation goes through the
// Publisher and is applied by Watch.
type Switch struct {
	mode      atomic.Value // Mode
	publisher Publisher
	logger    *slog.Logger
}

// NewSwitch creates a Switch initialized to the given mode.
func NewSwitch(initial Mode, publisher Publisher, logger *slog.Logger) *Switch {
	s := &Switch{publisher: publisher, logger: logger}
	s.mode.Store(initial)
	return s
}

// Get returns the current mode.
func (s *Switch) Get() Mode {
	return s.mode.Load().(Mode)
}

// Set changes the mode locally and publishes it to peers. Publish
// failures do not roll back the local switch and are not retried; peers
// keep their current mode until a later publish reaches them.
func (s *Switch) Set(ctx context.Context, m Mode) error {
	old := s.Get()
	s.mode.Store(m)
	if old != m {
		s.logger.Info("gateway mode changed", "old_mode", string(old), "new_mode", string(m))
	}
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishMode(ctx, m); err != nil {
		s.logger.Warn("mode publish failed", "mode", string(m), "error", err)
		return err
	}
	return nil
}

// Watch applies peer-published mode changes until ctx is done.
// Run it on its own goroutine.
func (s *Switch) Watch(ctx context.Context) {
	if s.publisher == nil {
		return
	}
	ch, cancel, err := s.publisher.WatchMode(ctx)
	if err != nil {
		s.logger.Warn("mode watch unavailable", "error", err)
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			if m != s.Get() {
				s.logger.Info("gateway mode updated from peer", "new_mode", string(m))
				s.mode.Store(m)
			}
		}
	}
}
