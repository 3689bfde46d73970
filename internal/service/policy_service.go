// Package service wires the domain into running application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

// ErrNoSnapshot is returned when no rule snapshot has ever been loaded.
// With nothing to evaluate against, the gateway fails closed.
var ErrNoSnapshot = errors.New("no policy snapshot available")

// refreshTimeout bounds every policy store/cache round trip.
const refreshTimeout = time.Second

// DefaultPolicyRefreshInterval is the background refresh safety net.
const DefaultPolicyRefreshInterval = 30 * time.Second

// PolicyService owns the rule lifecycle: durable CRUD, the shared
// read-through cache, change notification, and the copy-on-write
// snapshot the evaluator reads. Snapshots are replaced atomically by a
// single writer; readers never block.
type PolicyService struct {
	store    policy.Store
	cache    policy.Cache
	notifier policy.ChangeNotifier
	logger   *slog.Logger

	refreshInterval time.Duration
	seedDefaults    bool

	snapshot atomic.Pointer[policy.Snapshot]
	version  atomic.Int64
	degraded atomic.Bool

	wg sync.WaitGroup
}

// PolicyOption configures a PolicyService.
type PolicyOption func(*PolicyService)

// WithRefreshInterval sets the periodic refresh interval.
func WithRefreshInterval(d time.Duration) PolicyOption {
	return func(s *PolicyService) { s.refreshInterval = d }
}

// WithoutDefaultRules disables seeding the stock rule set into an empty
// store.
func WithoutDefaultRules() PolicyOption {
	return func(s *PolicyService) { s.seedDefaults = false }
}

// NewPolicyService creates a policy service over the given store, cache,
// and change notifier.
func NewPolicyService(store policy.Store, cache policy.Cache, notifier policy.ChangeNotifier, logger *slog.Logger, opts ...PolicyOption) *PolicyService {
	s := &PolicyService{
		store:           store,
		cache:           cache,
		notifier:        notifier,
		logger:          logger,
		refreshInterval: DefaultPolicyRefreshInterval,
		seedDefaults:    true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start seeds defaults into an empty store, loads the initial snapshot,
// and launches the change-subscription and periodic-refresh loops. A
// failed initial load is not fatal: the service runs degraded and the
// gateway fails closed until a refresh succeeds.
func (s *PolicyService) Start(ctx context.Context) error {
	if s.seedDefaults {
		if err := s.seed(ctx); err != nil {
			s.logger.Warn("default rule seeding failed", "error", err)
		}
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("initial policy load failed, evaluations fail closed until refresh succeeds", "error", err)
	}

	s.wg.Add(2)
	go s.subscribeLoop(ctx)
	go s.refreshLoop(ctx)
	return nil
}

// Stop waits for the background loops to exit. Callers cancel the Start
// context first.
func (s *PolicyService) Stop() {
	s.wg.Wait()
}

// Snapshot returns the active rule snapshot. Returns ErrNoSnapshot if no
// load has ever succeeded.
func (s *PolicyService) Snapshot() (*policy.Snapshot, error) {
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Degraded reports whether the last refresh served stale data.
func (s *PolicyService) Degraded() bool { return s.degraded.Load() }

// Refresh rebuilds the snapshot through the read-through cache: cache
// hit serves directly, miss loads from the durable store and repopulates
// the cache. On store failure the previous snapshot stays active.
func (s *PolicyService) Refresh(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	rules, ok, err := s.cache.GetAll(ctx)
	if err != nil {
		s.logger.Warn("policy cache read failed", "error", err)
	}
	if !ok {
		rules, err = s.store.List(ctx)
		if err != nil {
			s.degraded.Store(true)
			return fmt.Errorf("policy store unavailable: %w", err)
		}
		if cacheErr := s.cache.PutAll(ctx, rules); cacheErr != nil {
			s.logger.Warn("policy cache populate failed", "error", cacheErr)
		}
	}

	snap := policy.NewSnapshot(rules, s.version.Add(1), time.Now().UTC())
	s.snapshot.Store(snap)
	s.degraded.Store(false)
	s.logger.Debug("policy snapshot refreshed",
		"version", snap.Version, "rules", len(snap.Rules), "active", snap.ActiveCount())
	return nil
}

// List returns all rules from the durable store, falling back to the
// active snapshot when the store is unreachable.
func (s *PolicyService) List(ctx context.Context) ([]policy.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	rules, err := s.store.List(ctx)
	if err == nil {
		return rules, nil
	}
	s.logger.Warn("policy store list failed, serving snapshot", "error", err)
	snap := s.snapshot.Load()
	if snap == nil {
		return nil, err
	}
	return append([]policy.Rule(nil), snap.Rules...), nil
}

// Get returns a rule by ID.
func (s *PolicyService) Get(ctx context.Context, id string) (*policy.Rule, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()
	return s.store.Get(ctx, id)
}

// Create validates and inserts a rule, invalidates the shared cache,
// notifies peers, and refreshes the local snapshot.
func (s *PolicyService) Create(ctx context.Context, r *policy.Rule) (*policy.Rule, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rule: %w", err)
	}
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now

	if err := s.store.Create(ctx, r); err != nil {
		return nil, err
	}
	s.propagate(ctx, policy.ChangeEvent{RuleID: r.ID, Op: policy.ChangeCreated, At: now})
	return r, nil
}

// Delete removes a rule, invalidates the shared cache, notifies peers,
// and refreshes the local snapshot.
func (s *PolicyService) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.propagate(ctx, policy.ChangeEvent{RuleID: id, Op: policy.ChangeDeleted, At: time.Now().UTC()})
	return nil
}

// ActiveCount returns the number of enabled rules in the snapshot.
func (s *PolicyService) ActiveCount() int {
	snap := s.snapshot.Load()
	if snap == nil {
		return 0
	}
	return snap.ActiveCount()
}

func (s *PolicyService) propagate(ctx context.Context, ev policy.ChangeEvent) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("policy cache invalidate failed", "error", err)
	}
	if err := s.notifier.PublishChange(ctx, ev); err != nil {
		s.logger.Warn("policy change publish failed", "rule_id", ev.RuleID, "error", err)
	}
	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("policy refresh after change failed", "error", err)
	}
}

func (s *PolicyService) seed(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	rules, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	if len(rules) > 0 {
		return nil
	}
	defaults := policy.DefaultRules(time.Now().UTC())
	for i := range defaults {
		if err := s.store.Create(ctx, &defaults[i]); err != nil && !errors.Is(err, policy.ErrRuleExists) {
			return err
		}
	}
	s.logger.Info("seeded default rules", "count", len(defaults))
	return nil
}

func (s *PolicyService) subscribeLoop(ctx context.Context) {
	defer s.wg.Done()

	ch, cancel, err := s.notifier.SubscribeChanges(ctx)
	if err != nil {
		s.logger.Warn("policy change subscription unavailable, relying on periodic refresh", "error", err)
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			s.logger.Debug("policy change received", "rule_id", ev.RuleID, "op", string(ev.Op))
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("policy refresh on change failed", "error", err)
			}
		}
	}
}

func (s *PolicyService) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("periodic policy refresh failed", "error", err)
			}
		}
	}
}
