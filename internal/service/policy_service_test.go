package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/vasuans/sentinel-ai-gateway/internal/adapter/outbound/memory"
	"github.com/vasuans/sentinel-ai-gateway/internal/domain/policy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingPolicyStore implements policy.Store and fails every call.
type failingPolicyStore struct{}

var errStoreDown = errors.New("store down")

func (failingPolicyStore) List(context.Context) ([]policy.Rule, error)       { return nil, errStoreDown }
func (failingPolicyStore) Get(context.Context, string) (*policy.Rule, error) { return nil, errStoreDown }
func (failingPolicyStore) Create(context.Context, *policy.Rule) error        { return errStoreDown }
func (failingPolicyStore) Delete(context.Context, string) error              { return errStoreDown }

// flakyPolicyStore fails after being switched down.
type flakyPolicyStore struct {
	mu   sync.Mutex
	down bool
	*memory.PolicyStore
}

func (f *flakyPolicyStore) List(ctx context.Context) ([]policy.Rule, error) {
	f.mu.Lock()
	down := f.down
	f.mu.Unlock()
	if down {
		return nil, errStoreDown
	}
	return f.PolicyStore.List(ctx)
}

func (f *flakyPolicyStore) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func newTestPolicyService(t *testing.T, store policy.Store, opts ...PolicyOption) *PolicyService {
	t.Helper()
	return NewPolicyService(store, memory.NewRuleCache(), memory.NewChangeNotifier(), testLogger(), opts...)
}

func TestPolicyServiceSeedsDefaults(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx, cancel := context.WithCancel(context.Background())

	svc := newTestPolicyService(t, memory.NewPolicyStore(),
		WithRefreshInterval(time.Hour))
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	snap, err := svc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.ActiveCount() != 6 {
		t.Errorf("active rules = %d, want 6 defaults", snap.ActiveCount())
	}
	if _, err := svc.Get(ctx, "refund_limit_500"); err != nil {
		t.Errorf("default rule missing: %v", err)
	}

	cancel()
	svc.Stop()
}

func TestPolicyServiceNoSnapshotFailsClosed(t *testing.T) {
	svc := newTestPolicyService(t, failingPolicyStore{}, WithoutDefaultRules())
	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh over a dead store must fail")
	}
	if _, err := svc.Snapshot(); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Snapshot err = %v, want ErrNoSnapshot", err)
	}
	if !svc.Degraded() {
		t.Error("service must report degraded")
	}
}

func TestPolicyServiceServesStaleSnapshotWhenStoreDies(t *testing.T) {
	ctx := context.Background()
	store := &flakyPolicyStore{PolicyStore: memory.NewPolicyStore()}
	rule := makeRule(t, "r1", 0.5, 10)
	if err := store.Create(ctx, &rule); err != nil {
		t.Fatalf("Create: %v", err)
	}

	svc := newTestPolicyService(t, store, WithoutDefaultRules())
	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	first, _ := svc.Snapshot()

	// The store dies and the cache was invalidated with it: the old
	// snapshot stays active.
	store.setDown(true)
	_ = svc.cache.Invalidate(ctx)
	if err := svc.Refresh(ctx); err == nil {
		t.Fatal("Refresh should fail once cache and store are gone")
	}
	current, err := svc.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if current.Version != first.Version {
		t.Error("stale snapshot must remain active on refresh failure")
	}
}

func TestPolicyServiceCreateDeleteRefreshesSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := newTestPolicyService(t, memory.NewPolicyStore(), WithoutDefaultRules())
	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	rule := makeRule(t, "custom_rule", 0.4, 50)
	created, err := svc.Create(ctx, &rule)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create must stamp timestamps")
	}

	snap, _ := svc.Snapshot()
	if snap.ActiveCount() != 1 {
		t.Errorf("active = %d, want 1 after create", snap.ActiveCount())
	}

	// Duplicate id conflicts.
	dup := makeRule(t, "custom_rule", 0.4, 50)
	if _, err := svc.Create(ctx, &dup); !errors.Is(err, policy.ErrRuleExists) {
		t.Errorf("duplicate create err = %v, want ErrRuleExists", err)
	}

	if err := svc.Delete(ctx, "custom_rule"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	snap, _ = svc.Snapshot()
	if snap.ActiveCount() != 0 {
		t.Errorf("active = %d, want 0 after delete", snap.ActiveCount())
	}

	if err := svc.Delete(ctx, "custom_rule"); !errors.Is(err, policy.ErrRuleNotFound) {
		t.Errorf("second delete err = %v, want ErrRuleNotFound", err)
	}
}

func TestPolicyServiceRejectsInvalidRule(t *testing.T) {
	svc := newTestPolicyService(t, memory.NewPolicyStore(), WithoutDefaultRules())

	bad := makeRule(t, "bad", 1.5, 10) // modifier out of range
	if _, err := svc.Create(context.Background(), &bad); err == nil {
		t.Error("out-of-range modifier must be rejected")
	}
}

func TestPolicyServiceRefreshUsesCache(t *testing.T) {
	ctx := context.Background()
	store := &flakyPolicyStore{PolicyStore: memory.NewPolicyStore()}
	rule := makeRule(t, "cached", 0.2, 10)
	_ = store.Create(ctx, &rule)

	svc := newTestPolicyService(t, store, WithoutDefaultRules())
	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("initial refresh: %v", err)
	}

	// Store dies but the shared cache still holds the rules: refresh
	// keeps succeeding from cache.
	store.setDown(true)
	if err := svc.Refresh(ctx); err != nil {
		t.Fatalf("cache-backed refresh: %v", err)
	}
	snap, _ := svc.Snapshot()
	if len(snap.Rules) != 1 || snap.Rules[0].ID != "cached" {
		t.Errorf("snapshot rules = %v, want [cached]", snap.Rules)
	}
}

func makeRule(t *testing.T, id string, modifier float64, priority int) policy.Rule {
	t.Helper()
	cs, err := policy.ParseConditions(map[string]interface{}{"max_amount": 100.0})
	if err != nil {
		t.Fatalf("ParseConditions: %v", err)
	}
	return policy.Rule{
		ID:           id,
		Name:         "Test " + id,
		ActionTypes:  []string{"refund"},
		Conditions:   cs,
		RiskModifier: modifier,
		Enabled:      true,
		Priority:     priority,
	}
}
