package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

// mockStore implements Store for testing.
type mockStore struct {
	keys   map[string]*APIKey
	agents map[string]*Agent
	fail   error
}

func newMockStore() *mockStore {
	return &mockStore{
		keys:   make(map[string]*APIKey),
		agents: make(map[string]*Agent),
	}
}

func (m *mockStore) GetAPIKey(_ context.Context, keyHash string) (*APIKey, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	k, ok := m.keys[keyHash]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return k, nil
}

func (m *mockStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	return a, nil
}

func (m *mockStore) ListAPIKeys(_ context.Context) ([]*APIKey, error) {
	if m.fail != nil {
		return nil, m.fail
	}
	var out []*APIKey
	for _, k := range m.keys {
		out = append(out, k)
	}
	return out, nil
}

const testKey = "agent_sk_test_key_12345678901234567890"

func seedStore(t *testing.T) *mockStore {
	t.Helper()
	store := newMockStore()
	store.agents["support-bot"] = &Agent{ID: "support-bot", Name: "Support Bot", Enabled: true}
	store.keys[HashKey(testKey)] = &APIKey{
		Key:       HashKey(testKey),
		AgentID:   "support-bot",
		CreatedAt: time.Now().UTC(),
	}
	return store
}

func TestHasKeyPrefix(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"valid prefix", "agent_sk_abc", true},
		{"wrong prefix", "api_key_abc", false},
		{"empty", "", false},
		{"partial prefix", "agent_sk", false},
		{"prefix only", "agent_sk_", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasKeyPrefix(tt.key); got != tt.want {
				t.Errorf("HasKeyPrefix(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()

	t.Run("valid key resolves agent", func(t *testing.T) {
		svc := NewAPIKeyService(seedStore(t))
		agent, err := svc.Validate(ctx, testKey)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if agent.ID != "support-bot" {
			t.Errorf("agent ID = %q, want support-bot", agent.ID)
		}
	})

	t.Run("missing prefix rejected without store lookup", func(t *testing.T) {
		store := seedStore(t)
		store.fail = errors.New("store must not be consulted")
		svc := NewAPIKeyService(store)
		if _, err := svc.Validate(ctx, "sk_test_key_12345678901234567890xx"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("err = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("short key rejected", func(t *testing.T) {
		svc := NewAPIKeyService(seedStore(t))
		if _, err := svc.Validate(ctx, "agent_sk_short"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("err = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		svc := NewAPIKeyService(seedStore(t))
		if _, err := svc.Validate(ctx, "agent_sk_unknown_key_999999999999999"); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("err = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("disabled agent rejected", func(t *testing.T) {
		store := seedStore(t)
		store.agents["support-bot"].Enabled = false
		svc := NewAPIKeyService(store)
		if _, err := svc.Validate(ctx, testKey); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("err = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("revoked key rejected", func(t *testing.T) {
		store := seedStore(t)
		store.keys[HashKey(testKey)].Revoked = true
		svc := NewAPIKeyService(store)
		if _, err := svc.Validate(ctx, testKey); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("err = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("expired key rejected", func(t *testing.T) {
		store := seedStore(t)
		past := time.Now().UTC().Add(-time.Hour)
		store.keys[HashKey(testKey)].ExpiresAt = &past
		svc := NewAPIKeyService(store)
		if _, err := svc.Validate(ctx, testKey); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("err = %v, want ErrInvalidKey", err)
		}
	})

	t.Run("sha256 prefixed hash verified via fallback", func(t *testing.T) {
		store := newMockStore()
		store.agents["a1"] = &Agent{ID: "a1", Enabled: true}
		store.keys["prefixed"] = &APIKey{Key: "sha256:" + HashKey(testKey), AgentID: "a1"}
		svc := NewAPIKeyService(store)
		agent, err := svc.Validate(ctx, testKey)
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if agent.ID != "a1" {
			t.Errorf("agent ID = %q, want a1", agent.ID)
		}
	})
}

func TestDetectHashType(t *testing.T) {
	tests := []struct {
		hash string
		want string
	}{
		{"$argon2id$v=19$m=47104,t=1,p=1$c2FsdA$aGFzaA", "argon2id"},
		{"sha256:abcdef", "sha256"},
		{HashKey("x"), "sha256"},
		{"not-a-hash", "unknown"},
	}
	for _, tt := range tests {
		if got := DetectHashType(tt.hash); got != tt.want {
			t.Errorf("DetectHashType(%q) = %q, want %q", tt.hash, got, tt.want)
		}
	}
}

func TestVerifyKey(t *testing.T) {
	hash := HashKey(testKey)

	match, err := VerifyKey(testKey, hash)
	if err != nil || !match {
		t.Errorf("VerifyKey bare hex = (%v, %v), want (true, nil)", match, err)
	}
	match, err = VerifyKey(testKey, "sha256:"+hash)
	if err != nil || !match {
		t.Errorf("VerifyKey prefixed = (%v, %v), want (true, nil)", match, err)
	}
	match, err = VerifyKey("agent_sk_wrong_key_0000000000000000000", hash)
	if err != nil || match {
		t.Errorf("VerifyKey wrong key = (%v, %v), want (false, nil)", match, err)
	}
	if _, err = VerifyKey(testKey, "garbage"); !errors.Is(err, ErrUnknownHashType) {
		t.Errorf("VerifyKey garbage err = %v, want ErrUnknownHashType", err)
	}
}

func TestVerifyKeyMalformedArgon2id(t *testing.T) {
	// Malformed parameters must surface as an error, never a panic.
	if _, err := VerifyKey("key", "$argon2id$v=19$m=0,t=0,p=0$AAAA$AAAA"); err == nil {
		t.Error("expected error for malformed argon2id hash")
	}
}

func TestAgentHasScope(t *testing.T) {
	unrestricted := &Agent{ID: "a"}
	if !unrestricted.HasScope("refund") {
		t.Error("agent with no scopes should allow any action")
	}
	scoped := &Agent{ID: "b", Scopes: []string{"refund", "payment"}}
	if !scoped.HasScope("refund") || scoped.HasScope("admin_action") {
		t.Error("scoped agent allows listed actions only")
	}
	wildcard := &Agent{ID: "c", Scopes: []string{"*"}}
	if !wildcard.HasScope("anything") {
		t.Error("wildcard scope allows any action")
	}
}
