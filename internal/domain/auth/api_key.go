package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidKey is returned when an API key is malformed, unknown,
// expired, revoked, or belongs to a disabled agent. Callers must not
// distinguish these cases to the client.
var ErrInvalidKey = errors.New("invalid api key")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// APIKeyService validates API keys and resolves agent identities.
type APIKeyService struct {
	store Store
	now   func() time.Time
}

// NewAPIKeyService creates a new APIKeyService with the given store.
func NewAPIKeyService(store Store) *APIKeyService {
	return &APIKeyService{store: store, now: time.Now}
}

// HasKeyPrefix reports whether the raw key carries the fixed marker.
// The comparison is constant-time over the prefix bytes so the check
// leaks nothing about how much of the marker matched.
func HasKeyPrefix(rawKey string) bool {
	if len(rawKey) < len(KeyPrefix) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(rawKey[:len(KeyPrefix)]), []byte(KeyPrefix)) == 1
}

// Validate checks an API key and returns the associated agent.
// Returns ErrInvalidKey if the key lacks the prefix, is too short,
// unknown, expired, revoked, or resolves to a disabled agent.
//
// Supports both SHA-256 (direct lookup) and Argon2id (iteration) hashes.
func (s *APIKeyService) Validate(ctx context.Context, rawKey string) (*Agent, error) {
	if !HasKeyPrefix(rawKey) || len(rawKey) < MinKeyLength {
		return nil, ErrInvalidKey
	}

	// Fast path: direct SHA-256 lookup for seeded keys.
	apiKey, err := s.store.GetAPIKey(ctx, HashKey(rawKey))
	if err == nil {
		return s.validateAndResolve(ctx, apiKey)
	}
	if !errors.Is(err, ErrKeyNotFound) {
		return nil, err
	}

	// Fallback: iterate all keys and verify (supports Argon2id hashes).
	allKeys, err := s.store.ListAPIKeys(ctx)
	if err != nil {
		return nil, ErrInvalidKey
	}
	for _, candidate := range allKeys {
		match, verifyErr := VerifyKey(rawKey, candidate.Key)
		if verifyErr != nil {
			continue
		}
		if match {
			return s.validateAndResolve(ctx, candidate)
		}
	}

	return nil, ErrInvalidKey
}

// validateAndResolve checks revocation/expiry and the agent's enabled flag.
func (s *APIKeyService) validateAndResolve(ctx context.Context, apiKey *APIKey) (*Agent, error) {
	if apiKey.Revoked || apiKey.IsExpired(s.now().UTC()) {
		return nil, ErrInvalidKey
	}
	agent, err := s.store.GetAgent(ctx, apiKey.AgentID)
	if err != nil {
		return nil, ErrInvalidKey
	}
	if !agent.Enabled {
		return nil, ErrInvalidKey
	}
	return agent, nil
}

// HashKey returns the SHA-256 hex hash of the raw key.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format.
// Format: $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" for unrecognized formats.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw key against a stored hash.
// Supports Argon2id (PHC format), "sha256:" prefixed, and bare SHA-256 hex.
// Returns (false, ErrUnknownHashType) for unrecognized hash formats.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawKey, storedHash)

	case "sha256":
		expected := strings.TrimPrefix(storedHash, "sha256:")
		computed := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery. The underlying argon2 library panics on malformed hashes with
// invalid parameters (e.g. t=0 rounds); those become errors here.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
