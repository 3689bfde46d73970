// Package sqlstore implements the durable rule, approval, and audit
// stores over database/sql. The backend is selected by the store URL
// scheme: postgres:// uses lib/pq, sqlite:// a local file.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store wraps the database handle plus the dialect it speaks.
type Store struct {
	db       *sql.DB
	postgres bool
}

// Open connects to the relational store at url. Supported schemes:
// postgres:// (also postgresql://) and sqlite:// (file path after the
// scheme; "sqlite://:memory:" for an in-process database).
func Open(url string) (*Store, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		db, err := sql.Open("postgres", url)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		return &Store{db: db, postgres: true}, nil

	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("sqlite url missing path")
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// The sqlite driver serializes writers; a single connection
		// avoids busy errors under concurrent transitions.
		db.SetMaxOpenConns(1)
		return &Store{db: db}, nil

	default:
		return nil, fmt.Errorf("unsupported store url %q", url)
	}
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports whether the store is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const schema = `
CREATE TABLE IF NOT EXISTS rules (
	rule_id        TEXT PRIMARY KEY,
	name           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	action_types   TEXT NOT NULL,
	conditions     TEXT NOT NULL,
	risk_modifier  REAL NOT NULL,
	enabled        INTEGER NOT NULL,
	priority       INTEGER NOT NULL,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS approvals (
	approval_id          TEXT PRIMARY KEY,
	request_id           TEXT NOT NULL,
	agent_id             TEXT NOT NULL,
	action_type          TEXT NOT NULL,
	target_resource      TEXT NOT NULL,
	risk_score           REAL NOT NULL,
	matched_rules        TEXT NOT NULL,
	sanitized_parameters TEXT NOT NULL,
	original_parameters  TEXT NOT NULL,
	state                TEXT NOT NULL,
	decided_by           TEXT NOT NULL DEFAULT '',
	decided_at           TEXT,
	webhook_url          TEXT NOT NULL DEFAULT '',
	created_at           TEXT NOT NULL,
	expires_at           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_approvals_state ON approvals (state, expires_at);

CREATE TABLE IF NOT EXISTS audit_log (
	request_id           TEXT NOT NULL,
	agent_id             TEXT NOT NULL,
	action_type          TEXT NOT NULL,
	target_resource      TEXT NOT NULL,
	sanitized_parameters TEXT NOT NULL,
	decision             TEXT NOT NULL,
	emitted_decision     TEXT NOT NULL DEFAULT '',
	risk_score           REAL NOT NULL,
	matched_rules        TEXT NOT NULL,
	pii_entity_types     TEXT NOT NULL,
	mode_in_effect       TEXT NOT NULL,
	approval_id          TEXT NOT NULL DEFAULT '',
	forwarded            INTEGER NOT NULL,
	target_digest        TEXT NOT NULL DEFAULT '',
	ts                   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_ts ON audit_log (ts);
CREATE INDEX IF NOT EXISTS idx_audit_agent ON audit_log (agent_id, ts);
`

// Migrate creates the tables when absent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind converts ?-style placeholders to the dialect's form.
func (s *Store) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

// Timestamps are stored as RFC 3339 text so both dialects compare and
// sort them identically.
func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
