/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence contract of the claim, notify and emr
  packages on one SQLite database. Claims, batches, profiles and EMR
  records are stored as JSON documents next to the columns that queries
  filter on, so the document shape can grow without migrations.

INTERFACES IMPLEMENTED:
  claim.Store:        Claim documents with optimistic versioning
  claim.Counter:      Sequential ids (upsert ... RETURNING in one statement)
  claim.BatchStore:   Payment batches
  claim.ActivityLog:  Infrastructure failure log
  claim.ProfileStore: User profiles
  notify.NoticeStore: In-app notices
  emr.Store:          Funding calls and interests

KEY TABLES:
  claims:        One row per claim, doc_json holds the full document
  counters:      name → last issued value
  batches:       reference → batch document
  activity_log:  Append-only failure entries
  notices:       In-app notifications
  users:         uid → profile document
  emr_calls:     Funding calls
  emr_interests: One row per (call, user), enforced by a unique index

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of SQLite's own locking.
  Claim updates are compare-and-set on the version column:

      UPDATE claims SET ..., version = ? WHERE id = ? AND version = ?

  Zero rows affected means someone else wrote first.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) so readers never block
  the single writer.

USAGE:
  store, err := sqlite.New("./data/rdc.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - claim/store.go: Interface definitions
  - claim/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Claims (document + query columns)
	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		claim_id TEXT NOT NULL,
		claim_type TEXT NOT NULL,
		uid TEXT NOT NULL,
		faculty TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		payment_sheet_ref TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		doc_json TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_claim_id
		ON claims(claim_id);
	CREATE INDEX IF NOT EXISTS idx_claims_uid_type
		ON claims(uid, claim_type);
	CREATE INDEX IF NOT EXISTS idx_claims_status
		ON claims(status);
	CREATE INDEX IF NOT EXISTS idx_claims_payment_sheet_ref
		ON claims(payment_sheet_ref) WHERE payment_sheet_ref != '';
	CREATE INDEX IF NOT EXISTS idx_claims_created_at
		ON claims(created_at, claim_id);

	-- Sequential id counters
	CREATE TABLE IF NOT EXISTS counters (
		name TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	);

	-- Payment batches
	CREATE TABLE IF NOT EXISTS batches (
		reference TEXT PRIMARY KEY,
		doc_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Activity log (append-only)
	CREATE TABLE IF NOT EXISTS activity_log (
		id TEXT PRIMARY KEY,
		operation TEXT NOT NULL,
		entity_ids_json TEXT NOT NULL,
		error TEXT NOT NULL,
		context_json TEXT,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activity_at
		ON activity_log(at DESC);

	-- In-app notices
	CREATE TABLE IF NOT EXISTS notices (
		id TEXT PRIMARY KEY,
		uid TEXT NOT NULL,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		link TEXT,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notices_uid
		ON notices(uid, created_at DESC);

	-- User profiles
	CREATE TABLE IF NOT EXISTS users (
		uid TEXT PRIMARY KEY,
		doc_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- EMR funding calls
	CREATE TABLE IF NOT EXISTS emr_calls (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		deadline TEXT NOT NULL,
		doc_json TEXT NOT NULL
	);

	-- EMR interests: one per user per call
	CREATE TABLE IF NOT EXISTS emr_interests (
		id TEXT PRIMARY KEY,
		call_id TEXT NOT NULL,
		uid TEXT NOT NULL,
		interest_id TEXT NOT NULL,
		registered_at TEXT NOT NULL,
		doc_json TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_emr_interest_unique
		ON emr_interests(call_id, uid);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"claims", "counters", "batches", "activity_log", "notices", "users", "emr_interests", "emr_calls"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed width so that text columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var timeNow = func() time.Time { return time.Now().UTC() }
