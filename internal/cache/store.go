// Package cache provides the device-local relational store: an embedded
// SQLite database holding denormalized copies of remote meal documents,
// reminder mirrors, and per-user sync metadata.
//
// The cache is a derived, possibly-stale copy of the remote store. It is
// never authoritative for conflict resolution; its job is availability when
// the network is not. All writes are durable on disk before the call
// returns, which is what lets the sync engine sequence cursor advancement
// after apply.
//
// Schema:
//   - meals: one row per meal (user_id, meal_id, meal_started, symptom_notes)
//   - meal_symptoms: entity-attribute-value rows, one per (meal, symptom name),
//     so new symptom names need no schema change
//   - users: sync metadata, last_fetched is the delta cursor
//   - reminders: remote reminder mirror plus the local is_scheduled flag
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection with journal-specific operations.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates or opens the cache database at the specified path.
//
// The database is opened in WAL mode so the dashboard and status commands
// can read while a sync pass writes. The caller MUST call Close() when done.
//
// Example:
//
//	store, err := cache.Open(filepath.Join(dir, "journal.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return s, nil
}

// Path returns the on-disk location of the database file.
func (s *Store) Path() string {
	return s.path
}

// Conn exposes the underlying connection pool for ad-hoc read-only queries.
func (s *Store) Conn() *sql.DB {
	return s.conn
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close cache database: %w", err)
	}

	s.conn = nil
	return nil
}

// InitSchema creates the cache tables if they don't exist. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS meals (
		user_id       TEXT NOT NULL,
		meal_id       TEXT NOT NULL,
		meal_started  INTEGER NOT NULL,
		symptom_notes TEXT NOT NULL DEFAULT '',
		UNIQUE (meal_id)
	);

	-- Entity-attribute-value rows: symptom names are dynamic, so they live
	-- in rows, not columns.
	CREATE TABLE IF NOT EXISTS meal_symptoms (
		user_id  TEXT NOT NULL,
		meal_id  TEXT NOT NULL,
		property TEXT NOT NULL,
		value    INTEGER NOT NULL,
		PRIMARY KEY (user_id, meal_id, property)
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id       TEXT PRIMARY KEY,
		is_first_time INTEGER NOT NULL DEFAULT 1,
		last_fetched  INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS reminders (
		reminder_id  TEXT NOT NULL,
		is_scheduled INTEGER NOT NULL DEFAULT 0,
		UNIQUE (reminder_id)
	);

	CREATE INDEX IF NOT EXISTS idx_meals_user ON meals(user_id, meal_started);
	CREATE INDEX IF NOT EXISTS idx_meal_symptoms_meal ON meal_symptoms(user_id, meal_id);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return nil
}
