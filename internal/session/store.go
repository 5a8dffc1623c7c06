// Package session persists browser-session state that has to survive a
// reload, most importantly the id of the task that was in flight.
package session

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// TaskKey holds the last in-flight task id
const TaskKey = "task"

// Store is a SQLite-backed key/value store for session state
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the store at path. Use ":memory:" for an in-memory
// store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS session_state (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Get returns the value stored under key and whether it exists
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM session_state WHERE key = ?", key,
	).Scan(&value)

	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value
func (s *Store) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Take reads and removes the value under key. Only one caller can take a
// given value, even across processes sharing the database file.
func (s *Store) Take(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, fmt.Errorf("take %q: %w", key, err)
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRowContext(ctx,
		"SELECT value FROM session_state WHERE key = ?", key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("take %q: %w", key, err)
	}

	res, err := tx.ExecContext(ctx,
		"DELETE FROM session_state WHERE key = ? AND value = ?", key, value,
	)
	if err != nil {
		return "", false, fmt.Errorf("take %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("take %q: %w", key, err)
	}
	if n != 1 {
		return "", false, nil
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("take %q: %w", key, err)
	}
	return value, true, nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM session_state WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Close shuts down the store
func (s *Store) Close() error {
	return s.db.Close()
}

// NewTaskID returns a fresh task identifier
func NewTaskID() string {
	return fmt.Sprintf("task(%s)", uuid.NewString())
}
