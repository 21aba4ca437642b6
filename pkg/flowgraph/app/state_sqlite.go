package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrStateClosed is returned by a closed SQLiteStateStore.
var ErrStateClosed = errors.New("state store closed")

// SQLiteStateStore keeps state in a SQLite database.
type SQLiteStateStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStateStore opens or creates the database at path. Use
// ":memory:" for tests.
func NewSQLiteStateStore(path string) (*SQLiteStateStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS deployments (
			identity TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteStateStore{db: db}, nil
}

// Load implements StateStore.
func (s *SQLiteStateStore) Load(ctx context.Context) ([]StateEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStateClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT identity, path FROM deployments ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	defer rows.Close()

	var entries []StateEntry
	for rows.Next() {
		var e StateEntry
		if err := rows.Scan(&e.Identity, &e.Path); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Save implements StateStore. All rows are replaced in one transaction.
func (s *SQLiteStateStore) Save(ctx context.Context, entries []StateEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStateClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM deployments`); err != nil {
		return fmt.Errorf("clear state: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO deployments (identity, path, updated_at) VALUES (?, ?, ?)`,
			e.Identity, e.Path, now); err != nil {
			return fmt.Errorf("save %s: %w", e.Identity, err)
		}
	}
	return tx.Commit()
}

// Close implements StateStore.
func (s *SQLiteStateStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
