// Package corestore is the single SQLite-backed persistence layer shared by
// every component of the research orchestration engine: runs, steps, jobs,
// source documents, prospects, executives, evidence, enrichment records,
// merge decisions, and export packs all live in one database so that a run
// can be inspected and cascade-deleted as a unit.
package corestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Store wraps a single *sql.DB. SQLite only tolerates one writer at a time,
// so the pool is limited to one connection (see Open); a transaction holds
// that connection for its lifetime, which is what gives claim-style calls
// their exclusivity within the process rather than row-level locking.
type Store struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path, applying
// the schema and the pragmas the store depends on for correctness:
// WAL so readers don't block the single writer, and foreign keys so
// cascade-delete is enforced by the engine rather than by application code.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// A single writer connection avoids "database is locked" errors under
	// concurrent workers; readers still proceed under WAL.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set foreign_keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	s := &Store{db: db}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for packages (jobqueue, contentstore, ...) that
// need direct transaction control beyond the helpers in this package.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Now returns the database's notion of the current instant. corestore
// stamps rows with it, and jobqueue reads the same SQLite clock inline
// (strftime 'now') for locked_at and next_retry_at, instead of time.Now(),
// so that proofs can fast-forward time by writing to
// the database rather than mocking the Go clock (spec open question,
// resolved in favor of DB time).
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("read db now: %w", err)
	}
	return time.Parse("2006-01-02T15:04:05.000Z", raw)
}

func (s *Store) applySchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02T15:04:05.000Z", raw)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}
