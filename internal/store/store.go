// Package store is the durable state of a GAnarchy instance: projects,
// tracking entries, federation sources, and the activity history.
//
// It exposes exactly two data paths: Snapshot, a consistent point-in-time
// read of everything, and ApplyBatch, an atomic write of a set of
// mutations. Concurrent readers never observe a half-applied batch.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a SQLite database.
// WAL mode keeps readers unblocked while a batch commits.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path. Idempotent: pragmas and
// schema are applied on every open.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY in the common case.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// instance settings keys.
const keyProjectCommit = "project_commit"

// SetProjectCommit records the instance's default project commit.
func (s *Store) SetProjectCommit(ctx context.Context, commit string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instance (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, keyProjectCommit, commit)
	if err != nil {
		return fmt.Errorf("set project commit: %w", err)
	}
	return nil
}

// ProjectCommit returns the instance's default project commit, or "" when
// none was set.
func (s *Store) ProjectCommit(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM instance WHERE key = ?`, keyProjectCommit,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get project commit: %w", err)
	}
	return value, nil
}
