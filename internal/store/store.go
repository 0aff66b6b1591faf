// Package store persists workspace and plan-ownership metadata in an
// embedded SQLite database.
//
// The store is deliberately independent of the per-workspace lock markers:
// locks live inside workspace directories and survive database
// unavailability. Nothing here assumes transactional isolation across the
// steps of a larger operation; callers serialize through workspace locks.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the metadata database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path and ensures the
// schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS project (
  id            INTEGER PRIMARY KEY AUTOINCREMENT,
  repository_id TEXT NOT NULL UNIQUE,
  remote_url    TEXT,
  last_git_root TEXT,
  created_at    TEXT NOT NULL,
  updated_at    TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS workspace (
  id          INTEGER PRIMARY KEY AUTOINCREMENT,
  project_id  INTEGER NOT NULL REFERENCES project(id),
  path        TEXT NOT NULL UNIQUE,
  task_id     TEXT,
  branch      TEXT,
  name        TEXT,
  description TEXT,
  plan_id     INTEGER,
  plan_title  TEXT,
  is_primary  INTEGER NOT NULL DEFAULT 0,
  created_at  TEXT NOT NULL,
  updated_at  TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS workspace_issue (
  workspace_id INTEGER NOT NULL REFERENCES workspace(id) ON DELETE CASCADE,
  url          TEXT NOT NULL
);`,
		`CREATE TABLE IF NOT EXISTS assignment (
  project_id      INTEGER NOT NULL REFERENCES project(id),
  plan_uuid       TEXT NOT NULL,
  plan_id         INTEGER,
  workspace_id    INTEGER REFERENCES workspace(id),
  claimed_by_user TEXT,
  updated_at      TEXT NOT NULL,
  UNIQUE(project_id, plan_uuid)
);`,
		`CREATE INDEX IF NOT EXISTS workspace_project_idx ON workspace(project_id);`,
		`CREATE INDEX IF NOT EXISTS workspace_task_idx ON workspace(task_id);`,
		// At most one primary workspace per project.
		`CREATE UNIQUE INDEX IF NOT EXISTS workspace_primary_idx ON workspace(project_id) WHERE is_primary = 1;`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(value string) time.Time {
	parsed, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
