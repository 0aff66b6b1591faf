package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetOrCreateProject returns the project for a repository id, creating it on
// first reference. The remote URL and git root are refreshed on every call
// so the record carries the last-known values.
func (s *Store) GetOrCreateProject(ctx context.Context, repositoryID, remoteURL, gitRoot string) (*Project, error) {
	if repositoryID == "" {
		return nil, fmt.Errorf("repository id is empty")
	}

	timestamp := now()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO project(repository_id, remote_url, last_git_root, created_at, updated_at)
VALUES(?, ?, ?, ?, ?)
ON CONFLICT(repository_id) DO UPDATE SET
  remote_url    = excluded.remote_url,
  last_git_root = excluded.last_git_root,
  updated_at    = excluded.updated_at;
`, repositoryID, remoteURL, gitRoot, timestamp, timestamp)
	if err != nil {
		return nil, fmt.Errorf("upsert project: %w", err)
	}

	return s.ProjectByRepositoryID(ctx, repositoryID)
}

// ProjectByRepositoryID returns the project for a repository id, or nil if
// none exists.
func (s *Store) ProjectByRepositoryID(ctx context.Context, repositoryID string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, repository_id, COALESCE(remote_url, ''), COALESCE(last_git_root, ''), created_at, updated_at
FROM project WHERE repository_id = ?;`, repositoryID)
	return scanProject(row)
}

// ProjectByID returns the project with the given row id, or nil.
func (s *Store) ProjectByID(ctx context.Context, id int64) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, repository_id, COALESCE(remote_url, ''), COALESCE(last_git_root, ''), created_at, updated_at
FROM project WHERE id = ?;`, id)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*Project, error) {
	var project Project
	var createdAt, updatedAt string
	err := row.Scan(&project.ID, &project.RepositoryID, &project.RemoteURL, &project.GitRoot, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read project: %w", err)
	}

	project.CreatedAt = parseTime(createdAt)
	project.UpdatedAt = parseTime(updatedAt)
	return &project, nil
}
