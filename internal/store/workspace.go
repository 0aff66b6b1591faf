package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const workspaceColumns = `id, project_id, path, COALESCE(task_id, ''), COALESCE(branch, ''),
COALESCE(name, ''), COALESCE(description, ''), plan_id, COALESCE(plan_title, ''),
is_primary, created_at, updated_at`

// RecordWorkspace inserts a workspace record and returns it with its id
// assigned. The path must not already be tracked.
func (s *Store) RecordWorkspace(ctx context.Context, ws Workspace) (*Workspace, error) {
	if ws.Path == "" {
		return nil, fmt.Errorf("workspace path is empty")
	}

	timestamp := now()
	result, err := s.db.ExecContext(ctx, `
INSERT INTO workspace(project_id, path, task_id, branch, name, description, plan_id, plan_title, is_primary, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, ws.ProjectID, ws.Path, ws.TaskID, ws.Branch, ws.Name, ws.Description, ws.PlanID, ws.PlanTitle, boolToInt(ws.IsPrimary), timestamp, timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert workspace: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("workspace id: %w", err)
	}

	if err := s.replaceIssueURLs(ctx, id, ws.IssueURLs); err != nil {
		return nil, err
	}

	return s.WorkspaceByID(ctx, id)
}

// PatchWorkspace applies a partial update to the workspace at path.
func (s *Store) PatchWorkspace(ctx context.Context, path string, patch WorkspacePatch) (*Workspace, error) {
	ws, err := s.WorkspaceByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, fmt.Errorf("workspace not tracked: %s", path)
	}

	set := "updated_at = ?"
	args := []any{now()}
	appendField := func(column string, value any) {
		set += ", " + column + " = ?"
		args = append(args, value)
	}

	if patch.TaskID != nil {
		appendField("task_id", *patch.TaskID)
	}
	if patch.Branch != nil {
		appendField("branch", *patch.Branch)
	}
	if patch.Name != nil {
		appendField("name", *patch.Name)
	}
	if patch.Description != nil {
		appendField("description", *patch.Description)
	}
	if patch.PlanID != nil {
		appendField("plan_id", *patch.PlanID)
	}
	if patch.PlanTitle != nil {
		appendField("plan_title", *patch.PlanTitle)
	}
	if patch.IsPrimary != nil {
		appendField("is_primary", boolToInt(*patch.IsPrimary))
	}

	args = append(args, ws.ID)
	if _, err := s.db.ExecContext(ctx, "UPDATE workspace SET "+set+" WHERE id = ?;", args...); err != nil {
		return nil, fmt.Errorf("update workspace: %w", err)
	}

	if patch.IssueURLs != nil {
		if err := s.replaceIssueURLs(ctx, ws.ID, *patch.IssueURLs); err != nil {
			return nil, err
		}
	}

	return s.WorkspaceByID(ctx, ws.ID)
}

// DeleteWorkspace removes the workspace record at path. Assignments pointing
// at it are detached rather than deleted.
func (s *Store) DeleteWorkspace(ctx context.Context, path string) error {
	ws, err := s.WorkspaceByPath(ctx, path)
	if err != nil {
		return err
	}
	if ws == nil {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, "UPDATE assignment SET workspace_id = NULL WHERE workspace_id = ?;", ws.ID); err != nil {
		return fmt.Errorf("detach assignments: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM workspace WHERE id = ?;", ws.ID); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

// WorkspaceByPath returns the workspace tracked at path, or nil.
func (s *Store) WorkspaceByPath(ctx context.Context, path string) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+workspaceColumns+" FROM workspace WHERE path = ?;", path)
	return s.scanWorkspace(ctx, row)
}

// WorkspaceByID returns the workspace with the given id, or nil.
func (s *Store) WorkspaceByID(ctx context.Context, id int64) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+workspaceColumns+" FROM workspace WHERE id = ?;", id)
	return s.scanWorkspace(ctx, row)
}

// ListWorkspaces returns all workspaces for a project in insertion order.
func (s *Store) ListWorkspaces(ctx context.Context, projectID int64) ([]Workspace, error) {
	return s.listWorkspaces(ctx, "SELECT "+workspaceColumns+" FROM workspace WHERE project_id = ? ORDER BY id;", projectID)
}

// ListWorkspacesByTaskID returns the project's workspaces carrying a task id.
func (s *Store) ListWorkspacesByTaskID(ctx context.Context, projectID int64, taskID string) ([]Workspace, error) {
	return s.listWorkspaces(ctx, "SELECT "+workspaceColumns+" FROM workspace WHERE project_id = ? AND task_id = ? ORDER BY id;", projectID, taskID)
}

// ListAllWorkspaces returns every tracked workspace across all projects.
func (s *Store) ListAllWorkspaces(ctx context.Context) ([]Workspace, error) {
	return s.listWorkspaces(ctx, "SELECT " + workspaceColumns + " FROM workspace ORDER BY id;")
}

// PrimaryWorkspace returns the project's primary workspace, or nil if none
// is configured.
func (s *Store) PrimaryWorkspace(ctx context.Context, projectID int64) (*Workspace, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+workspaceColumns+" FROM workspace WHERE project_id = ? AND is_primary = 1;", projectID)
	return s.scanWorkspace(ctx, row)
}

func (s *Store) listWorkspaces(ctx context.Context, query string, args ...any) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var items []Workspace
	for rows.Next() {
		ws, err := scanWorkspaceRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}

	for i := range items {
		urls, err := s.issueURLs(ctx, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].IssueURLs = urls
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkspaceRow(row rowScanner) (*Workspace, error) {
	var ws Workspace
	var planID sql.NullInt64
	var isPrimary int
	var createdAt, updatedAt string

	err := row.Scan(&ws.ID, &ws.ProjectID, &ws.Path, &ws.TaskID, &ws.Branch,
		&ws.Name, &ws.Description, &planID, &ws.PlanTitle,
		&isPrimary, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if planID.Valid {
		value := planID.Int64
		ws.PlanID = &value
	}
	ws.IsPrimary = isPrimary != 0
	ws.CreatedAt = parseTime(createdAt)
	ws.UpdatedAt = parseTime(updatedAt)
	return &ws, nil
}

func (s *Store) scanWorkspace(ctx context.Context, row *sql.Row) (*Workspace, error) {
	ws, err := scanWorkspaceRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}

	urls, err := s.issueURLs(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	ws.IssueURLs = urls
	return ws, nil
}

func (s *Store) issueURLs(ctx context.Context, workspaceID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT url FROM workspace_issue WHERE workspace_id = ? ORDER BY rowid;", workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list issue urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("read issue url: %w", err)
		}
		urls = append(urls, url)
	}
	return urls, rows.Err()
}

func (s *Store) replaceIssueURLs(ctx context.Context, workspaceID int64, urls []string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM workspace_issue WHERE workspace_id = ?;", workspaceID); err != nil {
		return fmt.Errorf("clear issue urls: %w", err)
	}
	for _, url := range urls {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO workspace_issue(workspace_id, url) VALUES(?, ?);", workspaceID, url); err != nil {
			return fmt.Errorf("insert issue url: %w", err)
		}
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
