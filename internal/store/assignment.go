package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetAssignment returns the assignment for (project, plan uuid), or nil.
func (s *Store) GetAssignment(ctx context.Context, projectID int64, planUUID string) (*Assignment, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT project_id, plan_uuid, plan_id, workspace_id, claimed_by_user, updated_at
FROM assignment WHERE project_id = ? AND plan_uuid = ?;`, projectID, planUUID)

	var assignment Assignment
	var planID, workspaceID sql.NullInt64
	var claimedBy sql.NullString
	var updatedAt string

	err := row.Scan(&assignment.ProjectID, &assignment.PlanUUID, &planID, &workspaceID, &claimedBy, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read assignment: %w", err)
	}

	if planID.Valid {
		value := planID.Int64
		assignment.PlanID = &value
	}
	if workspaceID.Valid {
		value := workspaceID.Int64
		assignment.WorkspaceID = &value
	}
	if claimedBy.Valid && claimedBy.String != "" {
		value := claimedBy.String
		assignment.ClaimedBy = &value
	}
	assignment.UpdatedAt = parseTime(updatedAt)
	return &assignment, nil
}

// UpsertAssignment inserts or replaces the assignment for its
// (project, plan uuid) key.
func (s *Store) UpsertAssignment(ctx context.Context, assignment Assignment) error {
	if assignment.PlanUUID == "" {
		return fmt.Errorf("plan uuid is empty")
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO assignment(project_id, plan_uuid, plan_id, workspace_id, claimed_by_user, updated_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(project_id, plan_uuid) DO UPDATE SET
  plan_id         = excluded.plan_id,
  workspace_id    = excluded.workspace_id,
  claimed_by_user = excluded.claimed_by_user,
  updated_at      = excluded.updated_at;
`, assignment.ProjectID, assignment.PlanUUID, assignment.PlanID, assignment.WorkspaceID, assignment.ClaimedBy, now())
	if err != nil {
		return fmt.Errorf("upsert assignment: %w", err)
	}
	return nil
}

// DeleteAssignment removes the assignment for (project, plan uuid).
func (s *Store) DeleteAssignment(ctx context.Context, projectID int64, planUUID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM assignment WHERE project_id = ? AND plan_uuid = ?;", projectID, planUUID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}
