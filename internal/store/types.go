package store

import "time"

// Project groups the workspaces and assignments that belong to one source
// repository.
type Project struct {
	ID           int64
	RepositoryID string
	RemoteURL    string
	GitRoot      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Workspace is one isolated working copy tracked by warren.
type Workspace struct {
	ID          int64
	ProjectID   int64
	Path        string
	TaskID      string
	Branch      string
	Name        string
	Description string
	PlanID      *int64
	PlanTitle   string
	IssueURLs   []string
	IsPrimary   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkspacePatch describes a partial update to a workspace record. Nil
// fields are left unchanged.
type WorkspacePatch struct {
	TaskID      *string
	Branch      *string
	Name        *string
	Description *string
	PlanID      *int64
	PlanTitle   *string
	IssueURLs   *[]string
	IsPrimary   *bool
}

// Assignment records which workspace and which user currently own a plan.
// Both dimensions vary independently; the row is deleted once both are
// empty.
type Assignment struct {
	ProjectID   int64
	PlanUUID    string
	PlanID      *int64
	WorkspaceID *int64
	ClaimedBy   *string
	UpdatedAt   time.Time
}
