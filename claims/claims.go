// Package claims coordinates plan ownership across workspaces and users.
//
// Ownership is a two-dimensional record: which workspace holds a plan and
// which user does. The two vary independently; a claim that moves one
// dimension warns about the previous holder instead of failing, and the
// record disappears once both dimensions are released. Callers are assumed
// to hold any relevant workspace lock already; conflicts surface as
// warnings, not errors.
package claims

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/acorte/warren/internal/store"
	internalstrings "github.com/acorte/warren/internal/strings"
	"github.com/acorte/warren/plan"
)

// Coordinator applies claim and release transitions against the metadata
// store.
type Coordinator struct {
	store *store.Store
	logf  func(format string, args ...any)
	warnf func(format string, args ...any)
}

// New builds a Coordinator. Nil sinks default to no-ops.
func New(st *store.Store, logf, warnf func(format string, args ...any)) *Coordinator {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if warnf == nil {
		warnf = func(string, ...any) {}
	}
	return &Coordinator{store: st, logf: logf, warnf: warnf}
}

// Claim records that the given workspace (and user, when identity is
// available) owns the plan.
//
// An untracked workspace is registered as a side effect; claiming never
// fails merely because the workspace was unknown. A plan without a UUID is
// assigned one and rewritten on disk, since assignments key on the UUID.
func (c *Coordinator) Claim(ctx context.Context, project *store.Project, p *plan.Plan, workspacePath, user string) error {
	if p.EnsureUUID() {
		if err := plan.Write(p.Path, p); err != nil {
			return fmt.Errorf("assign plan uuid: %w", err)
		}
	}

	ws, err := c.ensureWorkspace(ctx, project, workspacePath)
	if err != nil {
		return err
	}

	old, err := c.store.GetAssignment(ctx, project.ID, p.UUID)
	if err != nil {
		return err
	}

	if old == nil {
		next := store.Assignment{
			ProjectID:   project.ID,
			PlanUUID:    p.UUID,
			PlanID:      p.ID,
			WorkspaceID: &ws.ID,
		}
		message := "created assignment"
		if user != "" {
			next.ClaimedBy = &user
			message += ", added user " + user
		}
		if err := c.store.UpsertAssignment(ctx, next); err != nil {
			return err
		}
		c.logf("%s", message)
		return nil
	}

	workspaceChanged := old.WorkspaceID == nil || *old.WorkspaceID != ws.ID
	userChanged := user != "" && (old.ClaimedBy == nil || *old.ClaimedBy != user)
	if !workspaceChanged && !userChanged {
		return nil
	}

	if workspaceChanged && old.WorkspaceID != nil {
		previous := c.workspaceLabel(ctx, *old.WorkspaceID)
		warning := "previously claimed in workspace " + previous
		if old.ClaimedBy != nil {
			warning += " by user " + *old.ClaimedBy
		}
		c.warnf("%s; reassigning to workspace %s", warning, label(ws))
	}
	if userChanged && old.ClaimedBy != nil {
		c.warnf("previously claimed by user %s; reassigning to %s", *old.ClaimedBy, user)
	}

	next := *old
	next.PlanID = p.ID
	next.WorkspaceID = &ws.ID
	if user != "" {
		next.ClaimedBy = &user
	}
	if err := c.store.UpsertAssignment(ctx, next); err != nil {
		return err
	}

	var added []string
	if workspaceChanged {
		added = append(added, "added workspace")
	}
	if userChanged {
		added = append(added, "added user "+user)
	}
	c.logf("updated assignment (%s)", strings.Join(added, ", "))
	return nil
}

// Release gives up the calling workspace's claim on the plan.
//
// The caller's workspace must match the assignment; a mismatch mutates
// nothing, even when the user matches. The user dimension is cleared only
// when it equals the calling user, and the row is deleted once both
// dimensions are empty.
func (c *Coordinator) Release(ctx context.Context, project *store.Project, p *plan.Plan, workspacePath, user string, resetStatus bool) error {
	ws, err := c.store.WorkspaceByPath(ctx, workspacePath)
	if err != nil {
		return err
	}

	assignment, err := c.store.GetAssignment(ctx, project.ID, p.UUID)
	if err != nil {
		return err
	}

	switch {
	case assignment == nil:
		c.logf("no assignments to release")
	case ws == nil || assignment.WorkspaceID == nil || *assignment.WorkspaceID != ws.ID:
		c.logf("not claimed in workspace %s", workspaceLabelFromPath(ws, workspacePath))
		// A foreign claim stays untouched, plan file included.
		return nil
	default:
		if err := c.releaseMatched(ctx, project, assignment, user); err != nil {
			return err
		}
	}

	if resetStatus {
		return c.resetPlanStatus(p)
	}
	return nil
}

func (c *Coordinator) releaseMatched(ctx context.Context, project *store.Project, assignment *store.Assignment, user string) error {
	remaining := assignment.ClaimedBy
	if remaining != nil && *remaining == user {
		remaining = nil
	}

	if remaining == nil {
		if err := c.store.DeleteAssignment(ctx, project.ID, assignment.PlanUUID); err != nil {
			return err
		}
		c.logf("released assignment")
		return nil
	}

	next := *assignment
	next.WorkspaceID = nil
	next.ClaimedBy = remaining
	if err := c.store.UpsertAssignment(ctx, next); err != nil {
		return err
	}
	c.warnf("remains claimed by other users: %s", *remaining)
	return nil
}

// resetPlanStatus rewrites the plan file back to pending. Only plans with
// a numeric id carry a status worth resetting.
func (c *Coordinator) resetPlanStatus(p *plan.Plan) error {
	if p.ID == nil {
		return nil
	}
	if p.Status == plan.StatusPending {
		c.logf("plan status already pending")
		return nil
	}

	previous := p.Status
	p.Status = plan.StatusPending
	if err := plan.Write(p.Path, p); err != nil {
		return fmt.Errorf("reset plan status: %w", err)
	}
	c.logf("reset plan status from %q to %q", previous, plan.StatusPending)
	return nil
}

func (c *Coordinator) ensureWorkspace(ctx context.Context, project *store.Project, path string) (*store.Workspace, error) {
	ws, err := c.store.WorkspaceByPath(ctx, path)
	if err != nil {
		return nil, err
	}
	if ws != nil {
		return ws, nil
	}
	return c.store.RecordWorkspace(ctx, store.Workspace{
		ProjectID: project.ID,
		Path:      path,
		Name:      filepath.Base(path),
	})
}

func (c *Coordinator) workspaceLabel(ctx context.Context, id int64) string {
	ws, err := c.store.WorkspaceByID(ctx, id)
	if err != nil || ws == nil {
		return fmt.Sprintf("#%d", id)
	}
	return label(ws)
}

func label(ws *store.Workspace) string {
	return internalstrings.FirstNonBlank(ws.Name, ws.Path)
}

func workspaceLabelFromPath(ws *store.Workspace, path string) string {
	if ws != nil {
		return label(ws)
	}
	return path
}
