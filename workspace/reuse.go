package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/acorte/warren/internal/config"
	"github.com/acorte/warren/internal/lockfile"
	"github.com/acorte/warren/internal/store"
	"github.com/acorte/warren/internal/vcs"
)

// NoReusableWorkspaceError reports that no existing workspace could be
// repurposed. LastErr carries the most recent concrete failure, which is
// more useful for diagnosis than the generic message alone.
type NoReusableWorkspaceError struct {
	LastErr error
}

func (e *NoReusableWorkspaceError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("no reusable workspace available (last candidate failed: %v)", e.LastErr)
	}
	return "no reusable workspace available"
}

func (e *NoReusableWorkspaceError) Unwrap() error { return e.LastErr }

// ReuseOptions describes the task an idle workspace should be prepared for.
type ReuseOptions struct {
	TaskID string
	Name   string

	// BaseBranch is fetched and checked out before the task branch is
	// created.
	BaseBranch string

	// Branch is the task branch to create. Skipped when config sets
	// skip-branch-creation or when empty.
	Branch string

	// PlanSource is the absolute path of a plan file inside the source
	// repository, copied at the mirrored relative path.
	PlanSource string
	PlanID     *int64
	PlanTitle  string
}

// restorePoint is the state a candidate is returned to when preparation
// fails partway.
type restorePoint struct {
	branch string
	commit string
}

// TryReuse walks the project's unlocked, non-primary workspaces in
// discovery order and prepares the first one that survives the full
// sequence: lock, snapshot, fetch, checkout, branch, plan copy, hooks.
//
// Candidates are attempted strictly one at a time. A candidate that fails
// after locking is rolled back to its snapshot, its lock force-released,
// and the scan continues. Only metadata-store failures abort the scan.
func (m *Manager) TryReuse(ctx context.Context, project *store.Project, opts ReuseOptions) (*store.Workspace, error) {
	candidates, err := m.store.ListWorkspaces(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.IsPrimary {
			continue
		}
		if _, err := os.Stat(candidate.Path); err != nil {
			continue
		}

		ws, attemptErr := m.attemptReuse(ctx, candidate, opts)
		if attemptErr == nil && ws != nil {
			return ws, nil
		}
		if attemptErr != nil {
			if isStoreFailure(attemptErr) {
				return nil, attemptErr
			}
			m.logf("workspace %s: %v", candidate.Path, attemptErr)
			lastErr = attemptErr
		}
	}

	return nil, &NoReusableWorkspaceError{LastErr: lastErr}
}

// storeError marks failures that should abort the candidate scan instead
// of moving on to the next workspace.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

func isStoreFailure(err error) bool {
	var se *storeError
	return errors.As(err, &se)
}

// attemptReuse runs the full reuse sequence against one candidate. A nil
// workspace with nil error means the candidate was skipped without trying
// (dirty working copy, lock held elsewhere).
func (m *Manager) attemptReuse(ctx context.Context, candidate *store.Workspace, opts ReuseOptions) (*store.Workspace, error) {
	backend := m.detect(candidate.Path)

	// jj handles in-progress work transactionally, so a dirty working
	// copy only disqualifies git candidates.
	if backend.Kind() != vcs.KindJujutsu {
		dirty, err := backend.HasUncommittedChanges(candidate.Path)
		if err != nil {
			return nil, err
		}
		if dirty {
			m.logf("workspace %s has uncommitted changes, skipping", candidate.Path)
			return nil, nil
		}
	}

	label := "reuse"
	if opts.TaskID != "" {
		label = "reuse for " + opts.TaskID
	}
	if _, err := lockfile.Acquire(candidate.Path, lockfile.Options{Command: label, Owner: m.owner}); err != nil {
		var locked *lockfile.AlreadyLockedError
		if errors.As(err, &locked) {
			m.logf("workspace %s is locked, skipping", candidate.Path)
			return nil, nil
		}
		return nil, err
	}

	snapshot, err := m.snapshot(backend, candidate.Path)
	if err != nil {
		lockfile.Release(candidate.Path, true)
		return nil, err
	}

	createdBranch, err := m.prepare(backend, candidate.Path, opts)
	if err != nil {
		m.rollback(backend, candidate.Path, snapshot, createdBranch)
		return nil, err
	}

	var copied planCopy
	if opts.PlanSource != "" {
		project, perr := m.projectRoot(ctx, candidate.ProjectID)
		if perr != nil {
			m.rollback(backend, candidate.Path, snapshot, createdBranch)
			return nil, perr
		}
		copied, err = copyPlanFile(project, opts.PlanSource, candidate.Path)
		if err != nil {
			m.rollback(backend, candidate.Path, snapshot, createdBranch)
			return nil, err
		}
	}

	if err := config.RunCommands(candidate.Path, m.cfg.Workspace.PostApply); err != nil {
		copied.cleanup()
		m.rollback(backend, candidate.Path, snapshot, createdBranch)
		return nil, fmt.Errorf("post-apply hook: %w", err)
	}

	patch := store.WorkspacePatch{
		TaskID:    &opts.TaskID,
		PlanTitle: &opts.PlanTitle,
	}
	if opts.Name != "" {
		patch.Name = &opts.Name
	}
	if opts.Branch != "" && !m.cfg.Workspace.SkipBranchCreation {
		patch.Branch = &opts.Branch
	}
	if opts.PlanID != nil {
		patch.PlanID = opts.PlanID
	}
	ws, err := m.store.PatchWorkspace(ctx, candidate.Path, patch)
	if err != nil {
		copied.cleanup()
		m.rollback(backend, candidate.Path, snapshot, createdBranch)
		return nil, &storeError{err: err}
	}
	return ws, nil
}

func (m *Manager) projectRoot(ctx context.Context, projectID int64) (string, error) {
	project, err := m.store.ProjectByID(ctx, projectID)
	if err != nil {
		return "", &storeError{err: err}
	}
	if project == nil {
		return "", &storeError{err: fmt.Errorf("project %d not found", projectID)}
	}
	return project.GitRoot, nil
}

func (m *Manager) snapshot(backend vcs.Backend, path string) (restorePoint, error) {
	branch, err := backend.CurrentBranch(path)
	if err != nil {
		return restorePoint{}, fmt.Errorf("snapshot branch: %w", err)
	}
	commit, err := backend.CurrentCommit(path)
	if err != nil {
		return restorePoint{}, fmt.Errorf("snapshot commit: %w", err)
	}
	return restorePoint{branch: branch, commit: commit}, nil
}

// prepare readies a locked candidate for the task. It returns the name of
// the branch this attempt created, or "" when none was; rollback must only
// ever delete a branch prepare actually created, never one the user already
// had.
func (m *Manager) prepare(backend vcs.Backend, path string, opts ReuseOptions) (string, error) {
	if err := backend.Fetch(path); err != nil {
		return "", fmt.Errorf("fetch: %w", err)
	}
	if opts.BaseBranch != "" {
		if err := backend.Checkout(path, opts.BaseBranch); err != nil {
			return "", fmt.Errorf("checkout %s: %w", opts.BaseBranch, err)
		}
	}
	if opts.Branch == "" || m.cfg.Workspace.SkipBranchCreation {
		return "", nil
	}

	if err := backend.CreateBranch(path, opts.Branch, opts.BaseBranch); err != nil {
		return "", fmt.Errorf("create branch %s: %w", opts.Branch, err)
	}
	if err := backend.Checkout(path, opts.Branch); err != nil {
		return opts.Branch, fmt.Errorf("checkout %s: %w", opts.Branch, err)
	}
	return opts.Branch, nil
}

// rollback returns a candidate to its snapshot: checkout the recorded
// branch, falling back to the bare commit; drop the task branch if it was
// created and differs from the restored one; force-release the lock.
func (m *Manager) rollback(backend vcs.Backend, path string, snap restorePoint, createdBranch string) {
	target := snap.branch
	if target == "" {
		target = snap.commit
	}
	if target != "" {
		if err := backend.Checkout(path, target); err != nil && snap.commit != "" && target != snap.commit {
			if err := backend.Checkout(path, snap.commit); err != nil {
				m.logf("rollback of %s could not restore %s: %v", path, snap.commit, err)
			}
		}
	}

	if createdBranch != "" && createdBranch != snap.branch {
		if has, err := backend.HasBranch(path, createdBranch); err == nil && has {
			if err := backend.DeleteBranch(path, createdBranch); err != nil {
				m.logf("rollback of %s could not delete branch %s: %v", path, createdBranch, err)
			}
		}
	}

	if _, err := lockfile.Release(path, true); err != nil {
		m.logf("rollback of %s could not release lock: %v", path, err)
	}
}
