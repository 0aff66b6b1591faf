// Package workspace provisions, reuses, and garbage-collects the working
// copies warren tracks for a project.
//
// A Manager owns the lifecycle: Create builds a fresh directory from the
// source repository, TryReuse repurposes an idle one under a lock, and GC
// drops metadata rows whose directories have disappeared. Every mutation of
// an existing workspace happens with its lock marker held.
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/acorte/warren/internal/config"
	"github.com/acorte/warren/internal/lockfile"
	"github.com/acorte/warren/internal/store"
	"github.com/acorte/warren/internal/vcs"
)

// Manager coordinates workspace provisioning and reuse for one project.
type Manager struct {
	store     *store.Store
	cfg       *config.Config
	detect    func(path string) vcs.Backend
	provision func(method config.CloneMethod, gitRoot, dest string) error
	owner     string
	logf      func(format string, args ...any)
}

// ManagerOptions configures a Manager. Store and Config are required; the
// rest default to sensible production values.
type ManagerOptions struct {
	Store  *store.Store
	Config *config.Config

	// Owner identifies the acquiring user in lock markers. Optional.
	Owner string

	// Detect overrides backend detection. Used by tests.
	Detect func(path string) vcs.Backend

	// Provision overrides the clone strategy. Used by tests.
	Provision func(method config.CloneMethod, gitRoot, dest string) error

	// Logf receives progress messages. Defaults to a no-op.
	Logf func(format string, args ...any)
}

// NewManager builds a Manager from options.
func NewManager(opts ManagerOptions) *Manager {
	m := &Manager{
		store:     opts.Store,
		cfg:       opts.Config,
		detect:    opts.Detect,
		provision: opts.Provision,
		owner:     opts.Owner,
		logf:      opts.Logf,
	}
	if m.cfg == nil {
		m.cfg = &config.Config{}
	}
	if m.detect == nil {
		m.detect = vcs.Detect
	}
	if m.provision == nil {
		m.provision = defaultProvision
	}
	if m.logf == nil {
		m.logf = func(string, ...any) {}
	}
	return m
}

func defaultProvision(method config.CloneMethod, gitRoot, dest string) error {
	switch method {
	case config.CloneJujutsuWorkspace:
		return vcs.NewJujutsu().WorkspaceAdd(gitRoot, filepath.Base(dest), dest)
	default:
		return vcs.NewGit().Clone(gitRoot, dest)
	}
}

// CreateOptions describes a new workspace to provision.
type CreateOptions struct {
	// Path is the destination directory. Must not exist yet.
	Path string

	TaskID      string
	Name        string
	Description string

	// BaseBranch is the ref the task branch starts from. Defaults to the
	// clone's checked-out branch.
	BaseBranch string

	// Branch is the task branch to create and check out. Skipped when
	// config sets skip-branch-creation or when empty.
	Branch string

	// PlanSource is the absolute path of a plan file inside the source
	// repository, copied into the workspace at the mirrored relative path.
	PlanSource string
	PlanID     *int64
	PlanTitle  string

	IsPrimary bool
}

// Create provisions a new workspace directory, prepares its branch, copies
// the plan file, runs post-create hooks, and records the metadata row.
//
// There is no rollback target mid-creation: any failure removes the
// half-built directory and returns the error.
func (m *Manager) Create(ctx context.Context, project *store.Project, opts CreateOptions) (*store.Workspace, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("workspace path is required")
	}
	if _, err := os.Stat(opts.Path); err == nil {
		return nil, fmt.Errorf("workspace directory %s already exists", opts.Path)
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace parent: %w", err)
	}

	m.logf("provisioning %s via %s", opts.Path, m.cfg.Workspace.Method())
	if err := m.provision(m.cfg.Workspace.Method(), project.GitRoot, opts.Path); err != nil {
		os.RemoveAll(opts.Path)
		return nil, fmt.Errorf("provision workspace: %w", err)
	}

	ws, err := m.finishCreate(ctx, project, opts)
	if err != nil {
		os.RemoveAll(opts.Path)
		return nil, err
	}
	return ws, nil
}

func (m *Manager) finishCreate(ctx context.Context, project *store.Project, opts CreateOptions) (*store.Workspace, error) {
	backend := m.detect(opts.Path)

	branch := ""
	if opts.Branch != "" && !m.cfg.Workspace.SkipBranchCreation {
		branch = opts.Branch
		base := opts.BaseBranch
		if base == "" {
			current, err := backend.CurrentBranch(opts.Path)
			if err != nil {
				return nil, fmt.Errorf("resolve base branch: %w", err)
			}
			base = current
		}
		if base != "" {
			if err := backend.Checkout(opts.Path, base); err != nil {
				return nil, fmt.Errorf("checkout base %s: %w", base, err)
			}
		}
		if err := backend.CreateBranch(opts.Path, branch, base); err != nil {
			return nil, fmt.Errorf("create branch %s: %w", branch, err)
		}
		if err := backend.Checkout(opts.Path, branch); err != nil {
			return nil, fmt.Errorf("checkout branch %s: %w", branch, err)
		}
	}

	if opts.PlanSource != "" {
		if _, err := copyPlanFile(project.GitRoot, opts.PlanSource, opts.Path); err != nil {
			return nil, err
		}
	}
	if err := m.copyPatterns(project.GitRoot, opts.Path); err != nil {
		return nil, err
	}

	if err := config.RunCommands(opts.Path, m.cfg.Workspace.PostCreate); err != nil {
		return nil, fmt.Errorf("post-create hook: %w", err)
	}

	ws, err := m.store.RecordWorkspace(ctx, store.Workspace{
		ProjectID:   project.ID,
		Path:        opts.Path,
		TaskID:      opts.TaskID,
		Branch:      branch,
		Name:        opts.Name,
		Description: opts.Description,
		PlanID:      opts.PlanID,
		PlanTitle:   opts.PlanTitle,
		IsPrimary:   opts.IsPrimary,
	})
	if err != nil {
		return nil, fmt.Errorf("record workspace: %w", err)
	}
	return ws, nil
}

// copyPatterns copies configured repo-relative globs into the workspace.
// Files the clone already carries are skipped.
func (m *Manager) copyPatterns(gitRoot, dest string) error {
	for _, pattern := range m.cfg.Workspace.CopyPatterns {
		matches, err := filepath.Glob(filepath.Join(gitRoot, pattern))
		if err != nil {
			return fmt.Errorf("copy pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			rel, err := filepath.Rel(gitRoot, match)
			if err != nil {
				return fmt.Errorf("copy pattern %q: %w", pattern, err)
			}
			target := filepath.Join(dest, rel)
			if _, err := os.Stat(target); err == nil {
				continue
			}
			if err := copyFile(match, target); err != nil {
				return fmt.Errorf("copy %s: %w", rel, err)
			}
		}
	}
	return nil
}

// copyPlanFile mirrors the plan's source-relative location inside the
// workspace. Returns the destination path and whether a file already
// existed there.
func copyPlanFile(gitRoot, source, wsRoot string) (planCopy, error) {
	rel, err := filepath.Rel(gitRoot, source)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return planCopy{}, fmt.Errorf("plan file %s is outside the repository", source)
	}

	dest := filepath.Join(wsRoot, rel)
	_, statErr := os.Stat(dest)
	preExisted := statErr == nil

	if err := copyFile(source, dest); err != nil {
		return planCopy{}, fmt.Errorf("copy plan file: %w", err)
	}
	return planCopy{path: dest, wsRoot: wsRoot, preExisted: preExisted}, nil
}

// planCopy remembers enough about a copied plan file to undo the copy.
type planCopy struct {
	path       string
	wsRoot     string
	preExisted bool
}

// cleanup removes a newly copied plan file and prunes parent directories
// that the copy created, stopping at the workspace root or the first
// non-empty directory. Pre-existing files are left alone.
func (c planCopy) cleanup() {
	if c.path == "" || c.preExisted {
		return
	}
	os.Remove(c.path)
	for dir := filepath.Dir(c.path); dir != c.wsRoot && dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
		if err := os.Remove(dir); err != nil {
			return
		}
	}
}

func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// LockState annotates a workspace with its current lock marker, if any.
type LockState struct {
	Locked bool
	Stale  bool
	Info   *lockfile.Info
}

// RefreshLockStatus reads the lock marker for a workspace directory.
func (m *Manager) RefreshLockStatus(ws *store.Workspace) (LockState, error) {
	info, err := lockfile.Read(ws.Path)
	if err != nil {
		return LockState{}, err
	}
	if info == nil {
		return LockState{}, nil
	}
	return LockState{Locked: true, Stale: lockfile.IsStale(info), Info: info}, nil
}

// GC deletes metadata rows for workspaces whose directories are missing.
// Returns the removed workspaces.
func (m *Manager) GC(ctx context.Context) ([]store.Workspace, error) {
	all, err := m.store.ListAllWorkspaces(ctx)
	if err != nil {
		return nil, err
	}

	var removed []store.Workspace
	for _, ws := range all {
		if _, err := os.Stat(ws.Path); err == nil {
			continue
		} else if !os.IsNotExist(err) {
			return removed, fmt.Errorf("stat %s: %w", ws.Path, err)
		}
		if err := m.store.DeleteWorkspace(ctx, ws.Path); err != nil {
			return removed, err
		}
		m.logf("removed record for missing workspace %s", ws.Path)
		removed = append(removed, ws)
	}
	return removed, nil
}
