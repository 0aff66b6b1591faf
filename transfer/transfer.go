// Package transfer moves refs between workspaces and named remotes.
//
// Two address spaces exist side by side: one local workspace can act as a
// read/write peer of another (push moves a branch directly between their
// directories), and a workspace can sync against a conventional named
// remote. Git and jj reach the peer differently: git fetches straight from
// the peer's path, jj needs a registered remote pointing at it.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acorte/warren/internal/store"
	"github.com/acorte/warren/internal/vcs"
)

// AmbiguousTaskIDError reports a task id that matches more than one
// workspace.
type AmbiguousTaskIDError struct {
	TaskID string
	Paths  []string
}

func (e *AmbiguousTaskIDError) Error() string {
	return fmt.Sprintf("task id %q matches %d workspaces: %s", e.TaskID, len(e.Paths), strings.Join(e.Paths, ", "))
}

// ErrNoPrimary indicates the project has no primary workspace to default
// the push destination to.
var ErrNoPrimary = errors.New("no primary workspace configured for this repository")

// ErrNoResolvableRef indicates no branch could be determined from the
// flag, the live working copy, or stored metadata.
var ErrNoResolvableRef = errors.New("no resolvable ref: pass --branch, or check out a branch in the source workspace")

type gitOps interface {
	CurrentBranch(path string) (string, error)
	HasBranch(path, name string) (bool, error)
	HasRemoteBranch(path, remote, name string) (bool, error)
	CreateBranch(path, name, at string) error
	CreateTrackingBranch(path, name, remote string) error
	Checkout(path, ref string) error
	FetchRemote(path, remote string) error
	FetchRefFromPath(path, sourcePath, ref string) error
	MergeFastForward(path, ref string) error
}

type jjOps interface {
	CurrentBranch(path string) (string, error)
	HasBranch(path, name string) (bool, error)
	CreateBranch(path, name, at string) error
	Checkout(path, ref string) error
	FetchRemote(path, remote string) error
	EnsureRemote(path, remote, url string) error
	SetBookmark(path, name, rev string) error
	TrackBookmark(path, bookmark, remote string) error
	PushBookmark(path, bookmark, remote string) error
}

// Syncer resolves workspaces and moves refs between them.
type Syncer struct {
	store   *store.Store
	git     gitOps
	jj      jjOps
	usingJJ func(path string) bool
	logf    func(format string, args ...any)
}

// New builds a Syncer backed by the real git and jj CLIs.
func New(st *store.Store, logf func(format string, args ...any)) *Syncer {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Syncer{
		store:   st,
		git:     vcs.NewGit(),
		jj:      vcs.NewJujutsu(),
		usingJJ: vcs.UsingJujutsu,
		logf:    logf,
	}
}

// ResolveWorkspace maps an identifier to one of the project's workspaces.
// The identifier is tried as a path, then a workspace name, then a task
// id; a task id matching several workspaces is an AmbiguousTaskIDError.
func (s *Syncer) ResolveWorkspace(ctx context.Context, project *store.Project, identifier string) (*store.Workspace, error) {
	if identifier == "" {
		return nil, fmt.Errorf("workspace identifier is empty")
	}

	if looksLikePath(identifier) {
		abs, err := filepath.Abs(identifier)
		if err == nil {
			ws, err := s.store.WorkspaceByPath(ctx, abs)
			if err != nil {
				return nil, err
			}
			if ws != nil {
				if ws.ProjectID != project.ID {
					return nil, fmt.Errorf("workspace %s belongs to a different repository", abs)
				}
				return ws, nil
			}
		}
	}

	all, err := s.store.ListWorkspaces(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == identifier {
			return &all[i], nil
		}
	}

	var byTask []*store.Workspace
	for i := range all {
		if all[i].TaskID == identifier {
			byTask = append(byTask, &all[i])
		}
	}
	switch len(byTask) {
	case 0:
		return nil, fmt.Errorf("no workspace matches %q", identifier)
	case 1:
		return byTask[0], nil
	default:
		paths := make([]string, len(byTask))
		for i, ws := range byTask {
			paths[i] = ws.Path
		}
		return nil, &AmbiguousTaskIDError{TaskID: identifier, Paths: paths}
	}
}

func looksLikePath(identifier string) bool {
	if filepath.IsAbs(identifier) || strings.ContainsRune(identifier, filepath.Separator) {
		return true
	}
	info, err := os.Stat(identifier)
	return err == nil && info.IsDir()
}

// PushOptions configures a workspace-to-workspace push.
type PushOptions struct {
	// Source identifies the workspace to push from. Required.
	Source string

	// Dest identifies the destination workspace. Empty means the
	// project's primary workspace.
	Dest string

	// Branch pins the ref to push. Empty falls back to the source's live
	// branch, then its stored branch.
	Branch string

	// MoveBookmark re-sets the jj bookmark to the working revision before
	// pushing. Ignored for git sources.
	MoveBookmark bool

	// RemoteName overrides the jj remote registered on the source for the
	// destination. Defaults to the destination's name or directory name.
	RemoteName string
}

// Push moves one ref from the source workspace into the destination.
//
// With a git source the destination fetches directly from the source's
// path, updating its identically named local branch even when checked out
// there. With a jj source the push goes through a remote registered on the
// source that points at the destination directory.
func (s *Syncer) Push(ctx context.Context, project *store.Project, opts PushOptions) (string, error) {
	src, err := s.ResolveWorkspace(ctx, project, opts.Source)
	if err != nil {
		return "", err
	}

	var dst *store.Workspace
	if opts.Dest == "" {
		dst, err = s.store.PrimaryWorkspace(ctx, project.ID)
		if err != nil {
			return "", err
		}
		if dst == nil {
			return "", ErrNoPrimary
		}
	} else {
		dst, err = s.ResolveWorkspace(ctx, project, opts.Dest)
		if err != nil {
			return "", err
		}
	}

	if src.Path == dst.Path {
		return "", fmt.Errorf("source and destination are the same workspace: %s", src.Path)
	}

	ref, err := s.resolveRef(src, opts.Branch)
	if err != nil {
		return "", err
	}
	if err := s.EnsureRefExists(src.Path, ref); err != nil {
		return "", err
	}

	if s.usingJJ(src.Path) {
		remote := opts.RemoteName
		if remote == "" {
			remote = dst.Name
		}
		if remote == "" {
			remote = filepath.Base(dst.Path)
		}
		if err := s.jj.EnsureRemote(src.Path, remote, dst.Path); err != nil {
			return "", err
		}
		if opts.MoveBookmark {
			if err := s.jj.SetBookmark(src.Path, ref, "@"); err != nil {
				return "", err
			}
		}
		if err := s.jj.TrackBookmark(src.Path, ref, remote); err != nil {
			return "", err
		}
		if err := s.jj.PushBookmark(src.Path, ref, remote); err != nil {
			return "", err
		}
	} else {
		if err := s.git.FetchRefFromPath(dst.Path, src.Path, ref); err != nil {
			return "", err
		}
	}

	s.logf("pushed %s from %s to %s", ref, src.Path, dst.Path)
	return ref, nil
}

// resolveRef picks the ref to move: explicit flag, then the live branch in
// the working copy, then the branch recorded in metadata.
func (s *Syncer) resolveRef(ws *store.Workspace, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}

	var live string
	var err error
	if s.usingJJ(ws.Path) {
		live, err = s.jj.CurrentBranch(ws.Path)
	} else {
		live, err = s.git.CurrentBranch(ws.Path)
	}
	if err == nil && live != "" {
		return live, nil
	}

	if ws.Branch != "" {
		return ws.Branch, nil
	}
	return "", ErrNoResolvableRef
}

// EnsureRefExists creates the branch or bookmark at the current revision
// if it does not exist yet. Idempotent.
func (s *Syncer) EnsureRefExists(path, name string) error {
	if s.usingJJ(path) {
		has, err := s.jj.HasBranch(path, name)
		if err != nil || has {
			return err
		}
		return s.jj.CreateBranch(path, name, "")
	}

	has, err := s.git.HasBranch(path, name)
	if err != nil || has {
		return err
	}
	return s.git.CreateBranch(path, name, "")
}

// PullOptions configures fetching a ref from a named remote into a
// workspace.
type PullOptions struct {
	// Workspace identifies the destination workspace. Required.
	Workspace string

	// Branch is the ref to pull. Empty falls back to the workspace's live
	// branch, then its stored branch.
	Branch string

	// Remote is the named remote to fetch from. Defaults to origin.
	Remote string
}

// PullRefIfExists fetches from the named remote and checks the ref out.
//
// A ref that exists neither locally nor on the remote is a legitimate
// no-op: the return is (false, nil), never an error. When only the remote
// ref exists a local tracking branch is created; when the local ref exists
// it is checked out and fast-forwarded if the remote ref is present too.
func (s *Syncer) PullRefIfExists(ctx context.Context, project *store.Project, opts PullOptions) (bool, error) {
	ws, err := s.ResolveWorkspace(ctx, project, opts.Workspace)
	if err != nil {
		return false, err
	}

	ref, err := s.resolveRef(ws, opts.Branch)
	if err != nil {
		return false, err
	}
	remote := opts.Remote
	if remote == "" {
		remote = "origin"
	}

	if s.usingJJ(ws.Path) {
		return s.pullJujutsu(ws.Path, ref, remote)
	}
	return s.pullGit(ws.Path, ref, remote)
}

func (s *Syncer) pullGit(path, ref, remote string) (bool, error) {
	if err := s.git.FetchRemote(path, remote); err != nil {
		return false, err
	}

	hasLocal, err := s.git.HasBranch(path, ref)
	if err != nil {
		return false, err
	}
	hasRemote, err := s.git.HasRemoteBranch(path, remote, ref)
	if err != nil {
		return false, err
	}

	switch {
	case !hasLocal && !hasRemote:
		return false, nil
	case !hasLocal:
		if err := s.git.CreateTrackingBranch(path, ref, remote); err != nil {
			return false, err
		}
	default:
		if err := s.git.Checkout(path, ref); err != nil {
			return false, err
		}
		if hasRemote {
			if err := s.git.MergeFastForward(path, remote+"/"+ref); err != nil {
				return false, err
			}
		}
	}
	return true, nil
}

// pullJujutsu treats "no such bookmark" from track and checkout as the
// not-found signal; any other failure is real.
func (s *Syncer) pullJujutsu(path, ref, remote string) (bool, error) {
	if err := s.jj.FetchRemote(path, remote); err != nil {
		return false, err
	}

	if err := s.jj.TrackBookmark(path, ref, remote); err != nil {
		if vcs.IsBookmarkNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if err := s.jj.Checkout(path, ref); err != nil {
		if vcs.IsBookmarkNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
