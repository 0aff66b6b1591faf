package vcs

import (
	"errors"
	"os/exec"
)

// Git wraps the git CLI.
type Git struct{}

// NewGit creates a new git client.
func NewGit() *Git {
	return &Git{}
}

// Kind returns KindGit.
func (g *Git) Kind() Kind { return KindGit }

// Init initializes a new git repository at the given path.
func (g *Git) Init(path string) error {
	return runCombinedOutput(command(path, "git", "init", "--initial-branch=main"))
}

// Clone clones the repository at source into dest.
func (g *Git) Clone(source, dest string) error {
	return runCombinedOutput(command("", "git", "clone", source, dest))
}

// RepoRoot returns the repository root containing the given path.
func (g *Git) RepoRoot(path string) (string, error) {
	return commandOutputString(command(path, "git", "rev-parse", "--show-toplevel"))
}

// RemoteURL returns the fetch URL of the named remote, or "" if the remote
// does not exist.
func (g *Git) RemoteURL(path, remote string) (string, error) {
	url, err := commandOutputString(command(path, "git", "remote", "get-url", remote))
	if err != nil {
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			return "", nil
		}
		return "", err
	}
	return url, nil
}

// CurrentBranch returns the checked-out branch, or "" when detached.
func (g *Git) CurrentBranch(path string) (string, error) {
	branch, err := commandOutputString(command(path, "git", "branch", "--show-current"))
	if err != nil {
		return "", err
	}
	return branch, nil
}

// CurrentCommit returns the commit hash of HEAD.
func (g *Git) CurrentCommit(path string) (string, error) {
	return commandOutputString(command(path, "git", "rev-parse", "HEAD"))
}

// HasUncommittedChanges reports whether the working tree is dirty.
func (g *Git) HasUncommittedChanges(path string) (bool, error) {
	status, err := commandOutputString(command(path, "git", "status", "--porcelain"))
	if err != nil {
		return false, err
	}
	return status != "", nil
}

// Fetch updates refs from the default remote.
func (g *Git) Fetch(path string) error {
	return runCombinedOutput(command(path, "git", "fetch"))
}

// FetchRemote updates refs from the named remote.
func (g *Git) FetchRemote(path, remote string) error {
	return runCombinedOutput(command(path, "git", "fetch", remote))
}

// FetchRefFromPath fetches ref directly from another working copy on disk
// into the identically named local branch. --update-head-ok lets the fetch
// update the branch even while it is checked out here.
func (g *Git) FetchRefFromPath(path, sourcePath, ref string) error {
	refspec := "+refs/heads/" + ref + ":refs/heads/" + ref
	return runCombinedOutput(command(path, "git", "fetch", "--update-head-ok", sourcePath, refspec))
}

// Checkout moves the working tree to the given ref.
func (g *Git) Checkout(path, ref string) error {
	return runCombinedOutput(command(path, "git", "checkout", ref))
}

// CreateBranch creates a branch at the given revision without switching.
func (g *Git) CreateBranch(path, name, at string) error {
	args := []string{"branch", name}
	if at != "" {
		args = append(args, at)
	}
	return runCombinedOutput(command(path, "git", args...))
}

// DeleteBranch force-deletes a local branch.
func (g *Git) DeleteBranch(path, name string) error {
	return runCombinedOutput(command(path, "git", "branch", "-D", name))
}

// HasBranch reports whether a local branch exists.
func (g *Git) HasBranch(path, name string) (bool, error) {
	return g.hasRef(path, "refs/heads/"+name)
}

// HasRemoteBranch reports whether a remote-tracking branch exists.
func (g *Git) HasRemoteBranch(path, remote, name string) (bool, error) {
	return g.hasRef(path, "refs/remotes/"+remote+"/"+name)
}

func (g *Git) hasRef(path, ref string) (bool, error) {
	cmd := command(path, "git", "show-ref", "--verify", "--quiet", ref)
	err := cmd.Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, &CommandError{Args: cmd.Args, Err: err}
}

// CreateTrackingBranch creates a local branch tracking remote/name and
// checks it out.
func (g *Git) CreateTrackingBranch(path, name, remote string) error {
	return runCombinedOutput(command(path, "git", "checkout", "-b", name, "--track", remote+"/"+name))
}

// MergeFastForward fast-forwards the current branch to the given ref.
func (g *Git) MergeFastForward(path, ref string) error {
	return runCombinedOutput(command(path, "git", "merge", "--ff-only", ref))
}

// Commit stages everything and commits with the given message.
func (g *Git) Commit(path, message string) error {
	if err := runCombinedOutput(command(path, "git", "add", "-A")); err != nil {
		return err
	}
	return runCombinedOutput(command(path, "git", "commit", "-m", message))
}

// ConfigureUser sets a local commit identity, for repositories created in
// tests or fresh clones on machines with no global git config.
func (g *Git) ConfigureUser(path, name, email string) error {
	if err := runCombinedOutput(command(path, "git", "config", "user.name", name)); err != nil {
		return err
	}
	return runCombinedOutput(command(path, "git", "config", "user.email", email))
}
