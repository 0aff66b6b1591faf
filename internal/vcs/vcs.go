// Package vcs wraps the git and jj CLI tools behind one operation set.
//
// Every workspace uses exactly one backend. Callers probe with Detect and
// then dispatch through the Backend interface; backend-specific operations
// (direct path fetches for git, remote-tracked bookmarks for jj) hang off
// the concrete types.
package vcs

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Kind identifies a version control backend.
type Kind string

const (
	// KindGit is the git backend (branches and remotes).
	KindGit Kind = "git"
	// KindJujutsu is the jj backend (bookmarks and tracked remotes).
	KindJujutsu Kind = "jj"
)

// Backend is the uniform operation set shared by both backends.
type Backend interface {
	Kind() Kind

	// CurrentBranch returns the checked-out branch or bookmark name, or ""
	// when there is none (detached head, no bookmark at the working copy).
	CurrentBranch(path string) (string, error)

	// CurrentCommit returns the commit hash of the working copy revision.
	CurrentCommit(path string) (string, error)

	// HasUncommittedChanges reports whether the working copy is dirty.
	HasUncommittedChanges(path string) (bool, error)

	// Fetch updates refs from the default remote.
	Fetch(path string) error

	// Checkout moves the working copy to the given ref.
	Checkout(path, ref string) error

	// CreateBranch creates a branch or bookmark at the given revision
	// without moving the working copy.
	CreateBranch(path, name, at string) error

	// DeleteBranch removes a local branch or bookmark.
	DeleteBranch(path, name string) error

	// HasBranch reports whether a local branch or bookmark exists.
	HasBranch(path, name string) (bool, error)
}

// CommandError carries the failed command line and its stderr so operators
// can diagnose without re-running.
type CommandError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: %v", strings.Join(e.Args, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Detect returns the backend used by the working copy at path. A directory
// containing .jj is a jj workspace; anything else is treated as git.
func Detect(path string) Backend {
	if UsingJujutsu(path) {
		return NewJujutsu()
	}
	return NewGit()
}

// UsingJujutsu reports whether the working copy at path is a jj workspace.
func UsingJujutsu(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".jj"))
	return err == nil && info.IsDir()
}

func commandOutput(cmd *exec.Cmd) ([]byte, error) {
	output, err := cmd.Output()
	if err != nil {
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return nil, &CommandError{Args: cmd.Args, Stderr: stderr, Err: err}
	}
	return output, nil
}

func commandOutputString(cmd *exec.Cmd) (string, error) {
	output, err := commandOutput(cmd)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(output)), nil
}

func runCombinedOutput(cmd *exec.Cmd) error {
	output, err := cmd.CombinedOutput()
	if err != nil {
		return &CommandError{Args: cmd.Args, Stderr: string(output), Err: err}
	}
	return nil
}

func command(dir, name string, args ...string) *exec.Cmd {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	return cmd
}
