// Package main implements the warren CLI tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/acorte/warren/internal/lockfile"
	"github.com/acorte/warren/internal/paths"
	"github.com/acorte/warren/internal/store"
	"github.com/acorte/warren/internal/vcs"
	"github.com/acorte/warren/transfer"
	"github.com/spf13/cobra"
)

func main() {
	os.Exit(Main())
}

// Main runs the root command and returns the process exit code. Script
// tests call it to run the CLI in-process.
func Main() int {
	lockfile.InstallExitHandler()
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

var rootCmd = &cobra.Command{
	Use:           "warren",
	Short:         "Warren - coordinate plans and tasks across a pool of workspaces",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// getRepoPath returns the repository root for the current directory.
func getRepoPath() (string, error) {
	cwd, err := paths.WorkingDir()
	if err != nil {
		return "", err
	}

	if root, err := vcs.NewGit().RepoRoot(cwd); err == nil {
		return root, nil
	}
	root, err := vcs.NewJujutsu().WorkspaceRoot(cwd)
	if err != nil {
		return "", fmt.Errorf("not inside a git or jj repository: %s", cwd)
	}
	return root, nil
}

// resolvePath returns the workspace path from args or current directory.
func resolvePath(args []string) (string, error) {
	if len(args) > 0 {
		path := args[0]
		if !filepath.IsAbs(path) {
			cwd, err := paths.WorkingDir()
			if err != nil {
				return "", err
			}
			path = filepath.Join(cwd, path)
		}
		return path, nil
	}

	return paths.WorkingDir()
}

// openStore opens the metadata database at its default location.
func openStore(ctx context.Context) (*store.Store, error) {
	dbPath, err := paths.DefaultDatabasePath()
	if err != nil {
		return nil, err
	}
	return store.Open(ctx, dbPath)
}

// openProject opens the store and resolves the project for the repository
// containing the current directory.
func openProject(ctx context.Context) (*store.Store, *store.Project, string, error) {
	repoRoot, err := getRepoPath()
	if err != nil {
		return nil, nil, "", err
	}

	remoteURL := remoteURLFor(repoRoot)

	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, "", err
	}

	project, err := st.GetOrCreateProject(ctx, repositoryID(remoteURL, repoRoot), remoteURL, repoRoot)
	if err != nil {
		st.Close()
		return nil, nil, "", err
	}
	return st, project, repoRoot, nil
}

func remoteURLFor(repoRoot string) string {
	if vcs.UsingJujutsu(repoRoot) {
		url, err := vcs.NewJujutsu().RemoteURL(repoRoot, "origin")
		if err == nil && url != "" {
			return url
		}
	}
	url, err := vcs.NewGit().RemoteURL(repoRoot, "origin")
	if err != nil {
		return ""
	}
	return url
}

// repositoryID derives a stable grouping key from the remote URL, falling
// back to the local repository root when there is no remote.
func repositoryID(remoteURL, repoRoot string) string {
	id := strings.TrimSpace(remoteURL)
	if id == "" {
		return repoRoot
	}

	id = strings.TrimSuffix(id, ".git")
	for _, scheme := range []string{"https://", "http://", "ssh://", "git://"} {
		id = strings.TrimPrefix(id, scheme)
	}
	// scp-style git@host:org/repo
	if at := strings.Index(id, "@"); at >= 0 {
		id = id[at+1:]
		id = strings.Replace(id, ":", "/", 1)
	}
	return strings.TrimSuffix(id, "/")
}

// currentUser returns the identity recorded on claims and locks, or ""
// when none is available.
func currentUser() string {
	if name := os.Getenv("WARREN_USER"); name != "" {
		return name
	}
	u, err := user.Current()
	if err != nil {
		return ""
	}
	return u.Username
}

// resolveWorkspacePath maps an identifier to a workspace directory: an
// existing directory wins, otherwise the metadata store is consulted for a
// name, path, or task id match.
func resolveWorkspacePath(ctx context.Context, st *store.Store, project *store.Project, identifier string) (string, error) {
	if identifier == "" {
		return paths.WorkingDir()
	}

	abs, err := filepath.Abs(identifier)
	if err == nil {
		if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
			return abs, nil
		}
	}

	ws, err := transfer.New(st, nil).ResolveWorkspace(ctx, project, identifier)
	if err != nil {
		return "", err
	}
	return ws.Path, nil
}
