package vcs

import (
	"strings"

	internalstrings "github.com/acorte/warren/internal/strings"
)

// Jujutsu wraps the jj CLI.
type Jujutsu struct{}

// NewJujutsu creates a new jj client.
func NewJujutsu() *Jujutsu {
	return &Jujutsu{}
}

// Kind returns KindJujutsu.
func (j *Jujutsu) Kind() Kind { return KindJujutsu }

// WorkspaceRoot returns the root directory of the workspace containing path.
func (j *Jujutsu) WorkspaceRoot(path string) (string, error) {
	return commandOutputString(command(path, "jj", "workspace", "root"))
}

// WorkspaceAdd registers a new workspace for the repository at repoPath.
func (j *Jujutsu) WorkspaceAdd(repoPath, name, workspacePath string) error {
	return runCombinedOutput(command(repoPath, "jj", "workspace", "add", "--name", name, workspacePath))
}

func (j *Jujutsu) logField(path, rev, template string) (string, error) {
	return commandOutputString(command(path, "jj", "log", "-r", rev, "-T", template, "--no-graph"))
}

// CurrentBranch returns the bookmark at the working copy revision, falling
// back to its parent. Returns "" when no bookmark points at either.
func (j *Jujutsu) CurrentBranch(path string) (string, error) {
	for _, rev := range []string{"@", "@-"} {
		out, err := j.logField(path, rev, `local_bookmarks.join("\n")`)
		if err != nil {
			return "", err
		}
		if name := firstLine(out); name != "" {
			return name, nil
		}
	}
	return "", nil
}

// CurrentCommit returns the commit hash of the working copy revision.
func (j *Jujutsu) CurrentCommit(path string) (string, error) {
	return j.logField(path, "@", "commit_id")
}

// HasUncommittedChanges reports whether the working copy revision carries
// changes. jj snapshots continuously, so this checks for a non-empty @.
func (j *Jujutsu) HasUncommittedChanges(path string) (bool, error) {
	out, err := j.logField(path, "@", `if(empty, "empty", "dirty")`)
	if err != nil {
		return false, err
	}
	return out == "dirty", nil
}

// Fetch updates refs from the default remote.
func (j *Jujutsu) Fetch(path string) error {
	return runCombinedOutput(command(path, "jj", "git", "fetch"))
}

// FetchRemote updates refs from the named remote.
func (j *Jujutsu) FetchRemote(path, remote string) error {
	return runCombinedOutput(command(path, "jj", "git", "fetch", "--remote", remote))
}

// Checkout moves the working copy onto a new change atop the given ref.
func (j *Jujutsu) Checkout(path, ref string) error {
	return runCombinedOutput(command(path, "jj", "new", ref))
}

// CreateBranch creates a bookmark at the given revision.
func (j *Jujutsu) CreateBranch(path, name, at string) error {
	if at == "" {
		at = "@"
	}
	return runCombinedOutput(command(path, "jj", "bookmark", "create", name, "-r", at))
}

// DeleteBranch deletes a bookmark.
func (j *Jujutsu) DeleteBranch(path, name string) error {
	return runCombinedOutput(command(path, "jj", "bookmark", "delete", name))
}

// HasBranch reports whether a local bookmark exists.
func (j *Jujutsu) HasBranch(path, name string) (bool, error) {
	bookmarks, err := j.BookmarkList(path)
	if err != nil {
		return false, err
	}
	for _, bookmark := range bookmarks {
		if bookmark == name {
			return true, nil
		}
	}
	return false, nil
}

// BookmarkList returns all local bookmark names.
func (j *Jujutsu) BookmarkList(path string) ([]string, error) {
	out, err := commandOutputString(command(path, "jj", "bookmark", "list", "-T", `name ++ "\n"`))
	if err != nil {
		return nil, err
	}

	var bookmarks []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			bookmarks = append(bookmarks, line)
		}
	}
	return bookmarks, nil
}

// SetBookmark moves (or creates) a bookmark to point at the given revision.
func (j *Jujutsu) SetBookmark(path, name, rev string) error {
	if rev == "" {
		rev = "@"
	}
	return runCombinedOutput(command(path, "jj", "bookmark", "set", name, "-r", rev, "--allow-backwards"))
}

// RemoteURL returns the URL of the named git remote, or "" if the remote is
// not registered.
func (j *Jujutsu) RemoteURL(path, remote string) (string, error) {
	out, err := commandOutputString(command(path, "jj", "git", "remote", "list"))
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == remote {
			return fields[1], nil
		}
	}
	return "", nil
}

// EnsureRemote registers the named git remote at url, correcting the URL of
// an existing remote that points elsewhere.
func (j *Jujutsu) EnsureRemote(path, remote, url string) error {
	existing, err := j.RemoteURL(path, remote)
	if err != nil {
		return err
	}
	if existing == url {
		return nil
	}
	if existing != "" {
		return runCombinedOutput(command(path, "jj", "git", "remote", "set-url", remote, url))
	}
	return runCombinedOutput(command(path, "jj", "git", "remote", "add", remote, url))
}

// TrackBookmark starts tracking a bookmark against the named remote.
func (j *Jujutsu) TrackBookmark(path, bookmark, remote string) error {
	return runCombinedOutput(command(path, "jj", "bookmark", "track", bookmark+"@"+remote))
}

// PushBookmark pushes a single bookmark to the named remote.
func (j *Jujutsu) PushBookmark(path, bookmark, remote string) error {
	return runCombinedOutput(command(path, "jj", "git", "push", "--remote", remote, "--bookmark", bookmark, "--allow-new"))
}

// IsBookmarkNotFound reports whether an error indicates a missing bookmark,
// which pull treats as a legitimate not-found rather than a failure.
func IsBookmarkNotFound(err error) bool {
	if err == nil {
		return false
	}
	return internalstrings.ContainsAnyLower(err.Error(),
		"no such bookmark",
		"no bookmarks matched",
		"doesn't exist",
		"does not exist",
	)
}

func firstLine(value string) string {
	if idx := strings.IndexByte(value, '\n'); idx >= 0 {
		value = value[:idx]
	}
	return strings.TrimSpace(value)
}
