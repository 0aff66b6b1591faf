package transfer

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/acorte/warren/internal/store"
)

// fakeGit records git sync operations keyed by workspace path.
type fakeGit struct {
	ops    []string
	live   map[string]string          // path -> checked-out branch
	local  map[string]map[string]bool // path -> local branches
	remote map[string]map[string]bool // path -> "remote/branch"
}

func newFakeGit() *fakeGit {
	return &fakeGit{
		live:   map[string]string{},
		local:  map[string]map[string]bool{},
		remote: map[string]map[string]bool{},
	}
}

func (f *fakeGit) record(path, op string) {
	f.ops = append(f.ops, filepath.Base(path)+": "+op)
}

func (f *fakeGit) CurrentBranch(path string) (string, error) { return f.live[path], nil }

func (f *fakeGit) HasBranch(path, name string) (bool, error) { return f.local[path][name], nil }

func (f *fakeGit) HasRemoteBranch(path, remote, name string) (bool, error) {
	return f.remote[path][remote+"/"+name], nil
}

func (f *fakeGit) CreateBranch(path, name, at string) error {
	f.record(path, "branch "+name)
	if f.local[path] == nil {
		f.local[path] = map[string]bool{}
	}
	f.local[path][name] = true
	return nil
}

func (f *fakeGit) CreateTrackingBranch(path, name, remote string) error {
	f.record(path, fmt.Sprintf("track %s from %s", name, remote))
	if f.local[path] == nil {
		f.local[path] = map[string]bool{}
	}
	f.local[path][name] = true
	f.live[path] = name
	return nil
}

func (f *fakeGit) Checkout(path, ref string) error {
	f.record(path, "checkout "+ref)
	f.live[path] = ref
	return nil
}

func (f *fakeGit) FetchRemote(path, remote string) error {
	f.record(path, "fetch "+remote)
	return nil
}

func (f *fakeGit) FetchRefFromPath(path, sourcePath, ref string) error {
	f.record(path, fmt.Sprintf("fetch %s from %s", ref, filepath.Base(sourcePath)))
	if f.local[path] == nil {
		f.local[path] = map[string]bool{}
	}
	f.local[path][ref] = true
	return nil
}

func (f *fakeGit) MergeFastForward(path, ref string) error {
	f.record(path, "ff "+ref)
	return nil
}

// fakeJJ records jj sync operations.
type fakeJJ struct {
	ops       []string
	live      map[string]string
	bookmarks map[string]map[string]bool
	remotes   map[string]map[string]string // path -> remote -> url
	trackErr  error
}

func newFakeJJ() *fakeJJ {
	return &fakeJJ{
		live:      map[string]string{},
		bookmarks: map[string]map[string]bool{},
		remotes:   map[string]map[string]string{},
	}
}

func (f *fakeJJ) record(path, op string) {
	f.ops = append(f.ops, filepath.Base(path)+": "+op)
}

func (f *fakeJJ) CurrentBranch(path string) (string, error) { return f.live[path], nil }

func (f *fakeJJ) HasBranch(path, name string) (bool, error) { return f.bookmarks[path][name], nil }

func (f *fakeJJ) CreateBranch(path, name, at string) error {
	f.record(path, "bookmark "+name)
	if f.bookmarks[path] == nil {
		f.bookmarks[path] = map[string]bool{}
	}
	f.bookmarks[path][name] = true
	return nil
}

func (f *fakeJJ) Checkout(path, ref string) error {
	f.record(path, "checkout "+ref)
	return nil
}

func (f *fakeJJ) FetchRemote(path, remote string) error {
	f.record(path, "fetch "+remote)
	return nil
}

func (f *fakeJJ) EnsureRemote(path, remote, url string) error {
	f.record(path, fmt.Sprintf("remote %s -> %s", remote, filepath.Base(url)))
	if f.remotes[path] == nil {
		f.remotes[path] = map[string]string{}
	}
	f.remotes[path][remote] = url
	return nil
}

func (f *fakeJJ) SetBookmark(path, name, rev string) error {
	f.record(path, fmt.Sprintf("set %s to %s", name, rev))
	return nil
}

func (f *fakeJJ) TrackBookmark(path, bookmark, remote string) error {
	f.record(path, fmt.Sprintf("track %s@%s", bookmark, remote))
	return f.trackErr
}

func (f *fakeJJ) PushBookmark(path, bookmark, remote string) error {
	f.record(path, fmt.Sprintf("push %s to %s", bookmark, remote))
	return nil
}

type syncFixture struct {
	syncer  *Syncer
	store   *store.Store
	project *store.Project
	git     *fakeGit
	jj      *fakeJJ
	jjPaths map[string]bool
}

func newSyncFixture(t *testing.T) *syncFixture {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "warren.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	project, err := st.GetOrCreateProject(context.Background(), "repo", "", "/src/repo")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}

	f := &syncFixture{
		store:   st,
		project: project,
		git:     newFakeGit(),
		jj:      newFakeJJ(),
		jjPaths: map[string]bool{},
	}
	f.syncer = &Syncer{
		store:   st,
		git:     f.git,
		jj:      f.jj,
		usingJJ: func(path string) bool { return f.jjPaths[path] },
		logf:    func(string, ...any) {},
	}
	return f
}

func (f *syncFixture) addWorkspace(t *testing.T, ws store.Workspace) *store.Workspace {
	t.Helper()
	ws.ProjectID = f.project.ID
	recorded, err := f.store.RecordWorkspace(context.Background(), ws)
	if err != nil {
		t.Fatalf("record workspace: %v", err)
	}
	return recorded
}

func TestResolveWorkspace(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/alpha", Name: "alpha", TaskID: "t1"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/beta", Name: "beta", TaskID: "t2"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/gamma", Name: "gamma", TaskID: "t2"})

	ctx := context.Background()

	byName, err := f.syncer.ResolveWorkspace(ctx, f.project, "alpha")
	if err != nil || byName.Path != "/ws/alpha" {
		t.Fatalf("by name: %v %v", byName, err)
	}

	byPath, err := f.syncer.ResolveWorkspace(ctx, f.project, "/ws/beta")
	if err != nil || byPath.Name != "beta" {
		t.Fatalf("by path: %v %v", byPath, err)
	}

	byTask, err := f.syncer.ResolveWorkspace(ctx, f.project, "t1")
	if err != nil || byTask.Name != "alpha" {
		t.Fatalf("by task: %v %v", byTask, err)
	}

	_, err = f.syncer.ResolveWorkspace(ctx, f.project, "t2")
	var ambiguous *AmbiguousTaskIDError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("expected AmbiguousTaskIDError, got %v", err)
	}
	if !reflect.DeepEqual(ambiguous.Paths, []string{"/ws/beta", "/ws/gamma"}) {
		t.Fatalf("unexpected matches %v", ambiguous.Paths)
	}

	if _, err := f.syncer.ResolveWorkspace(ctx, f.project, "nope"); err == nil {
		t.Fatal("expected error for unknown identifier")
	}
}

func TestResolveWorkspaceOtherProject(t *testing.T) {
	f := newSyncFixture(t)
	other, err := f.store.GetOrCreateProject(context.Background(), "other-repo", "", "/src/other")
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	if _, err := f.store.RecordWorkspace(context.Background(), store.Workspace{ProjectID: other.ID, Path: "/ws/foreign"}); err != nil {
		t.Fatalf("record workspace: %v", err)
	}

	_, err = f.syncer.ResolveWorkspace(context.Background(), f.project, "/ws/foreign")
	if err == nil {
		t.Fatal("expected cross-repository rejection")
	}
}

func TestPushGit(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src", Branch: "feature/x"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/main", Name: "main-ws", IsPrimary: true})
	f.git.live["/ws/src"] = "feature/x"
	f.git.local["/ws/src"] = map[string]bool{"feature/x": true}

	// Destination defaults to the primary workspace.
	ref, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src"})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if ref != "feature/x" {
		t.Fatalf("expected live branch, got %q", ref)
	}
	want := []string{"main: fetch feature/x from src"}
	if !reflect.DeepEqual(f.git.ops, want) {
		t.Fatalf("expected %v, got %v", want, f.git.ops)
	}

	// A second push repeats the same operation; nothing accumulates.
	if _, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src"}); err != nil {
		t.Fatalf("second push: %v", err)
	}
	if !reflect.DeepEqual(f.git.ops, append(want, want...)) {
		t.Fatalf("push is not idempotent: %v", f.git.ops)
	}
}

func TestPushRefPrecedence(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src", Branch: "stored"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/dst", Name: "dst"})
	f.git.live["/ws/src"] = "live"

	ref, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "dst", Branch: "flagged"})
	if err != nil || ref != "flagged" {
		t.Fatalf("expected flag to win, got %q %v", ref, err)
	}

	ref, err = f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "dst"})
	if err != nil || ref != "live" {
		t.Fatalf("expected live branch to win, got %q %v", ref, err)
	}

	f.git.live["/ws/src"] = ""
	ref, err = f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "dst"})
	if err != nil || ref != "stored" {
		t.Fatalf("expected stored branch, got %q %v", ref, err)
	}
}

func TestPushNoResolvableRef(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/dst", Name: "dst"})

	_, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "dst"})
	if !errors.Is(err, ErrNoResolvableRef) {
		t.Fatalf("expected ErrNoResolvableRef, got %v", err)
	}
}

func TestPushRejectsSameWorkspace(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src", Branch: "b"})

	_, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "src"})
	if err == nil {
		t.Fatal("expected same source/destination rejection")
	}
}

func TestPushNoPrimary(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src", Branch: "b"})

	_, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src"})
	if !errors.Is(err, ErrNoPrimary) {
		t.Fatalf("expected ErrNoPrimary, got %v", err)
	}
}

func TestPushCreatesMissingSourceRef(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src", Branch: "feature/x"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/dst", Name: "dst"})

	if _, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "dst"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	want := []string{"src: branch feature/x", "dst: fetch feature/x from src"}
	if !reflect.DeepEqual(f.git.ops, want) {
		t.Fatalf("expected %v, got %v", want, f.git.ops)
	}
}

func TestPushJujutsu(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src", Branch: "feature/x"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/dst", Name: "dst"})
	f.jjPaths["/ws/src"] = true
	f.jj.bookmarks["/ws/src"] = map[string]bool{"feature/x": true}

	if _, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "dst", MoveBookmark: true}); err != nil {
		t.Fatalf("push: %v", err)
	}

	want := []string{
		"src: remote dst -> dst",
		"src: set feature/x to @",
		"src: track feature/x@dst",
		"src: push feature/x to dst",
	}
	if !reflect.DeepEqual(f.jj.ops, want) {
		t.Fatalf("expected %v, got %v", want, f.jj.ops)
	}
	if len(f.git.ops) != 0 {
		t.Fatalf("git must not be touched for a jj source: %v", f.git.ops)
	}
}

func TestPushDestinationsAreIsolated(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/src", Name: "src", Branch: "b"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/one", Name: "one"})
	f.addWorkspace(t, store.Workspace{Path: "/ws/two", Name: "two"})
	f.git.local["/ws/src"] = map[string]bool{"b": true}

	if _, err := f.syncer.Push(context.Background(), f.project, PushOptions{Source: "src", Dest: "one"}); err != nil {
		t.Fatalf("push: %v", err)
	}

	if f.git.local["/ws/one"]["b"] != true {
		t.Fatal("expected ref in destination one")
	}
	if len(f.git.local["/ws/two"]) != 0 {
		t.Fatalf("destination two must be untouched, got %v", f.git.local["/ws/two"])
	}
}

func TestPullRefNotFoundIsNoOp(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/a", Name: "a", Branch: "feature/x"})

	found, err := f.syncer.PullRefIfExists(context.Background(), f.project, PullOptions{Workspace: "a"})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if found {
		t.Fatal("expected not-found outcome")
	}

	// Only the fetch ran; the working copy was not moved.
	want := []string{"a: fetch origin"}
	if !reflect.DeepEqual(f.git.ops, want) {
		t.Fatalf("expected %v, got %v", want, f.git.ops)
	}
}

func TestPullRemoteOnlyCreatesTrackingBranch(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/a", Name: "a"})
	f.git.remote["/ws/a"] = map[string]bool{"origin/feature/x": true}

	found, err := f.syncer.PullRefIfExists(context.Background(), f.project, PullOptions{Workspace: "a", Branch: "feature/x"})
	if err != nil || !found {
		t.Fatalf("pull: found=%v err=%v", found, err)
	}

	want := []string{"a: fetch origin", "a: track feature/x from origin"}
	if !reflect.DeepEqual(f.git.ops, want) {
		t.Fatalf("expected %v, got %v", want, f.git.ops)
	}
}

func TestPullLocalAndRemoteFastForwards(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/a", Name: "a"})
	f.git.local["/ws/a"] = map[string]bool{"feature/x": true}
	f.git.remote["/ws/a"] = map[string]bool{"origin/feature/x": true}

	found, err := f.syncer.PullRefIfExists(context.Background(), f.project, PullOptions{Workspace: "a", Branch: "feature/x"})
	if err != nil || !found {
		t.Fatalf("pull: found=%v err=%v", found, err)
	}

	want := []string{"a: fetch origin", "a: checkout feature/x", "a: ff origin/feature/x"}
	if !reflect.DeepEqual(f.git.ops, want) {
		t.Fatalf("expected %v, got %v", want, f.git.ops)
	}
}

func TestPullLocalOnlySkipsMerge(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/a", Name: "a"})
	f.git.local["/ws/a"] = map[string]bool{"feature/x": true}

	found, err := f.syncer.PullRefIfExists(context.Background(), f.project, PullOptions{Workspace: "a", Branch: "feature/x"})
	if err != nil || !found {
		t.Fatalf("pull: found=%v err=%v", found, err)
	}

	for _, op := range f.git.ops {
		if op == "a: ff origin/feature/x" {
			t.Fatalf("merge must be skipped without a remote ref: %v", f.git.ops)
		}
	}
}

func TestPullJujutsuBookmarkNotFound(t *testing.T) {
	f := newSyncFixture(t)
	f.addWorkspace(t, store.Workspace{Path: "/ws/a", Name: "a"})
	f.jjPaths["/ws/a"] = true
	f.jj.trackErr = errors.New("error: no such bookmark: feature/x")

	found, err := f.syncer.PullRefIfExists(context.Background(), f.project, PullOptions{Workspace: "a", Branch: "feature/x"})
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	if found {
		t.Fatal("expected bookmark-not-found to read as not found")
	}
}

func TestEnsureRefExistsIdempotent(t *testing.T) {
	f := newSyncFixture(t)

	if err := f.syncer.EnsureRefExists("/ws/a", "feature/x"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := f.syncer.EnsureRefExists("/ws/a", "feature/x"); err != nil {
		t.Fatalf("ensure again: %v", err)
	}

	want := []string{"a: branch feature/x"}
	if !reflect.DeepEqual(f.git.ops, want) {
		t.Fatalf("expected a single branch creation, got %v", f.git.ops)
	}
}
