package vcs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDetect(t *testing.T) {
	t.Run("jj workspace", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.Mkdir(filepath.Join(dir, ".jj"), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}

		if Detect(dir).Kind() != KindJujutsu {
			t.Fatal("expected jj backend")
		}
	})

	t.Run("git by default", func(t *testing.T) {
		dir := t.TempDir()
		if Detect(dir).Kind() != KindGit {
			t.Fatal("expected git backend")
		}
	})

	t.Run("plain file named .jj is not a workspace", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, ".jj"), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}

		if UsingJujutsu(dir) {
			t.Fatal("expected file to be ignored")
		}
	})
}

func TestCommandErrorMessage(t *testing.T) {
	err := &CommandError{
		Args:   []string{"git", "fetch", "origin"},
		Stderr: "fatal: could not read from remote\n",
		Err:    errors.New("exit status 128"),
	}

	got := err.Error()
	for _, want := range []string{"git fetch origin", "exit status 128", "could not read from remote"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected %q in %q", want, got)
		}
	}
}

func TestIsBookmarkNotFound(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "no such bookmark",
			err:      errors.New(`jj bookmark track: Error: No such bookmark: feature`),
			expected: true,
		},
		{
			name:     "doesn't exist",
			err:      errors.New(`jj edit: Error: Revision "feature" doesn't exist`),
			expected: true,
		},
		{
			name:     "other error",
			err:      errors.New("jj git push: permission denied"),
			expected: false,
		},
		{
			name:     "nil",
			err:      nil,
			expected: false,
		},
	}

	for _, test := range tests {
		if got := IsBookmarkNotFound(test.err); got != test.expected {
			t.Fatalf("%s: expected %v, got %v", test.name, test.expected, got)
		}
	}
}
