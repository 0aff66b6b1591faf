package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultStateDir returns the warren state directory. WARREN_STATE_DIR
// overrides the ~/.local/state location.
func DefaultStateDir() (string, error) {
	return ResolveWithDefault(os.Getenv("WARREN_STATE_DIR"), homeStateDir)
}

func homeStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	return filepath.Join(home, ".local", "state", "warren"), nil
}

// DefaultWorkspacesDir returns the default warren workspaces directory.
func DefaultWorkspacesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	return filepath.Join(home, ".local", "share", "warren", "workspaces"), nil
}

// DefaultDatabasePath returns the default warren metadata database path.
func DefaultDatabasePath() (string, error) {
	stateDir, err := DefaultStateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(stateDir, "warren.db"), nil
}

// WorkingDir returns the current working directory.
func WorkingDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}

// ResolveWithDefault returns override when non-empty, otherwise the result of
// the default function.
func ResolveWithDefault(override string, defaultFn func() (string, error)) (string, error) {
	if override != "" {
		return override, nil
	}
	return defaultFn()
}
