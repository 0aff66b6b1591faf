package testsupport

import (
	"path/filepath"

	"github.com/rogpeppe/go-internal/testscript"
)

// SetupScriptEnv gives each script its own HOME with the default warren
// directories, so metadata databases never leak between scripts.
func SetupScriptEnv(env *testscript.Env) error {
	homeDir := filepath.Join(env.WorkDir, "home")
	if err := EnsureHomeDirs(homeDir); err != nil {
		return err
	}
	env.Setenv("HOME", homeDir)
	env.Setenv("GIT_CONFIG_NOSYSTEM", "1")
	env.Setenv("WARREN_USER", "test")
	return nil
}
