package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/acorte/warren/internal/config"
	"github.com/acorte/warren/internal/lockfile"
	"github.com/acorte/warren/internal/paths"
	"github.com/acorte/warren/internal/ui"
	"github.com/acorte/warren/workspace"
	"github.com/spf13/cobra"
)

var lockCmd = &cobra.Command{
	Use:   "lock [workspace]",
	Short: "Lock a workspace for exclusive use",
	Long: `Lock a workspace for exclusive use.

The lock survives process exit and must be released with "warren unlock".
Stale locks left by dead processes are reclaimed automatically.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLock,
}

var (
	lockAvailable bool
	lockCreate    bool
)

var unlockCmd = &cobra.Command{
	Use:   "unlock [workspace]",
	Short: "Release a workspace lock",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runUnlock,
}

var unlockForce bool

func runLock(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if lockAvailable {
		return listAvailable(cmd)
	}

	var path string
	if lockCreate {
		st, project, repoRoot, err := openProject(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if len(args) == 0 {
			return fmt.Errorf("--create requires a workspace name")
		}
		name := args[0]

		workspacesDir, err := paths.DefaultWorkspacesDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load(repoRoot)
		if err != nil {
			return err
		}

		manager := workspace.NewManager(workspace.ManagerOptions{
			Store:  st,
			Config: cfg,
			Owner:  currentUser(),
			Logf:   logf,
		})
		ws, err := manager.Create(ctx, project, workspace.CreateOptions{
			Path: filepath.Join(workspacesDir, name),
			Name: name,
		})
		if err != nil {
			return err
		}
		path = ws.Path
	} else {
		resolved, err := lockTargetPath(cmd, args)
		if err != nil {
			return err
		}
		path = resolved
	}

	info, err := lockfile.Acquire(path, lockfile.Options{
		Command:    "warren lock",
		Owner:      currentUser(),
		Persistent: true,
	})
	if err != nil {
		return err
	}
	logf("locked %s (owner %s)", path, info.Owner)
	return nil
}

// lockTargetPath resolves the lock target, preferring an existing
// directory so locking works outside any tracked repository.
func lockTargetPath(cmd *cobra.Command, args []string) (string, error) {
	path, err := resolvePath(args)
	if err != nil {
		return "", err
	}
	if info, statErr := os.Stat(path); statErr == nil && info.IsDir() {
		return path, nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("directory does not exist: %s", path)
	}

	st, project, _, err := openProject(cmd.Context())
	if err != nil {
		return "", err
	}
	defer st.Close()
	return resolveWorkspacePath(cmd.Context(), st, project, args[0])
}

func listAvailable(cmd *cobra.Command) error {
	ctx := cmd.Context()
	st, project, _, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	all, err := st.ListWorkspaces(ctx, project.ID)
	if err != nil {
		return err
	}

	manager := workspace.NewManager(workspace.ManagerOptions{Store: st})
	table := ui.NewTableBuilder([]string{"NAME", "PATH", "TASK"}, len(all))
	for i := range all {
		ws := &all[i]
		if ws.IsPrimary {
			continue
		}
		if _, err := os.Stat(ws.Path); err != nil {
			continue
		}
		state, err := manager.RefreshLockStatus(ws)
		if err != nil {
			return err
		}
		if state.Locked && !state.Stale {
			continue
		}
		table.AddRow([]string{ws.Name, ws.Path, ws.TaskID})
	}
	fmt.Print(table.String())
	return nil
}

func runUnlock(cmd *cobra.Command, args []string) error {
	path, err := lockTargetPath(cmd, args)
	if err != nil {
		return err
	}

	info, err := lockfile.Read(path)
	if err != nil {
		return err
	}
	if info == nil {
		logf("workspace %s is not locked", path)
		return nil
	}

	if !unlockForce && !lockfile.IsStale(info) {
		owner := currentUser()
		if info.Owner != "" && info.Owner != owner {
			return fmt.Errorf("workspace %s is locked by %s; pass --force to unlock anyway", path, info.Owner)
		}
		if info.Type == lockfile.TypePID && info.PID != os.Getpid() {
			return fmt.Errorf("workspace %s is locked by running process %d; pass --force to unlock anyway", path, info.PID)
		}
	}

	removed, err := lockfile.Release(path, true)
	if err != nil {
		return err
	}
	if removed {
		logf("unlocked %s", path)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(lockCmd, unlockCmd)
	lockCmd.Flags().BoolVar(&lockAvailable, "available", false, "list unlocked workspaces instead of locking")
	lockCmd.Flags().BoolVar(&lockCreate, "create", false, "provision a new workspace, then lock it")
	unlockCmd.Flags().BoolVar(&unlockForce, "force", false, "remove the lock regardless of who holds it")
}
