package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/acorte/warren/internal/config"
	"github.com/acorte/warren/internal/paths"
	"github.com/acorte/warren/internal/ui"
	"github.com/acorte/warren/plan"
	"github.com/acorte/warren/workspace"
	"github.com/spf13/cobra"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage the workspace pool for the current repository",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked workspaces and their lock status",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceList,
}

var workspaceListJSON bool

var workspaceGcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Drop records for workspaces whose directories are gone",
	Args:  cobra.NoArgs,
	RunE:  runWorkspaceGc,
}

var workspacePrepareCmd = &cobra.Command{
	Use:   "prepare <task-id>",
	Short: "Prepare a workspace for a task, reusing an idle one when possible",
	Long: `Prepare a workspace for a task, reusing an idle one when possible.

Unlocked, non-primary workspaces are tried one at a time; a candidate that
fails partway is rolled back and the next one is tried. With --create a
fresh workspace is provisioned when nothing can be reused.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspacePrepare,
}

var (
	prepareName   string
	prepareBase   string
	prepareBranch string
	preparePlan   string
	prepareCreate bool
)

type workspaceListEntry struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	TaskID    string    `json:"taskId,omitempty"`
	Branch    string    `json:"branch,omitempty"`
	PlanTitle string    `json:"planTitle,omitempty"`
	IsPrimary bool      `json:"isPrimary,omitempty"`
	Locked    bool      `json:"locked"`
	LockStale bool      `json:"lockStale,omitempty"`
	LockOwner string    `json:"lockOwner,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
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
	entries := make([]workspaceListEntry, 0, len(all))
	for i := range all {
		ws := &all[i]
		state, err := manager.RefreshLockStatus(ws)
		if err != nil {
			return err
		}
		entry := workspaceListEntry{
			Name:      ws.Name,
			Path:      ws.Path,
			TaskID:    ws.TaskID,
			Branch:    ws.Branch,
			PlanTitle: ws.PlanTitle,
			IsPrimary: ws.IsPrimary,
			Locked:    state.Locked,
			LockStale: state.Stale,
			UpdatedAt: ws.UpdatedAt,
		}
		if state.Info != nil {
			entry.LockOwner = state.Info.Owner
		}
		entries = append(entries, entry)
	}

	if workspaceListJSON {
		return encodeJSONToStdout(entries)
	}

	table := ui.NewTableBuilder([]string{"NAME", "TASK", "BRANCH", "PLAN", "LOCK", "UPDATED"}, len(entries))
	now := time.Now()
	for _, entry := range entries {
		name := entry.Name
		if entry.IsPrimary {
			name += " *"
		}
		lock := "-"
		switch {
		case entry.LockStale:
			lock = "stale"
		case entry.Locked && entry.LockOwner != "":
			lock = entry.LockOwner
		case entry.Locked:
			lock = "locked"
		}
		table.AddRow([]string{
			name,
			entry.TaskID,
			entry.Branch,
			ui.TruncateTableCell(entry.PlanTitle),
			lock,
			ui.FormatTimeAgo(entry.UpdatedAt, now),
		})
	}
	fmt.Print(table.String())
	return nil
}

func runWorkspaceGc(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, _, _, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	manager := workspace.NewManager(workspace.ManagerOptions{Store: st, Logf: logf})
	removed, err := manager.GC(ctx)
	if err != nil {
		return err
	}
	logf("removed %d workspace record(s)", len(removed))
	return nil
}

func runWorkspacePrepare(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	taskID := args[0]

	st, project, repoRoot, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	cfg, err := config.Load(repoRoot)
	if err != nil {
		return err
	}

	planSource := ""
	var planID *int64
	planTitle := ""
	if preparePlan != "" {
		planPath, err := plan.Resolve(preparePlan, repoRoot)
		if err != nil {
			return err
		}
		p, err := plan.Read(planPath)
		if err != nil {
			return err
		}
		planSource = planPath
		planID = p.ID
		planTitle = p.Title
	}

	name := prepareName
	if name == "" {
		name = taskID
	}
	branch := prepareBranch
	if branch == "" {
		branch = taskID
	}

	manager := workspace.NewManager(workspace.ManagerOptions{
		Store:  st,
		Config: cfg,
		Owner:  currentUser(),
		Logf:   logf,
	})

	ws, err := manager.TryReuse(ctx, project, workspace.ReuseOptions{
		TaskID:     taskID,
		Name:       name,
		BaseBranch: prepareBase,
		Branch:     branch,
		PlanSource: planSource,
		PlanID:     planID,
		PlanTitle:  planTitle,
	})
	if err == nil {
		logf("reusing workspace %s", ws.Path)
		return nil
	}

	var noReuse *workspace.NoReusableWorkspaceError
	if !errors.As(err, &noReuse) {
		return err
	}
	if !prepareCreate {
		return err
	}
	if noReuse.LastErr != nil {
		warnf("no workspace could be reused: %v", noReuse.LastErr)
	}

	workspacesDir, err := paths.DefaultWorkspacesDir()
	if err != nil {
		return err
	}
	ws, err = manager.Create(ctx, project, workspace.CreateOptions{
		Path:       filepath.Join(workspacesDir, name),
		TaskID:     taskID,
		Name:       name,
		BaseBranch: prepareBase,
		Branch:     branch,
		PlanSource: planSource,
		PlanID:     planID,
		PlanTitle:  planTitle,
	})
	if err != nil {
		return err
	}
	logf("created workspace %s", ws.Path)
	return nil
}

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceListCmd, workspaceGcCmd, workspacePrepareCmd)
	workspaceListCmd.Flags().BoolVar(&workspaceListJSON, "json", false, "emit JSON instead of a table")
	workspacePrepareCmd.Flags().StringVar(&prepareName, "name", "", "workspace name (defaults to the task id)")
	workspacePrepareCmd.Flags().StringVar(&prepareBase, "base", "", "base branch to start from")
	workspacePrepareCmd.Flags().StringVar(&prepareBranch, "branch", "", "task branch to create (defaults to the task id)")
	workspacePrepareCmd.Flags().StringVar(&preparePlan, "plan", "", "plan file to copy into the workspace")
	workspacePrepareCmd.Flags().BoolVar(&prepareCreate, "create", false, "provision a new workspace when none can be reused")
}
