package main

import (
	"github.com/acorte/warren/claims"
	"github.com/acorte/warren/internal/store"
	"github.com/acorte/warren/plan"
	"github.com/spf13/cobra"
)

var claimCmd = &cobra.Command{
	Use:   "claim <plan>",
	Short: "Claim a plan for the current workspace",
	Long: `Claim a plan for the current workspace.

The plan may be given as a file path, a plan UUID, or a numeric plan id.
Claiming a plan already claimed elsewhere reassigns it with a warning.`,
	Args: cobra.ExactArgs(1),
	RunE: runClaim,
}

var claimWorkspace string

var releaseCmd = &cobra.Command{
	Use:   "release <plan>",
	Short: "Release the current workspace's claim on a plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelease,
}

var (
	releaseWorkspace   string
	releaseResetStatus bool
)

func runClaim(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, project, repoRoot, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	planPath, err := plan.Resolve(args[0], repoRoot)
	if err != nil {
		return err
	}
	p, err := plan.Read(planPath)
	if err != nil {
		return err
	}

	workspacePath, err := claimWorkspacePath(cmd, st, project, claimWorkspace)
	if err != nil {
		return err
	}

	coordinator := claims.New(st, logf, warnf)
	if err := coordinator.Claim(ctx, project, p, workspacePath, currentUser()); err != nil {
		return err
	}

	// The workspace's plan association is a separate, best-effort write.
	patch := store.WorkspacePatch{PlanTitle: &p.Title}
	if p.ID != nil {
		patch.PlanID = p.ID
	}
	if _, err := st.PatchWorkspace(ctx, workspacePath, patch); err != nil {
		warnf("could not update workspace metadata: %v", err)
	}
	return nil
}

func runRelease(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, project, repoRoot, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	planPath, err := plan.Resolve(args[0], repoRoot)
	if err != nil {
		return err
	}
	p, err := plan.Read(planPath)
	if err != nil {
		return err
	}

	workspacePath, err := claimWorkspacePath(cmd, st, project, releaseWorkspace)
	if err != nil {
		return err
	}

	coordinator := claims.New(st, logf, warnf)
	return coordinator.Release(ctx, project, p, workspacePath, currentUser(), releaseResetStatus)
}

func claimWorkspacePath(cmd *cobra.Command, st *store.Store, project *store.Project, identifier string) (string, error) {
	if identifier == "" {
		return resolvePath(nil)
	}
	return resolveWorkspacePath(cmd.Context(), st, project, identifier)
}

func init() {
	rootCmd.AddCommand(claimCmd, releaseCmd)
	claimCmd.Flags().StringVar(&claimWorkspace, "workspace", "", "workspace taking the claim (defaults to the current directory)")
	releaseCmd.Flags().StringVar(&releaseWorkspace, "workspace", "", "workspace releasing the claim (defaults to the current directory)")
	releaseCmd.Flags().BoolVar(&releaseResetStatus, "reset-status", false, "rewrite the plan's status back to pending")
	addWorkspaceFlagAliases(claimCmd, releaseCmd)
}
