package main

import (
	"github.com/acorte/warren/plan"
	"github.com/acorte/warren/transfer"
	"github.com/spf13/cobra"
)

var pullPlanCmd = &cobra.Command{
	Use:   "pull-plan <plan>",
	Short: "Pull the branch a plan is being worked on",
	Long: `Pull the branch a plan is being worked on.

The branch defaults to the one recorded for the workspace that claimed the
plan. A branch that exists neither locally nor on the remote is reported
and the command succeeds without changing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runPullPlan,
}

var (
	pullWorkspace string
	pullBranch    string
	pullRemote    string
)

func runPullPlan(cmd *cobra.Command, args []string) error {
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

	branch := pullBranch
	if branch == "" && p.UUID != "" {
		// Default to the branch of the workspace that claimed the plan.
		assignment, err := st.GetAssignment(ctx, project.ID, p.UUID)
		if err != nil {
			return err
		}
		if assignment != nil && assignment.WorkspaceID != nil {
			claimed, err := st.WorkspaceByID(ctx, *assignment.WorkspaceID)
			if err != nil {
				return err
			}
			if claimed != nil {
				branch = claimed.Branch
			}
		}
	}

	target := pullWorkspace
	if target == "" {
		cwd, err := resolvePath(nil)
		if err != nil {
			return err
		}
		target = cwd
	}

	remote := pullRemote
	if remote == "" {
		remote = "origin"
	}

	syncer := transfer.New(st, logf)
	found, err := syncer.PullRefIfExists(ctx, project, transfer.PullOptions{
		Workspace: target,
		Branch:    branch,
		Remote:    remote,
	})
	if err != nil {
		return err
	}
	if !found {
		logf("nothing to pull: branch not found locally or on %s", remote)
		return nil
	}
	logf("pulled plan branch")
	return nil
}

func init() {
	rootCmd.AddCommand(pullPlanCmd)
	pullPlanCmd.Flags().StringVar(&pullWorkspace, "workspace", "", "workspace to pull into (defaults to the current directory)")
	pullPlanCmd.Flags().StringVar(&pullBranch, "branch", "", "branch to pull (defaults to the claiming workspace's branch)")
	pullPlanCmd.Flags().StringVar(&pullRemote, "remote", "", "remote to fetch from (defaults to origin)")
	addWorkspaceFlagAliases(pullPlanCmd)
}
