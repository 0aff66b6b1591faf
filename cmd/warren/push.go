package main

import (
	"github.com/acorte/warren/transfer"
	"github.com/spf13/cobra"
)

var pushCmd = &cobra.Command{
	Use:   "push [workspace]",
	Short: "Push a branch from one workspace into another",
	Long: `Push a branch from one workspace into another.

The source comes from --from, then the positional argument, then the
workspace containing the current directory; the destination defaults to
the repository's primary workspace. The ref to move is taken from
--branch, then the source's checked-out branch, then the branch recorded
in metadata.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPush,
}

var (
	pushFrom         string
	pushTo           string
	pushBranch       string
	pushMoveBookmark bool
)

func runPush(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	st, project, _, err := openProject(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	source, err := pushSource(pushFrom, args)
	if err != nil {
		return err
	}

	syncer := transfer.New(st, logf)
	ref, err := syncer.Push(ctx, project, transfer.PushOptions{
		Source:       source,
		Dest:         pushTo,
		Branch:       pushBranch,
		MoveBookmark: pushMoveBookmark,
	})
	if err != nil {
		return err
	}
	logf("pushed %s", ref)
	return nil
}

// pushSource picks the push source: --from wins, then the positional
// argument, then the current directory.
func pushSource(from string, args []string) (string, error) {
	if from != "" {
		return from, nil
	}
	if len(args) > 0 {
		return args[0], nil
	}
	return resolvePath(nil)
}

func init() {
	rootCmd.AddCommand(pushCmd)
	pushCmd.Flags().StringVar(&pushFrom, "from", "", "source workspace (defaults to the positional argument, then the current directory)")
	pushCmd.Flags().StringVar(&pushTo, "to", "", "destination workspace (defaults to the primary workspace)")
	pushCmd.Flags().StringVar(&pushBranch, "branch", "", "branch to push (defaults to the source's current branch)")
	pushCmd.Flags().BoolVar(&pushMoveBookmark, "move-bookmark", false, "re-set the jj bookmark to the working revision before pushing")
}
