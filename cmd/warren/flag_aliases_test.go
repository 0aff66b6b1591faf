package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestWorkspaceAliasUsesSingleFlag(t *testing.T) {
	var workspace string
	cmd := &cobra.Command{Use: "example"}
	addWorkspaceFlagAliases(cmd)
	cmd.Flags().StringVar(&workspace, "workspace", "", "Example workspace")

	if err := cmd.Flags().Set("ws", "feature"); err != nil {
		t.Fatalf("set ws alias: %v", err)
	}
	if workspace != "feature" {
		t.Fatalf("expected workspace to be set via alias, got %q", workspace)
	}
	if !cmd.Flags().Changed("workspace") {
		t.Fatal("expected workspace flag to be marked as changed")
	}

	usage := cmd.Flags().FlagUsages()
	if strings.Contains(usage, "--ws ") {
		t.Fatalf("did not expect alias to appear in usage, got %q", usage)
	}
}
