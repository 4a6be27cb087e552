package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/ui"
)

var depCmd = &cobra.Command{
	Use:     "dep",
	GroupID: "issues",
	Short:   "Manage dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <issue> <depends-on>",
	Short: "Add a dependency: <issue> depends on <depends-on>",
	Long: `Add a dependency edge. A "blocks" edge keeps <issue> out of the ready queue
until <depends-on> is closed.

<depends-on> may name an issue in another project as
external:<project>:<issue-id>, where <project> is a key of the
external_projects config map.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		depTypeRaw, _ := cmd.Flags().GetString("type")
		depType := types.DependencyType(depTypeRaw)
		if !depType.IsValid() {
			FatalError("invalid dependency type %q (valid: blocks, related)", depTypeRaw)
		}

		ctx := rootContext()
		s := getStore()
		resolver := newIDResolver(ctx, s)

		issueID, err := resolver.Resolve(ctx, args[0])
		if err != nil {
			fatalErr(err)
		}

		target := args[1]
		if types.IsExternalRef(target) {
			if _, err := types.ParseExternalRef(target); err != nil {
				FatalError("%v", err)
			}
		} else if target, err = resolver.Resolve(ctx, target); err != nil {
			fatalErr(err)
		}

		dep := &types.Dependency{IssueID: issueID, DependsOnID: target, Type: depType}
		if err := s.AddDependency(ctx, dep, getActor()); err != nil {
			fatalErr(err)
		}

		emit(dep, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "%s Added dependency: %s depends on %s (%s)\n",
				ui.RenderPassIcon(), ui.RenderID(issueID), target, depType)
		})
	},
}

func init() {
	depAddCmd.Flags().StringP("type", "t", string(types.DepBlocks), "Dependency type (blocks|related)")
	depCmd.AddCommand(depAddCmd)
	rootCmd.AddCommand(depCmd)
}
