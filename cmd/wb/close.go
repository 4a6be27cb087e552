package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/ui"
)

type closeResult struct {
	ID     string `json:"id" yaml:"id"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

var closeCmd = &cobra.Command{
	Use:     "close <id...>",
	GroupID: "issues",
	Short:   "Close one or more issues",
	Long: `Close issues. Closing clears any lease on the issue and unblocks
issues that depend on it. Closing an already closed issue is a no-op.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reason, _ := cmd.Flags().GetString("reason")

		ctx := rootContext()
		s := getStore()
		ids := resolveIssueIDs(ctx, s, args)

		results := make([]closeResult, 0, len(ids))
		for _, id := range ids {
			if err := s.CloseIssue(ctx, id, reason, getActor()); err != nil {
				fatalErr(err)
			}
			forgetTouched(id)
			results = append(results, closeResult{ID: id, Reason: reason})
		}

		emit(results, func(w io.Writer) {
			for _, r := range results {
				_, _ = fmt.Fprintf(w, "%s Closed %s\n", ui.RenderPassIcon(), ui.RenderID(r.ID))
			}
		})
	},
}

func init() {
	closeCmd.Flags().StringP("reason", "r", "", "Reason for closing")
	rootCmd.AddCommand(closeCmd)
}
