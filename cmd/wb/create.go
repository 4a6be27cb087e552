package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/ui"
)

var createCmd = &cobra.Command{
	Use:     "create <title>",
	GroupID: "issues",
	Short:   "Create a new issue",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		title := strings.TrimSpace(strings.Join(args, " "))

		priorityRaw, _ := cmd.Flags().GetString("priority")
		typeRaw, _ := cmd.Flags().GetString("type")
		labels, _ := cmd.Flags().GetStringSlice("label")
		assignee, _ := cmd.Flags().GetString("assignee")
		description, _ := cmd.Flags().GetString("description")
		acceptance, _ := cmd.Flags().GetString("acceptance")
		deferred, _ := cmd.Flags().GetBool("deferred")
		pinned, _ := cmd.Flags().GetBool("pinned")
		ephemeral, _ := cmd.Flags().GetBool("ephemeral")
		explicitID, _ := cmd.Flags().GetString("id")

		priority, err := types.ParsePriority(priorityRaw)
		if err != nil {
			FatalError("%v", err)
		}
		issueType, err := types.ParseIssueType(typeRaw)
		if err != nil {
			FatalError("%v", err)
		}

		issue := &types.Issue{
			ID:                 explicitID,
			Title:              title,
			Description:        description,
			AcceptanceCriteria: acceptance,
			Priority:           priority,
			IssueType:          issueType,
			Assignee:           assignee,
			Labels:             labels,
			Deferred:           deferred,
			Pinned:             pinned,
			Ephemeral:          ephemeral,
		}

		ctx := rootContext()
		if err := getStore().CreateIssue(ctx, issue, getActor()); err != nil {
			fatalErr(err)
		}
		touch(issue.ID)

		emit(issue, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "%s Created issue: %s\n", ui.RenderPassIcon(), ui.RenderID(issue.ID))
			_, _ = fmt.Fprintf(w, "  Title: %s\n", issue.Title)
			_, _ = fmt.Fprintf(w, "  Priority: %s\n", ui.RenderPriority(issue.Priority))
		})
	},
}

func init() {
	createCmd.Flags().StringP("priority", "p", "2", "Priority (0-4 or P0-P4, 0=highest)")
	createCmd.Flags().StringP("type", "t", "task", "Issue type (bug|feature|task|epic|chore)")
	createCmd.Flags().StringSliceP("label", "l", nil, "Labels (repeatable or comma-separated)")
	createCmd.Flags().StringP("assignee", "a", "", "Assignee")
	createCmd.Flags().StringP("description", "d", "", "Issue description")
	createCmd.Flags().String("acceptance", "", "Acceptance criteria (stored as text)")
	createCmd.Flags().String("id", "", "Explicit issue ID (default: generated from content hash)")
	createCmd.Flags().Bool("deferred", false, "Keep out of the ready queue until un-deferred")
	createCmd.Flags().Bool("pinned", false, "Pin the issue (never appears as ready work)")
	createCmd.Flags().Bool("ephemeral", false, "Mark as ephemeral (never appears as ready work)")
	rootCmd.AddCommand(createCmd)
}
