package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/ui"
)

// issueView is the show output: the issue plus its lease and recent events.
type issueView struct {
	types.Issue `yaml:",inline"`
	Lease  *types.Leased  `json:"lease,omitempty" yaml:"lease,omitempty"`
	Events []*types.Event `json:"events,omitempty" yaml:"events,omitempty"`
}

var showCmd = &cobra.Command{
	Use:     "show <id>",
	GroupID: "views",
	Short:   "Show issue details, lease and recent events",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eventLimit, _ := cmd.Flags().GetInt("events")

		ctx := rootContext()
		s := getStore()
		id := resolveIssueIDs(ctx, s, args)[0]

		issue, err := s.GetIssue(ctx, id)
		if err != nil {
			fatalErr(err)
		}
		view := issueView{Issue: *issue, Lease: types.LeaseOf(issue)}
		if eventLimit > 0 {
			if view.Events, err = s.GetEvents(ctx, id, eventLimit); err != nil {
				fatalErr(err)
			}
		}

		emit(view, func(w io.Writer) { renderIssue(w, view, time.Now()) })
	},
}

func renderIssue(w io.Writer, v issueView, now time.Time) {
	i := &v.Issue
	_, _ = fmt.Fprintf(w, "%s %s %s\n", ui.RenderID(i.ID), ui.RenderPriority(i.Priority), i.Title)
	_, _ = fmt.Fprintf(w, "  Status: %s  Type: %s\n", i.Status, i.IssueType)
	if i.Assignee != "" {
		_, _ = fmt.Fprintf(w, "  Assignee: %s\n", i.Assignee)
	}
	if len(i.Labels) > 0 {
		_, _ = fmt.Fprintf(w, "  Labels: %s\n", strings.Join(i.Labels, ", "))
	}
	var flags []string
	if i.Deferred {
		flags = append(flags, "deferred")
	}
	if i.Pinned {
		flags = append(flags, "pinned")
	}
	if i.Ephemeral {
		flags = append(flags, "ephemeral")
	}
	if len(flags) > 0 {
		_, _ = fmt.Fprintf(w, "  Flags: %s\n", strings.Join(flags, ", "))
	}
	if i.Description != "" {
		_, _ = fmt.Fprintf(w, "\n%s\n", i.Description)
	}
	if i.AcceptanceCriteria != "" {
		_, _ = fmt.Fprintf(w, "\nAcceptance criteria:\n%s\n", i.AcceptanceCriteria)
	}

	for _, d := range i.Dependencies {
		_, _ = fmt.Fprintf(w, "  Depends on: %s (%s)\n", d.DependsOnID, d.Type)
	}

	if l := v.Lease; l != nil {
		state := ui.RenderPass("live")
		if !l.IsLive(now) {
			state = ui.RenderFail("expired")
		} else if l.StaleAt != nil {
			state = ui.RenderWarn("stale")
		}
		_, _ = fmt.Fprintf(w, "\nLease %s: %s (owner %s)\n", state, l.LeaseID, l.Owner)
		_, _ = fmt.Fprintf(w, "  Expires: %s  Heartbeat: %s\n",
			l.ExpiresAt.Format(time.RFC3339), l.HeartbeatAt.Format(time.RFC3339))
	}

	if len(v.Events) > 0 {
		_, _ = fmt.Fprintln(w, "\nRecent events:")
		for _, e := range v.Events {
			_, _ = fmt.Fprintf(w, "  %s %s %s\n", ui.RenderMuted(e.CreatedAt.Format(time.RFC3339)), e.EventType, e.Actor)
		}
	}
}

func init() {
	showCmd.Flags().Int("events", 10, "Number of recent events to show (0 to hide)")
	rootCmd.AddCommand(showCmd)
}
