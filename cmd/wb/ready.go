package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/config"
	"github.com/workbeads/wb/internal/ready"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/storage/sqlite"
	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/ui"
)

const (
	watchDebounce = 500 * time.Millisecond
	// Leases expire without any write to the database, so the watch view
	// also refreshes on a timer.
	watchRefresh = 30 * time.Second
)

// readyFilterFromFlags builds the work filter. Every value is validated
// here so a malformed flag fails before the store is queried.
func readyFilterFromFlags(cmd *cobra.Command) (types.WorkFilter, error) {
	flags := cmd.Flags()
	var filter types.WorkFilter

	filter.Limit, _ = flags.GetInt("limit")
	if filter.Limit < 0 {
		return filter, fmt.Errorf("invalid --limit %d: must not be negative", filter.Limit)
	}
	filter.Unassigned, _ = flags.GetBool("unassigned")
	if flags.Changed("assignee") {
		if filter.Unassigned {
			return filter, fmt.Errorf("--assignee and --unassigned are mutually exclusive")
		}
		a, _ := flags.GetString("assignee")
		filter.Assignee = &a
	}
	filter.Labels, _ = flags.GetStringSlice("label")
	filter.LabelsAny, _ = flags.GetStringSlice("label-any")
	filter.IncludeDeferred, _ = flags.GetBool("include-deferred")

	typeValues, _ := flags.GetStringSlice("type")
	for _, raw := range typeValues {
		t, err := types.ParseIssueType(raw)
		if err != nil {
			return filter, err
		}
		filter.Types = append(filter.Types, t)
	}

	priorityValues, _ := flags.GetStringSlice("priority")
	for _, raw := range priorityValues {
		p, err := types.ParsePriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priorities = append(filter.Priorities, p)
	}

	sortRaw, _ := flags.GetString("sort")
	policy, err := types.ParseSortPolicy(sortRaw)
	if err != nil {
		return filter, err
	}
	filter.SortPolicy = policy
	return filter, nil
}

// newScheduler wires the store and the configured external projects.
func newScheduler(s storage.Storage) *ready.Scheduler {
	var external storage.ExternalStatusResolver
	if projects := config.ResolvedExternalProjects(); len(projects) > 0 {
		external = sqlite.NewProjectResolver(projects, config.ExternalTimeout(), logger())
	}
	return ready.New(s, external, logger())
}

var readyCmd = &cobra.Command{
	Use:     "ready",
	GroupID: "views",
	Short:   "Show work that is ready to claim",
	Long: `Show open issues with no open blockers and no live lease.

Blockers in other projects (external:<project>:<id>) are looked up in the
projects named by the external_projects config; a project that cannot be
read counts as still blocking.

Sort policies:
  hybrid    priority bands; issues older than 48h move up one band (default)
  priority  priority, then id
  oldest    creation time, then id`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := readyFilterFromFlags(cmd)
		if err != nil {
			FatalError("%v", err)
		}
		watch, _ := cmd.Flags().GetBool("watch")

		sched := newScheduler(getStore())
		ctx := rootContext()
		if watch {
			if err := watchReady(ctx, sched, filter); err != nil {
				FatalError("%v", err)
			}
			return
		}

		issues, err := sched.GetReady(ctx, filter)
		if err != nil {
			fatalErr(err)
		}
		displayReady(issues)
	},
}

func displayReady(issues []*types.Issue) {
	view := make([]types.ReadyIssue, 0, len(issues))
	for _, i := range issues {
		view = append(view, types.NewReadyIssue(i))
	}
	emit(view, func(w io.Writer) { renderReady(w, view, ui.TerminalWidth()) })
}

func renderReady(w io.Writer, issues []types.ReadyIssue, width int) {
	if len(issues) == 0 {
		_, _ = fmt.Fprintln(w, ui.RenderMuted("No ready work."))
		return
	}
	_, _ = fmt.Fprintf(w, "Ready work (%d):\n\n", len(issues))
	for n, i := range issues {
		prefix := fmt.Sprintf("%d. [%s] %s ", n+1, ui.RenderPriority(i.Priority), ui.RenderID(i.ID))
		plainLen := len(fmt.Sprintf("%d. [P%d] %s ", n+1, i.Priority, i.ID))
		_, _ = fmt.Fprintf(w, "%s%s\n", prefix, ui.Truncate(i.Title, width-plainLen))

		var details []string
		details = append(details, string(i.IssueType), string(i.Status))
		if i.Assignee != "" {
			details = append(details, "@"+i.Assignee)
		}
		line := "   " + ui.RenderMuted(strings.Join(details, " · "))
		if labels := ui.RenderLabels(i.Labels); labels != "" {
			line += " " + labels
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// watchReady re-renders the ready queue whenever the database changes,
// until ctx is cancelled.
func watchReady(ctx context.Context, sched *ready.Scheduler, filter types.WorkFilter) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }() // Best effort cleanup

	dbFile := filepath.Base(cmdCtx.DBPath)
	if err := watcher.Add(filepath.Dir(cmdCtx.DBPath)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(cmdCtx.DBPath), err)
	}

	refresh := func() {
		issues, err := sched.GetReady(ctx, filter)
		if err != nil {
			if ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "Error refreshing ready work: %v\n", err)
			}
			return
		}
		if getFormat() == formatText && ui.IsTerminal() {
			fmt.Print("\033[H\033[2J")
		}
		displayReady(issues)
		fmt.Fprintf(os.Stderr, "\nWatching for changes... (Press Ctrl+C to exit)\n")
	}
	refresh()

	ticker := time.NewTicker(watchRefresh)
	defer ticker.Stop()

	// Debounce timer; fires on the loop goroutine via its channel.
	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "\nStopped watching.\n")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// The WAL file changes on every commit; the main file on checkpoint.
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				if strings.HasPrefix(filepath.Base(event.Name), dbFile) {
					debounce.Reset(watchDebounce)
				}
			}
		case <-debounce.C:
			refresh()
		case <-ticker.C:
			refresh()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		}
	}
}

func addReadyFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("limit", "n", 0, "Maximum issues to show (0 = no limit)")
	cmd.Flags().StringP("assignee", "a", "", "Only issues assigned to this actor")
	cmd.Flags().Bool("unassigned", false, "Only issues with no assignee")
	cmd.Flags().StringSliceP("label", "l", nil, "Require all of these labels")
	cmd.Flags().StringSlice("label-any", nil, "Require at least one of these labels")
	cmd.Flags().StringSliceP("type", "t", nil, "Only these issue types")
	cmd.Flags().StringSliceP("priority", "p", nil, "Only these priorities (0-4 or P0-P4)")
	cmd.Flags().Bool("include-deferred", false, "Include deferred issues")
	cmd.Flags().String("sort", string(types.SortPolicyHybrid), "Sort policy: hybrid, priority or oldest")
}

func init() {
	addReadyFlags(readyCmd)
	readyCmd.Flags().Bool("watch", false, "Re-render when the database changes")
	rootCmd.AddCommand(readyCmd)
}
