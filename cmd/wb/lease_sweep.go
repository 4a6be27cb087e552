package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/config"
	"github.com/workbeads/wb/internal/debug"
	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/lockfile"
	"github.com/workbeads/wb/internal/sweeper"
	"github.com/workbeads/wb/internal/types"
)

// sweepSettings are the validated lease-sweep flags.
type sweepSettings struct {
	StaleAfter  time.Duration
	OrphanAfter time.Duration
	Interval    time.Duration
	Daemon      bool
	Wait        bool
	LogFile     string
}

// sweepSettingsFromFlags merges flags (minutes and seconds) over config and
// validates them before the store is touched.
func sweepSettingsFromFlags(cmd *cobra.Command) (sweepSettings, error) {
	flags := cmd.Flags()
	st := sweepSettings{
		StaleAfter:  config.StaleAfter(),
		OrphanAfter: config.OrphanAfter(),
		Interval:    config.SweepInterval(),
		LogFile:     config.GetString("sweep.log-file"),
	}
	st.Daemon, _ = flags.GetBool("daemon")
	st.Wait, _ = flags.GetBool("wait")

	if flags.Changed("stale-after") {
		m, _ := flags.GetFloat64("stale-after")
		st.StaleAfter = minutes(m)
	}
	if flags.Changed("orphan-after") {
		m, _ := flags.GetFloat64("orphan-after")
		st.OrphanAfter = minutes(m)
	}
	if flags.Changed("interval") {
		secs, _ := flags.GetInt("interval")
		st.Interval = time.Duration(secs) * time.Second
	}
	if flags.Changed("log-file") {
		st.LogFile, _ = flags.GetString("log-file")
	}

	if err := lease.ValidateSweepThresholds(st.StaleAfter, st.OrphanAfter); err != nil {
		return st, err
	}
	if st.Wait && !st.Daemon {
		return st, fmt.Errorf("%w: --wait only applies with --daemon", lease.ErrInvalidArgument)
	}
	if st.Daemon || flags.Changed("interval") {
		if err := lease.ValidateInterval(st.Interval); err != nil {
			return st, err
		}
	}
	return st, nil
}

func minutes(m float64) time.Duration {
	return time.Duration(m * float64(time.Minute))
}

var leaseSweepCmd = &cobra.Command{
	Use:     "lease-sweep",
	GroupID: "leases",
	Short:   "Reclaim expired and orphaned leases",
	Long: `Scan every leased issue once and:

  - reclaim leases past their expiry (expired)
  - reclaim leases whose heartbeat is older than --orphan-after (orphaned)
  - flag leases whose heartbeat is older than --stale-after (stale, kept)

With --daemon the sweep repeats every --interval seconds until interrupted.
Only one daemon may run per project (.beads/sweeper.lock); --wait blocks
until the running daemon exits and then takes over.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		st, err := sweepSettingsFromFlags(cmd)
		if err != nil {
			fatalErr(err)
		}

		log := logger()
		if st.Daemon && st.LogFile != "" {
			w, err := debug.RotatingFile(st.LogFile)
			if err != nil {
				FatalError("failed to open log file: %v", err)
			}
			defer func() { _ = w.Close() }()
			log = debug.NewLogger(w)
		}

		sw, err := sweeper.New(getStore(), sweeper.Options{
			StaleAfter:  st.StaleAfter,
			OrphanAfter: st.OrphanAfter,
			Actor:       sweepActor(cmd),
		}, log)
		if err != nil {
			fatalErr(err)
		}

		ctx := rootContext()
		if !st.Daemon {
			summary, sweepErr := sw.Sweep(ctx, time.Now())
			emit(summary, func(w io.Writer) { renderSweepSummary(w, summary) })
			if sweepErr != nil {
				fatalErr(sweepErr)
			}
			return
		}

		if err := runSweepDaemon(ctx, sw, st, log); err != nil {
			fatalErr(err)
		}
	},
}

// sweepActor is the actor recorded on sweep events: --actor when given,
// otherwise the sweeper's own name.
func sweepActor(cmd *cobra.Command) string {
	if cmd.Flags().Changed("actor") || config.GetValueSource("actor") != config.SourceDefault {
		return getActor()
	}
	return sweeper.DefaultActor
}

func runSweepDaemon(ctx context.Context, sw *sweeper.Sweeper, st sweepSettings, log *slog.Logger) error {
	lock := lockfile.New(cmdCtx.BeadsDir, lockfile.SweeperLockName, cmdCtx.DBPath)
	if err := acquireSweeperLock(ctx, lock, st.Wait, log); err != nil {
		return err
	}
	defer func() { _ = lock.Release() }()

	log.Info("lease sweeper started",
		"pid", os.Getpid(),
		"db", cmdCtx.DBPath,
		"interval", st.Interval,
		"stale_after", st.StaleAfter,
		"orphan_after", st.OrphanAfter)

	err := sw.Run(ctx, st.Interval, time.Now, func(summary *types.LeaseSweepSummary) {
		if getFormat() == formatText {
			if !debug.IsQuiet() {
				renderSweepSummary(os.Stdout, summary)
			}
			return
		}
		emit(summary, nil)
	})
	log.Info("lease sweeper stopped")
	return err
}

// acquireSweeperLock takes the single-daemon lock, failing fast unless wait
// is set, in which case it blocks until the holder exits or ctx is done.
func acquireSweeperLock(ctx context.Context, lock *lockfile.Lock, wait bool, log *slog.Logger) error {
	err := lock.TryAcquire()
	if err == nil || !wait || !errors.Is(err, lockfile.ErrLockBusy) {
		return err
	}
	log.Info("waiting for running lease sweeper to exit", "lock", lock.Path(), "holder", err.Error())
	return lock.Wait(ctx)
}

func renderSweepSummary(w io.Writer, s *types.LeaseSweepSummary) {
	_, _ = fmt.Fprintf(w, "Lease sweep: expired=%d stale_marked=%d orphaned_marked=%d reclaimed=%d (at %s)\n",
		s.Expired, s.StaleMarked, s.OrphanedMarked, s.ReclaimedLeases, s.SweptAt.Format(time.RFC3339))
}

func addSweepFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("stale-after", lease.DefaultStaleAfter.Minutes(), "Minutes without heartbeat before a lease is flagged stale")
	cmd.Flags().Float64("orphan-after", lease.DefaultOrphanAfter.Minutes(), "Minutes without heartbeat before a lease is reclaimed as orphaned")
	cmd.Flags().Bool("daemon", false, "Keep sweeping every --interval seconds until interrupted")
	cmd.Flags().Bool("wait", false, "With --daemon, wait for a running sweeper to exit instead of failing")
	cmd.Flags().Int("interval", int(lease.DefaultSweepInterval/time.Second), "Seconds between sweeps in daemon mode")
	cmd.Flags().String("log-file", "", "Daemon log file (rotated); default logs to stderr")
}

func init() {
	addSweepFlags(leaseSweepCmd)
	rootCmd.AddCommand(leaseSweepCmd)
}
