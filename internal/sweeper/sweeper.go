// Package sweeper reclaims abandoned leases and flags silent ones.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/telemetry"
	"github.com/workbeads/wb/internal/types"
)

const scopeName = "github.com/workbeads/wb/sweeper"

// DefaultActor is recorded on audit events written by the sweeper.
const DefaultActor = "lease-sweeper"

// Options tune a Sweeper.
type Options struct {
	StaleAfter  time.Duration
	OrphanAfter time.Duration
	Actor       string
}

// Sweeper applies lease.Classify to every leased issue and acts on the
// verdict through the store's compare-and-swap primitives.
type Sweeper struct {
	store  storage.SweepStore
	opts   Options
	logger *slog.Logger

	passes   metric.Int64Counter
	outcomes metric.Int64Counter
	failures metric.Int64Counter
}

// New validates opts and returns a Sweeper. A nil logger discards output.
func New(store storage.SweepStore, opts Options, logger *slog.Logger) (*Sweeper, error) {
	if err := lease.ValidateSweepThresholds(opts.StaleAfter, opts.OrphanAfter); err != nil {
		return nil, err
	}
	if opts.Actor == "" {
		opts.Actor = DefaultActor
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := telemetry.Meter(scopeName)
	passes, _ := m.Int64Counter("wb.lease.sweep.passes",
		metric.WithDescription("Completed sweep passes"),
	)
	outcomes, _ := m.Int64Counter("wb.lease.sweep.outcomes",
		metric.WithDescription("Leases acted on by the sweeper, by outcome"),
	)
	failures, _ := m.Int64Counter("wb.lease.sweep.failures",
		metric.WithDescription("Per-issue sweep failures"),
	)
	return &Sweeper{
		store:    store,
		opts:     opts,
		logger:   logger,
		passes:   passes,
		outcomes: outcomes,
		failures: failures,
	}, nil
}

// Sweep makes one pass over the leased issues as of now.
//
// Counts reflect what this pass changed: a lease that another actor claimed
// or heartbeated after it was listed is left alone and not counted. A
// failure on one issue does not stop the pass; all failures are joined into
// the returned error alongside a complete summary. Leases the store could
// not read are skipped and reported the same way.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*types.LeaseSweepSummary, error) {
	summary := &types.LeaseSweepSummary{SweptAt: now.UTC()}

	var errs []error
	leased, err := s.store.ListLeasedIssues(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrMalformedLease) {
			return summary, fmt.Errorf("list leased issues: %w", err)
		}
		s.logger.Warn("skipping unreadable leases", "error", err)
		s.failures.Add(ctx, 1)
		errs = append(errs, err)
	}

	for _, li := range leased {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		health := lease.Classify(li.Lease, now, s.opts.StaleAfter, s.opts.OrphanAfter)
		applied, err := s.apply(ctx, li, health, now)
		if err != nil {
			s.logger.Warn("lease sweep failed for issue", "issue", li.ID, "health", health.String(), "error", err)
			s.failures.Add(ctx, 1)
			errs = append(errs, fmt.Errorf("%s: %w", li.ID, err))
			continue
		}
		if !applied {
			if health != lease.Healthy {
				s.logger.Debug("lease changed during sweep", "issue", li.ID, "health", health.String())
			}
			continue
		}

		switch health {
		case lease.Expired:
			summary.Expired++
		case lease.Orphaned:
			summary.OrphanedMarked++
		case lease.Stale:
			summary.StaleMarked++
		}
		if health.Reclaims() {
			summary.ReclaimedLeases++
		}
		s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", health.String())))
		s.logger.Info("lease swept", "issue", li.ID, "owner", li.Lease.Owner, "outcome", health.String())
	}

	s.passes.Add(ctx, 1)
	return summary, errors.Join(errs...)
}

func (s *Sweeper) apply(ctx context.Context, li *types.LeasedIssue, health lease.Health, now time.Time) (bool, error) {
	switch health {
	case lease.Expired:
		return s.store.ReclaimLease(ctx, li.ID, li.Lease, types.EventLeaseExpired, now, s.opts.Actor)
	case lease.Orphaned:
		return s.store.ReclaimLease(ctx, li.ID, li.Lease, types.EventLeaseOrphaned, now, s.opts.Actor)
	case lease.Stale:
		return s.store.MarkLeaseStale(ctx, li.ID, li.Lease, now, s.opts.Actor)
	}
	return false, nil
}

// Run sweeps immediately and then once per interval until ctx is done.
// A failed pass is logged and the loop continues; report, if non-nil, sees
// every summary including partial ones.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration, now func() time.Time, report func(*types.LeaseSweepSummary)) error {
	if err := lease.ValidateInterval(interval); err != nil {
		return err
	}
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := s.Sweep(ctx, now())
		if err != nil {
			s.logger.Error("lease sweep pass failed", "error", err)
		}
		if report != nil && summary != nil {
			report(summary)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
