// Package ready computes the ready queue: issues with no open blockers in
// this store or in any configured external project.
package ready

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

// Scheduler turns store candidates into an ordered ready queue.
type Scheduler struct {
	Store storage.CandidateSource
	// External may be nil, in which case every external blocker is
	// unresolved.
	External storage.ExternalStatusResolver
	Now      func() time.Time
	Logger   *slog.Logger
}

// New returns a Scheduler using the wall clock.
func New(store storage.CandidateSource, external storage.ExternalStatusResolver, logger *slog.Logger) *Scheduler {
	return &Scheduler{Store: store, External: external, Now: time.Now, Logger: logger}
}

// GetReady returns the issues that can be worked on now, ordered by the
// filter's sort policy and truncated to its limit. The limit is applied
// after external blockers are checked, so blocked issues never use up slots.
func (s *Scheduler) GetReady(ctx context.Context, filter types.WorkFilter) ([]*types.Issue, error) {
	if !filter.SortPolicy.IsValid() {
		return nil, fmt.Errorf("invalid sort policy: %s", filter.SortPolicy)
	}
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	candidates, err := s.Store.GetReadyCandidates(ctx, filter, now)
	if err != nil {
		return nil, fmt.Errorf("failed to get ready candidates: %w", err)
	}

	var refs []types.ExternalRef
	seen := make(map[types.ExternalRef]bool)
	for _, c := range candidates {
		for _, ref := range c.ExternalBlockers {
			if !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}

	var statuses map[types.ExternalRef]types.Status
	if len(refs) > 0 && s.External != nil {
		statuses = s.External.ResolveStatuses(ctx, refs)
	}

	issues := make([]*types.Issue, 0, len(candidates))
	for _, c := range candidates {
		if !c.Issue.Status.IsWorkable() {
			logger.Debug("ready: candidate not in a workable status", "issue", c.Issue.ID, "status", string(c.Issue.Status))
			continue
		}
		if blocker, ok := firstOpenBlocker(c.ExternalBlockers, statuses); !ok {
			logger.Debug("ready: external blocker not satisfied", "issue", c.Issue.ID, "blocker", blocker.String())
			continue
		}
		issues = append(issues, c.Issue)
	}

	SortIssues(issues, filter.SortPolicy, now)
	if filter.Limit > 0 && len(issues) > filter.Limit {
		issues = issues[:filter.Limit]
	}
	return issues, nil
}

// firstOpenBlocker returns the first ref that is not known to be resolved.
// ok is true when every ref is resolved.
func firstOpenBlocker(refs []types.ExternalRef, statuses map[types.ExternalRef]types.Status) (types.ExternalRef, bool) {
	for _, ref := range refs {
		status, found := statuses[ref]
		if !found || !status.IsResolved() {
			return ref, false
		}
	}
	return types.ExternalRef{}, true
}
