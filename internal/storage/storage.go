// Package storage provides shared types for issue storage.
//
// The concrete implementation lives in the sqlite sub-package. This package
// holds the interfaces and sentinel errors referenced by the sqlite store,
// the scheduler, the sweeper and cmd/wb.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/workbeads/wb/internal/types"
)

// ErrAlreadyClaimed is returned when another actor holds a live lease on the
// issue. The error message names the current owner.
var ErrAlreadyClaimed = errors.New("issue already claimed")

// ErrLeaseMismatch is returned when the supplied lease id is not the lease
// currently held on the issue (including when the issue has no lease).
var ErrLeaseMismatch = errors.New("lease mismatch")

// ErrLeaseExpired is returned by heartbeat once the lease is past expires_at.
var ErrLeaseExpired = errors.New("lease expired")

// ErrNotClaimable is returned when claiming an issue in a resolved status.
var ErrNotClaimable = errors.New("issue is not claimable")

// ErrNotFound is returned when a requested entity does not exist in the database.
var ErrNotFound = errors.New("not found")

// ErrNotInitialized is returned when the database has not been initialized
// (e.g., issue_prefix config is missing).
var ErrNotInitialized = errors.New("database not initialized")

// ErrMalformedLease marks a leased row whose lease fields cannot be parsed.
// ListLeasedIssues skips such rows and reports them with this error.
var ErrMalformedLease = errors.New("malformed lease")

// ErrCycle is returned when a dependency edge would close a blocking cycle.
var ErrCycle = errors.New("dependency cycle detected")

// Candidate is an issue that passed every local readiness check, together
// with the external blockers the scheduler still has to resolve.
type Candidate struct {
	Issue            *types.Issue
	ExternalBlockers []types.ExternalRef
}

// IssueStore covers issue CRUD, graph edges and identifier lookups.
type IssueStore interface {
	CreateIssue(ctx context.Context, issue *types.Issue, actor string) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error)
	CloseIssue(ctx context.Context, id string, reason string, actor string) error

	AddDependency(ctx context.Context, dep *types.Dependency, actor string) error
	GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error)

	AddLabel(ctx context.Context, issueID, label, actor string) error
	GetLabels(ctx context.Context, issueID string) ([]string, error)

	GetEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error)

	// IDExists and FindIDsByHash back the identifier resolver.
	IDExists(ctx context.Context, id string) (bool, error)
	FindIDsByHash(ctx context.Context, fragment string) ([]string, error)
}

// LeaseStore is the lease protocol. Every method is one atomic transaction.
type LeaseStore interface {
	// ClaimIssue grants or renews a lease. It fails with ErrAlreadyClaimed
	// while another lease id is live, and rejects expiresAt <= now.
	ClaimIssue(ctx context.Context, id, owner, leaseID string, expiresAt, now time.Time) (*types.ClaimResult, error)

	// ReleaseLease clears the lease iff leaseID matches (ErrLeaseMismatch otherwise).
	ReleaseLease(ctx context.Context, id, leaseID, actor string) error

	// HeartbeatLease advances heartbeat_at without changing the lease id.
	HeartbeatLease(ctx context.Context, id, leaseID string, now time.Time) (*types.ClaimResult, error)
}

// SweepStore is what the lease sweeper needs. Mutations are compare-and-swap
// against the observed lease and report applied=false when they lose a race.
type SweepStore interface {
	// ListLeasedIssues returns every readable lease. Rows that cannot be
	// parsed are left out and reported by an error wrapping
	// ErrMalformedLease alongside the readable ones.
	ListLeasedIssues(ctx context.Context) ([]*types.LeasedIssue, error)
	ReclaimLease(ctx context.Context, id string, observed types.Leased, reason types.EventType, now time.Time, actor string) (applied bool, err error)
	MarkLeaseStale(ctx context.Context, id string, observed types.Leased, now time.Time, actor string) (applied bool, err error)
}

// CandidateSource yields issues that are locally eligible for work.
type CandidateSource interface {
	GetReadyCandidates(ctx context.Context, filter types.WorkFilter, now time.Time) ([]*Candidate, error)
}

// ExternalStatusResolver reads issue statuses from other projects' stores.
// Refs missing from the returned map are unresolved: the project was
// unknown, unreachable, timed out, or does not have the issue.
type ExternalStatusResolver interface {
	ResolveStatuses(ctx context.Context, refs []types.ExternalRef) map[types.ExternalRef]types.Status
}

// Storage is the interface satisfied by *sqlite.SQLiteStorage.
// Consumers depend on this interface rather than on the concrete type so that
// alternative implementations (fakes, instrumented wrappers) can be substituted.
type Storage interface {
	IssueStore
	LeaseStore
	SweepStore
	CandidateSource

	// Configuration
	SetConfig(ctx context.Context, key, value string) error
	GetConfig(ctx context.Context, key string) (string, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Path() string
	Close() error
}

// Transaction provides atomic multi-operation support within a single database transaction.
//
// All operations share one connection holding a write lock (BEGIN IMMEDIATE).
// If fn returns an error or panics, the transaction is rolled back; otherwise
// it is committed.
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    if err := tx.CreateIssue(ctx, issue, actor); err != nil {
//	        return err // Triggers rollback
//	    }
//	    return tx.AddLabel(ctx, issue.ID, "backend", actor)
//	})
type Transaction interface {
	CreateIssue(ctx context.Context, issue *types.Issue, actor string) error
	GetIssue(ctx context.Context, id string) (*types.Issue, error) // For read-your-writes within transaction
	AddDependency(ctx context.Context, dep *types.Dependency, actor string) error
	AddLabel(ctx context.Context, issueID, label, actor string) error
	GetConfig(ctx context.Context, key string) (string, error)
}
