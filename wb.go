// Package wb provides a minimal public API for driving wb from Go.
//
// Agents and orchestrators that would rather not shell out to the wb binary
// can open a project's store, pull ready work, claim it and run the lease
// sweeper in-process. Everything here is a thin alias over the internal
// packages used by the CLI.
package wb

import (
	"context"
	"log/slog"
	"time"

	"github.com/workbeads/wb/internal/config"
	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/ready"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/storage/sqlite"
	"github.com/workbeads/wb/internal/sweeper"
	"github.com/workbeads/wb/internal/types"
)

// Core types for working with issues and leases
type (
	Issue             = types.Issue
	Status            = types.Status
	IssueType         = types.IssueType
	Dependency        = types.Dependency
	WorkFilter        = types.WorkFilter
	SortPolicy        = types.SortPolicy
	Leased            = types.Leased
	ClaimResult       = types.ClaimResult
	LeaseSweepSummary = types.LeaseSweepSummary
	ExternalRef       = types.ExternalRef
)

// Status constants
const (
	StatusOpen       = types.StatusOpen
	StatusInProgress = types.StatusInProgress
	StatusClosed     = types.StatusClosed
	StatusBlocked    = types.StatusBlocked
)

// Sort policy constants
const (
	SortHybrid   = types.SortPolicyHybrid
	SortPriority = types.SortPolicyPriority
	SortOldest   = types.SortPolicyOldest
)

// Storage is the store interface used by the scheduler and sweeper.
type Storage = storage.Storage

// Scheduler computes the ready queue.
type Scheduler = ready.Scheduler

// Sweeper reclaims expired and orphaned leases.
type Sweeper = sweeper.Sweeper

// SweepOptions configures a Sweeper.
type SweepOptions = sweeper.Options

// Errors callers are expected to branch on.
var (
	ErrAlreadyClaimed  = storage.ErrAlreadyClaimed
	ErrLeaseMismatch   = storage.ErrLeaseMismatch
	ErrLeaseExpired    = storage.ErrLeaseExpired
	ErrNotFound        = storage.ErrNotFound
	ErrInvalidArgument = lease.ErrInvalidArgument
)

// Open opens (creating if needed) the SQLite store at dbPath.
func Open(ctx context.Context, dbPath string) (Storage, error) {
	return sqlite.New(ctx, dbPath)
}

// FindDatabasePath returns the database of the nearest .beads directory
// above the working directory, or "" when there is none.
func FindDatabasePath() string {
	beadsDir := config.FindBeadsDir()
	if beadsDir == "" {
		return ""
	}
	return config.LoadLocalConfig(beadsDir).DatabasePath(beadsDir)
}

// NewScheduler returns a ready-queue scheduler over s. projects maps
// external project names to their directories (or database files); it may
// be nil, in which case every external blocker counts as open.
func NewScheduler(s Storage, projects map[string]string, logger *slog.Logger) *Scheduler {
	var external storage.ExternalStatusResolver
	if len(projects) > 0 {
		external = sqlite.NewProjectResolver(projects, sqlite.DefaultExternalTimeout, logger)
	}
	return ready.New(s, external, logger)
}

// NewSweeper returns a lease sweeper over s.
func NewSweeper(s Storage, opts SweepOptions, logger *slog.Logger) (*Sweeper, error) {
	return sweeper.New(s, opts, logger)
}

// Claim grants a fresh lease on id to owner for ttl.
func Claim(ctx context.Context, s Storage, id, owner string, ttl time.Duration) (*ClaimResult, error) {
	now := time.Now().UTC()
	expiresAt, err := lease.ExpiresAt(now, ttl)
	if err != nil {
		return nil, err
	}
	return s.ClaimIssue(ctx, id, owner, lease.NewLeaseID(), expiresAt, now)
}
