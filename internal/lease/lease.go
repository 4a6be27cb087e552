// Package lease holds the pure rules of the lease protocol: lease id
// generation, expiry math, input validation and lease health
// classification. Persistence lives in the storage packages.
package lease

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/workbeads/wb/internal/types"
)

// Defaults used when neither flags nor config override them.
const (
	DefaultTTL           = 30 * time.Minute
	DefaultStaleAfter    = 20 * time.Minute
	DefaultOrphanAfter   = 40 * time.Minute
	DefaultSweepInterval = 60 * time.Second
)

// ErrInvalidArgument marks caller input rejected before any store mutation.
var ErrInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// NewLeaseID returns a version 4 UUID as 32 lowercase hex characters
// (122 random bits; the version and variant nibbles are fixed).
func NewLeaseID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// ValidateTTL rejects zero and negative TTLs.
func ValidateTTL(ttl time.Duration) error {
	if ttl <= 0 {
		return invalid("lease ttl must be positive (got %s)", ttl)
	}
	return nil
}

// ExpiresAt computes the expiry for a grant made at now.
func ExpiresAt(now time.Time, ttl time.Duration) (time.Time, error) {
	if err := ValidateTTL(ttl); err != nil {
		return time.Time{}, err
	}
	return now.Add(ttl), nil
}

// ValidateClaimTargets enforces that an explicit lease id is only used when
// claiming exactly one issue.
func ValidateClaimTargets(targets int, leaseID string) error {
	if targets == 0 {
		return invalid("no issue to claim")
	}
	if leaseID != "" && targets != 1 {
		return invalid("--lease-id can only be used with a single issue (got %d)", targets)
	}
	return nil
}

// ValidateSweepThresholds requires 0 < staleAfter < orphanAfter.
func ValidateSweepThresholds(staleAfter, orphanAfter time.Duration) error {
	if staleAfter <= 0 {
		return invalid("stale-after must be positive (got %s)", staleAfter)
	}
	if orphanAfter <= staleAfter {
		return invalid("orphan-after (%s) must exceed stale-after (%s)", orphanAfter, staleAfter)
	}
	return nil
}

// ValidateInterval rejects a zero or negative daemon interval.
func ValidateInterval(interval time.Duration) error {
	if interval <= 0 {
		return invalid("sweep interval must be positive (got %s)", interval)
	}
	return nil
}

// Health is the sweeper's verdict on one lease.
type Health int

const (
	Healthy Health = iota
	Stale
	Orphaned
	Expired
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Stale:
		return "stale"
	case Orphaned:
		return "orphaned"
	case Expired:
		return "expired"
	}
	return fmt.Sprintf("Health(%d)", int(h))
}

// Reclaims reports whether the sweeper takes the lease back.
func (h Health) Reclaims() bool {
	return h == Expired || h == Orphaned
}

// Classify applies the sweep rules in order: expiry first, then heartbeat
// silence beyond orphanAfter, then beyond staleAfter.
func Classify(l types.Leased, now time.Time, staleAfter, orphanAfter time.Duration) Health {
	if l.Expired(now) {
		return Expired
	}
	silence := now.Sub(l.HeartbeatAt)
	switch {
	case silence > orphanAfter:
		return Orphaned
	case silence > staleAfter:
		return Stale
	}
	return Healthy
}
