package types

import "time"

// TimestampLayout is the fixed-width UTC layout used for persisted lease
// timestamps. Lexical order of formatted values equals chronological order,
// which lets the store compare them inside SQL predicates.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value written by FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampLayout, s)
}

// Lease is the claim state of an issue: either NoLease or Leased.
// The interface is sealed so a half-populated lease cannot be expressed.
type Lease interface {
	isLease()
}

// NoLease marks an unclaimed issue.
type NoLease struct{}

func (NoLease) isLease() {}

// Leased is a live or expired grant held by one owner.
type Leased struct {
	LeaseID     string    `json:"lease_id"`
	Owner       string    `json:"lease_owner"`
	ExpiresAt   time.Time `json:"lease_expires_at"`
	HeartbeatAt time.Time `json:"lease_heartbeat_at"`
	// StaleAt is set once the sweeper has flagged the lease as stale.
	// A heartbeat clears it.
	StaleAt *time.Time `json:"lease_stale_at,omitempty"`
}

func (Leased) isLease() {}

// Expired reports whether the lease is void at now.
func (l Leased) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// IsLive reports whether the lease still excludes other claimants at now.
func (l Leased) IsLive(now time.Time) bool {
	return !l.Expired(now)
}

// LeaseOf returns the issue's lease as a *Leased, or nil when unclaimed.
func LeaseOf(i *Issue) *Leased {
	if i == nil {
		return nil
	}
	switch l := i.Lease.(type) {
	case Leased:
		return &l
	case *Leased:
		return l
	}
	return nil
}

// ClaimResult is reported for every successful claim or heartbeat.
type ClaimResult struct {
	ID               string    `json:"id" yaml:"id"`
	LeaseID          string    `json:"lease_id" yaml:"lease_id"`
	LeaseOwner       string    `json:"lease_owner" yaml:"lease_owner"`
	LeaseExpiresAt   time.Time `json:"lease_expires_at" yaml:"lease_expires_at"`
	LeaseHeartbeatAt time.Time `json:"lease_heartbeat_at" yaml:"lease_heartbeat_at"`
}

// NewClaimResult builds the claim view of an issue's lease.
func NewClaimResult(id string, l Leased) *ClaimResult {
	return &ClaimResult{
		ID:               id,
		LeaseID:          l.LeaseID,
		LeaseOwner:       l.Owner,
		LeaseExpiresAt:   l.ExpiresAt,
		LeaseHeartbeatAt: l.HeartbeatAt,
	}
}

// LeasedIssue is the sweeper's view of one claimed issue.
type LeasedIssue struct {
	ID    string
	Lease Leased
}

// LeaseSweepSummary counts what one sweep pass did.
type LeaseSweepSummary struct {
	Expired         int       `json:"expired" yaml:"expired"`
	StaleMarked     int       `json:"stale_marked" yaml:"stale_marked"`
	OrphanedMarked  int       `json:"orphaned_marked" yaml:"orphaned_marked"`
	ReclaimedLeases int       `json:"reclaimed_leases" yaml:"reclaimed_leases"`
	SweptAt         time.Time `json:"swept_at" yaml:"swept_at"`
}
