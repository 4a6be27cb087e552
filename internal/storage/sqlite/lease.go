package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/workbeads/wb/internal/debug"
	"github.com/workbeads/wb/internal/lease"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

// clearLeaseSQL resets the lease field group and hands the issue back to the
// unclaimed pool. SET expressions see pre-update values, so the assignee is
// only cleared when it still names the lease owner.
const clearLeaseSQL = `
	lease_id = NULL, lease_owner = NULL, lease_expires_at = NULL,
	lease_heartbeat_at = NULL, lease_stale_at = NULL,
	status = CASE WHEN status = 'in_progress' THEN 'open' ELSE status END,
	assignee = CASE WHEN assignee = lease_owner THEN '' ELSE assignee END`

type leaseRow struct {
	status    types.Status
	leaseID   sql.NullString
	owner     sql.NullString
	expiresAt sql.NullString
}

func readLeaseRow(ctx context.Context, db dbtx, id string) (*leaseRow, error) {
	var r leaseRow
	err := db.QueryRowContext(ctx, `
		SELECT status, lease_id, lease_owner, lease_expires_at FROM issues WHERE id = ?
	`, id).Scan(&r.status, &r.leaseID, &r.owner, &r.expiresAt)
	if err != nil {
		return nil, wrapDBErrorf(err, "read lease of %s", id)
	}
	return &r, nil
}

// ClaimIssue atomically grants a lease on an issue.
//
// The grant succeeds when the issue has no lease, its lease has expired, or
// leaseID equals the current lease id (renewal). The write is a single
// conditional UPDATE inside BEGIN IMMEDIATE, so among concurrent claimants
// exactly one wins and the rest get storage.ErrAlreadyClaimed.
//
// On success the issue moves to in_progress and is assigned to owner.
// An empty leaseID is replaced by a fresh random one.
func (s *SQLiteStorage) ClaimIssue(ctx context.Context, id, owner, leaseID string, expiresAt, now time.Time) (*types.ClaimResult, error) {
	if !expiresAt.After(now) {
		return nil, fmt.Errorf("%w: lease expiry %s is not after grant time %s",
			lease.ErrInvalidArgument, expiresAt.Format(time.RFC3339), now.Format(time.RFC3339))
	}
	if owner == "" {
		return nil, fmt.Errorf("%w: lease owner is required", lease.ErrInvalidArgument)
	}
	if leaseID == "" {
		leaseID = lease.NewLeaseID()
	}

	nowS := types.FormatTimestamp(now)
	expS := types.FormatTimestamp(expiresAt)

	var result *types.ClaimResult
	err := s.withWriteConn(ctx, func(conn *sql.Conn) error {
		prev, err := readLeaseRow(ctx, conn, id)
		if err != nil {
			return err
		}

		res, err := conn.ExecContext(ctx, `
			UPDATE issues
			SET lease_id = ?, lease_owner = ?, lease_expires_at = ?,
			    lease_heartbeat_at = ?, lease_stale_at = NULL,
			    status = 'in_progress', assignee = ?, updated_at = ?
			WHERE id = ?
			  AND status != 'closed'
			  AND (lease_id IS NULL OR lease_expires_at < ? OR lease_id = ?)
		`, leaseID, owner, expS, nowS, owner, nowS, id, nowS, leaseID)
		if err != nil {
			return wrapDBErrorf(err, "claim %s", id)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return wrapDBErrorf(err, "claim %s", id)
		}
		if rows == 0 {
			if prev.status.IsResolved() {
				return fmt.Errorf("claim %s: %w (status %s)", id, storage.ErrNotClaimable, prev.status)
			}
			return fmt.Errorf("claim %s: %w by %s", id, storage.ErrAlreadyClaimed, prev.owner.String)
		}

		eventType := types.EventLeaseClaimed
		var oldOwner *string
		if prev.leaseID.Valid {
			if prev.leaseID.String == leaseID {
				eventType = types.EventLeaseRenewed
			}
			oldOwner = &prev.owner.String
		}
		if err := recordEvent(ctx, conn, id, eventType, owner, oldOwner, &leaseID, nil, now); err != nil {
			return err
		}

		result = types.NewClaimResult(id, types.Leased{
			LeaseID:     leaseID,
			Owner:       owner,
			ExpiresAt:   expiresAt.UTC(),
			HeartbeatAt: now.UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ReleaseLease clears the lease iff leaseID is the current lease.
// Any other lease id, including on an unleased issue, is storage.ErrLeaseMismatch.
func (s *SQLiteStorage) ReleaseLease(ctx context.Context, id, leaseID, actor string) error {
	return s.withWriteConn(ctx, func(conn *sql.Conn) error {
		prev, err := readLeaseRow(ctx, conn, id)
		if err != nil {
			return err
		}
		if leaseID == "" || !prev.leaseID.Valid || prev.leaseID.String != leaseID {
			return fmt.Errorf("release %s: %w", id, storage.ErrLeaseMismatch)
		}

		// #nosec G201 - constant SQL fragment
		res, err := conn.ExecContext(ctx, `
			UPDATE issues SET `+clearLeaseSQL+`, updated_at = ?
			WHERE id = ? AND lease_id = ?
		`, types.FormatTimestamp(s.now()), id, leaseID)
		if err != nil {
			return wrapDBErrorf(err, "release %s", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("release %s: %w", id, storage.ErrLeaseMismatch)
		}
		return recordEvent(ctx, conn, id, types.EventLeaseReleased, actor, &prev.owner.String, nil, &leaseID, s.now())
	})
}

// HeartbeatLease records a liveness signal. The lease id never changes.
func (s *SQLiteStorage) HeartbeatLease(ctx context.Context, id, leaseID string, now time.Time) (*types.ClaimResult, error) {
	var result *types.ClaimResult
	err := s.withWriteConn(ctx, func(conn *sql.Conn) error {
		prev, err := readLeaseRow(ctx, conn, id)
		if err != nil {
			return err
		}
		if leaseID == "" || !prev.leaseID.Valid || prev.leaseID.String != leaseID {
			return fmt.Errorf("heartbeat %s: %w", id, storage.ErrLeaseMismatch)
		}
		expiresAt, err := types.ParseTimestamp(prev.expiresAt.String)
		if err != nil {
			return fmt.Errorf("heartbeat %s: bad lease_expires_at: %w", id, err)
		}
		if now.After(expiresAt) {
			return fmt.Errorf("heartbeat %s: %w at %s", id, storage.ErrLeaseExpired, expiresAt.Format(time.RFC3339))
		}

		if _, err := conn.ExecContext(ctx, `
			UPDATE issues SET lease_heartbeat_at = ?, lease_stale_at = NULL
			WHERE id = ? AND lease_id = ?
		`, types.FormatTimestamp(now), id, leaseID); err != nil {
			return wrapDBErrorf(err, "heartbeat %s", id)
		}

		result = types.NewClaimResult(id, types.Leased{
			LeaseID:     leaseID,
			Owner:       prev.owner.String,
			ExpiresAt:   expiresAt,
			HeartbeatAt: now.UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListLeasedIssues returns every issue currently carrying a lease, by id.
// A row whose lease timestamps do not parse is skipped; all such rows are
// reported together in an error wrapping storage.ErrMalformedLease.
func (s *SQLiteStorage) ListLeasedIssues(ctx context.Context) ([]*types.LeasedIssue, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lease_id, lease_owner, lease_expires_at, lease_heartbeat_at, lease_stale_at
		FROM issues WHERE lease_id IS NOT NULL ORDER BY id
	`)
	if err != nil {
		return nil, wrapDBError("list leased issues", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.LeasedIssue
	var malformed []error
	for rows.Next() {
		var id, leaseID, owner, expires, heartbeat string
		var stale sql.NullString
		if err := rows.Scan(&id, &leaseID, &owner, &expires, &heartbeat, &stale); err != nil {
			return nil, wrapDBError("scan leased issue", err)
		}
		l, err := parseLease(leaseID, owner, expires, heartbeat, stale)
		if err != nil {
			debug.Logf("lease sweep: skipping %s: %v", id, err)
			malformed = append(malformed, fmt.Errorf("issue %s: %w: %v", id, storage.ErrMalformedLease, err))
			continue
		}
		out = append(out, &types.LeasedIssue{ID: id, Lease: l})
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate leased issues", err)
	}
	return out, errors.Join(malformed...)
}

// observedLeaseSQL matches a row only while its lease is exactly the one the
// sweeper read, so a claim or heartbeat in between wins.
const observedLeaseSQL = `id = ? AND lease_id = ? AND lease_expires_at = ? AND lease_heartbeat_at = ?`

func observedArgs(id string, l types.Leased) []any {
	return []any{id, l.LeaseID, types.FormatTimestamp(l.ExpiresAt), types.FormatTimestamp(l.HeartbeatAt)}
}

// ReclaimLease clears a lease the sweeper judged expired or orphaned as of
// now. reason is recorded as the audit event type. Returns applied=false
// when the lease changed since it was observed.
func (s *SQLiteStorage) ReclaimLease(ctx context.Context, id string, observed types.Leased, reason types.EventType, now time.Time, actor string) (bool, error) {
	if reason != types.EventLeaseExpired && reason != types.EventLeaseOrphaned {
		return false, fmt.Errorf("%w: unsupported reclaim reason %q", lease.ErrInvalidArgument, reason)
	}
	applied := false
	err := s.withWriteConn(ctx, func(conn *sql.Conn) error {
		args := append([]any{types.FormatTimestamp(now)}, observedArgs(id, observed)...)
		// #nosec G201 - constant SQL fragments
		res, err := conn.ExecContext(ctx, `
			UPDATE issues SET `+clearLeaseSQL+`, updated_at = ?
			WHERE `+observedLeaseSQL, args...)
		if err != nil {
			return wrapDBErrorf(err, "reclaim %s", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		applied = true
		return recordEvent(ctx, conn, id, reason, actor, &observed.Owner, nil, &observed.LeaseID, now)
	})
	return applied, err
}

// MarkLeaseStale annotates a silent but unexpired lease. The lease stays in
// place. Returns applied=false if the lease changed or was already marked.
func (s *SQLiteStorage) MarkLeaseStale(ctx context.Context, id string, observed types.Leased, now time.Time, actor string) (bool, error) {
	applied := false
	err := s.withWriteConn(ctx, func(conn *sql.Conn) error {
		args := append([]any{types.FormatTimestamp(now)}, observedArgs(id, observed)...)
		// #nosec G201 - constant SQL fragment
		res, err := conn.ExecContext(ctx, `
			UPDATE issues SET lease_stale_at = ?
			WHERE `+observedLeaseSQL+` AND lease_stale_at IS NULL`, args...)
		if err != nil {
			return wrapDBErrorf(err, "mark %s stale", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		applied = true
		return recordEvent(ctx, conn, id, types.EventLeaseStale, actor, &observed.Owner, nil, &observed.LeaseID, now)
	})
	return applied, err
}
