package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/workbeads/wb/internal/idgen"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
	"github.com/workbeads/wb/internal/utils"
)

// issueColumns is the column list scanned by scanIssue, in order.
const issueColumns = `i.id, i.content_hash, i.title, i.description, i.acceptance_criteria,
	i.status, i.priority, i.issue_type, i.assignee,
	i.created_at, i.updated_at, i.closed_at, i.close_reason,
	i.deferred, i.pinned, i.ephemeral,
	i.lease_id, i.lease_owner, i.lease_expires_at, i.lease_heartbeat_at, i.lease_stale_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanIssue reads one issueColumns row. The nullable lease columns are
// folded into a types.Lease so callers never see a partial lease.
func scanIssue(row rowScanner) (*types.Issue, error) {
	var issue types.Issue
	var createdAt, updatedAt string
	var closedAt sql.NullString
	var deferred, pinned, ephemeral int
	var leaseID, leaseOwner, leaseExpires, leaseHeartbeat, leaseStale sql.NullString

	err := row.Scan(
		&issue.ID, &issue.ContentHash, &issue.Title, &issue.Description, &issue.AcceptanceCriteria,
		&issue.Status, &issue.Priority, &issue.IssueType, &issue.Assignee,
		&createdAt, &updatedAt, &closedAt, &issue.CloseReason,
		&deferred, &pinned, &ephemeral,
		&leaseID, &leaseOwner, &leaseExpires, &leaseHeartbeat, &leaseStale,
	)
	if err != nil {
		return nil, err
	}

	if issue.CreatedAt, err = types.ParseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("issue %s: bad created_at: %w", issue.ID, err)
	}
	if issue.UpdatedAt, err = types.ParseTimestamp(updatedAt); err != nil {
		return nil, fmt.Errorf("issue %s: bad updated_at: %w", issue.ID, err)
	}
	if closedAt.Valid {
		t, err := types.ParseTimestamp(closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("issue %s: bad closed_at: %w", issue.ID, err)
		}
		issue.ClosedAt = &t
	}
	issue.Deferred = deferred != 0
	issue.Pinned = pinned != 0
	issue.Ephemeral = ephemeral != 0

	issue.Lease = types.NoLease{}
	if leaseID.Valid {
		l, err := parseLease(leaseID.String, leaseOwner.String, leaseExpires.String, leaseHeartbeat.String, leaseStale)
		if err != nil {
			return nil, fmt.Errorf("issue %s: %w", issue.ID, err)
		}
		issue.Lease = l
	}
	return &issue, nil
}

func parseLease(id, owner, expires, heartbeat string, stale sql.NullString) (types.Leased, error) {
	l := types.Leased{LeaseID: id, Owner: owner}
	var err error
	if l.ExpiresAt, err = types.ParseTimestamp(expires); err != nil {
		return types.Leased{}, fmt.Errorf("bad lease_expires_at: %w", err)
	}
	if l.HeartbeatAt, err = types.ParseTimestamp(heartbeat); err != nil {
		return types.Leased{}, fmt.Errorf("bad lease_heartbeat_at: %w", err)
	}
	if stale.Valid {
		t, err := types.ParseTimestamp(stale.String)
		if err != nil {
			return types.Leased{}, fmt.Errorf("bad lease_stale_at: %w", err)
		}
		l.StaleAt = &t
	}
	return l, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// insertIssue inserts a single issue into the database
func insertIssue(ctx context.Context, db dbtx, issue *types.Issue, actor string) error {
	var closedAt any
	if issue.ClosedAt != nil {
		closedAt = types.FormatTimestamp(*issue.ClosedAt)
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO issues (
			id, content_hash, title, description, acceptance_criteria,
			status, priority, issue_type, assignee,
			created_at, created_by, updated_at, closed_at, close_reason,
			deferred, pinned, ephemeral
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		issue.ID, issue.ContentHash, issue.Title, issue.Description, issue.AcceptanceCriteria,
		issue.Status, issue.Priority, issue.IssueType, issue.Assignee,
		types.FormatTimestamp(issue.CreatedAt), actor, types.FormatTimestamp(issue.UpdatedAt),
		closedAt, issue.CloseReason,
		boolInt(issue.Deferred), boolInt(issue.Pinned), boolInt(issue.Ephemeral),
	)
	if err != nil {
		return fmt.Errorf("failed to insert issue: %w", err)
	}
	return nil
}

// createIssue validates, assigns an ID and inserts the issue with its labels.
// A new issue never carries a lease.
func createIssue(ctx context.Context, db dbtx, issue *types.Issue, actor string, now time.Time) error {
	issue.SetDefaults()
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if _, unleased := issue.Lease.(types.NoLease); !unleased {
		return fmt.Errorf("validation failed: new issues cannot carry a lease")
	}

	if issue.CreatedAt.IsZero() {
		issue.CreatedAt = now
	}
	issue.UpdatedAt = now
	if issue.ContentHash == "" {
		issue.ContentHash = issue.ComputeContentHash()
	}

	prefix, err := getConfig(ctx, db, "issue_prefix")
	if err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	if prefix == "" {
		return fmt.Errorf("%w: issue_prefix config is missing (run 'wb init --prefix <prefix>' first)", storage.ErrNotInitialized)
	}

	if issue.ID == "" {
		var count int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues`).Scan(&count); err != nil {
			return wrapDBError("count issues", err)
		}
		id, err := idgen.NewIssueID(ctx, prefix, issue.Title, issue.Description, actor, issue.CreatedAt, count,
			func(ctx context.Context, id string) (bool, error) { return idExists(ctx, db, id) })
		if err != nil {
			return wrapDBError("generate issue ID", err)
		}
		issue.ID = id
	} else if got := utils.ExtractIssuePrefix(issue.ID); got != prefix {
		return fmt.Errorf("issue ID %q does not match configured prefix %q", issue.ID, prefix)
	}

	if err := insertIssue(ctx, db, issue, actor); err != nil {
		if IsUniqueConstraintError(err) {
			return fmt.Errorf("issue %s already exists: %w", issue.ID, err)
		}
		return wrapDBError("insert issue", err)
	}
	if err := recordEvent(ctx, db, issue.ID, types.EventCreated, actor, nil, &issue.Title, nil, now); err != nil {
		return wrapDBError("record creation event", err)
	}
	for _, label := range issue.Labels {
		if err := addLabel(ctx, db, issue.ID, label, actor, now); err != nil {
			return err
		}
	}
	return nil
}

// CreateIssue creates a new issue
func (s *SQLiteStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) error {
	return s.withWriteConn(ctx, func(conn *sql.Conn) error {
		return createIssue(ctx, conn, issue, actor, s.now())
	})
}

func getIssue(ctx context.Context, db dbtx, id string) (*types.Issue, error) {
	row := db.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues i WHERE i.id = ?`, id)
	issue, err := scanIssue(row)
	if err != nil {
		return nil, wrapDBErrorf(err, "get issue %s", id)
	}
	if issue.Labels, err = getLabels(ctx, db, id); err != nil {
		return nil, err
	}
	if issue.Dependencies, err = getDependencyRecords(ctx, db, id); err != nil {
		return nil, err
	}
	return issue, nil
}

// GetIssue retrieves an issue by ID with its labels and dependencies.
// Returns an error wrapping storage.ErrNotFound if the issue does not exist.
func (s *SQLiteStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	return getIssue(ctx, s.db, id)
}

// CloseIssue closes an issue. Any lease on it is released, since a resolved
// issue can no longer be worked.
func (s *SQLiteStorage) CloseIssue(ctx context.Context, id string, reason string, actor string) error {
	return s.withWriteConn(ctx, func(conn *sql.Conn) error {
		now := types.FormatTimestamp(s.now())
		res, err := conn.ExecContext(ctx, `
			UPDATE issues
			SET status = 'closed', closed_at = ?, close_reason = ?, updated_at = ?,
			    lease_id = NULL, lease_owner = NULL, lease_expires_at = NULL,
			    lease_heartbeat_at = NULL, lease_stale_at = NULL
			WHERE id = ? AND status != 'closed'
		`, now, reason, now, id)
		if err != nil {
			return wrapDBErrorf(err, "close issue %s", id)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			ok, err := idExists(ctx, conn, id)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("close issue %s: %w", id, storage.ErrNotFound)
			}
			return nil // already closed
		}
		var comment *string
		if reason != "" {
			comment = &reason
		}
		return recordEvent(ctx, conn, id, types.EventClosed, actor, nil, nil, comment, s.now())
	})
}

func idExists(ctx context.Context, db dbtx, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErrorf(err, "check issue %s", id)
	}
	return true, nil
}

// IDExists reports whether an issue with exactly this ID exists.
func (s *SQLiteStorage) IDExists(ctx context.Context, id string) (bool, error) {
	return idExists(ctx, s.db, id)
}

// FindIDsByHash returns every ID whose hash part contains fragment, or whose
// content hash starts with it, in ascending order.
func (s *SQLiteStorage) FindIDsByHash(ctx context.Context, fragment string) ([]string, error) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return nil, nil
	}
	// SQL narrows by substring; MatchesHashFragment applies the exact rule
	// (hash part only, content hash prefix only).
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, content_hash FROM issues
		WHERE instr(lower(id), ?) > 0 OR content_hash LIKE ? || '%'
		ORDER BY id
	`, fragment, fragment)
	if err != nil {
		return nil, wrapDBError("find issues by hash", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id, contentHash string
		if err := rows.Scan(&id, &contentHash); err != nil {
			return nil, wrapDBError("scan issue id", err)
		}
		if utils.MatchesHashFragment(id, contentHash, fragment) {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}
