package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/workbeads/wb/internal/types"
)

func addLabel(ctx context.Context, db dbtx, issueID, label, actor string, now time.Time) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return fmt.Errorf("label cannot be empty")
	}
	res, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, issueID, label)
	if err != nil {
		return wrapDBErrorf(err, "add label %q to %s", label, issueID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	return recordEvent(ctx, db, issueID, types.EventLabelAdded, actor, nil, &label, nil, now)
}

// AddLabel adds a label to an issue. Adding an existing label is a no-op.
func (s *SQLiteStorage) AddLabel(ctx context.Context, issueID, label, actor string) error {
	return s.withWriteConn(ctx, func(conn *sql.Conn) error {
		return addLabel(ctx, conn, issueID, label, actor, s.now())
	})
}

func getLabels(ctx context.Context, db dbtx, issueID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT label FROM labels WHERE issue_id = ? ORDER BY label`, issueID)
	if err != nil {
		return nil, wrapDBError("get labels", err)
	}
	defer func() { _ = rows.Close() }()

	var labels []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, wrapDBError("scan label", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// GetLabels returns the labels of an issue in ascending order.
func (s *SQLiteStorage) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	return getLabels(ctx, s.db, issueID)
}

// getLabelsForIssues loads labels for many issues in one query.
func getLabelsForIssues(ctx context.Context, db dbtx, ids []string) (map[string][]string, error) {
	out := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders, args := inClause(ids)
	// #nosec G201 - placeholders only
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT issue_id, label FROM labels WHERE issue_id IN (%s) ORDER BY issue_id, label
	`, placeholders), args...)
	if err != nil {
		return nil, wrapDBError("get labels for issues", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, label string
		if err := rows.Scan(&id, &label); err != nil {
			return nil, wrapDBError("scan label", err)
		}
		out[id] = append(out[id], label)
	}
	return out, rows.Err()
}

// inClause returns "?,?,?" and the values as []any.
func inClause[T any](values []T) (string, []any) {
	ph := make([]string, len(values))
	args := make([]any, len(values))
	for i, v := range values {
		ph[i] = "?"
		args[i] = v
	}
	return strings.Join(ph, ","), args
}
