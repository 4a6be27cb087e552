package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/workbeads/wb/internal/types"
)

func recordEvent(ctx context.Context, db dbtx, issueID string, eventType types.EventType, actor string, oldValue, newValue, comment *string, at time.Time) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (issue_id, event_type, actor, old_value, new_value, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, issueID, eventType, actor, oldValue, newValue, comment, types.FormatTimestamp(at))
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", eventType, err)
	}
	return nil
}

// GetEvents returns the audit trail of an issue, newest first.
// limit <= 0 returns every event.
func (s *SQLiteStorage) GetEvents(ctx context.Context, issueID string, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, issue_id, event_type, actor, old_value, new_value, comment, created_at
		FROM events WHERE issue_id = ? ORDER BY id DESC`
	args := []any{issueID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get events", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*types.Event
	for rows.Next() {
		var e types.Event
		var oldValue, newValue, comment sql.NullString
		var createdAt string
		if err := rows.Scan(&e.ID, &e.IssueID, &e.EventType, &e.Actor, &oldValue, &newValue, &comment, &createdAt); err != nil {
			return nil, wrapDBError("scan event", err)
		}
		if oldValue.Valid {
			e.OldValue = &oldValue.String
		}
		if newValue.Valid {
			e.NewValue = &newValue.String
		}
		if comment.Valid {
			e.Comment = &comment.String
		}
		if e.CreatedAt, err = types.ParseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("event %d: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
