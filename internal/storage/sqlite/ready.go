package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/workbeads/wb/internal/debug"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

// GetReadyCandidates returns issues that pass every local readiness check:
//   - status open or in_progress
//   - not pinned, not ephemeral, not deferred (unless IncludeDeferred)
//   - no live lease at now
//   - every local blocks dependency points at an existing closed issue
//   - caller filters (assignee/unassigned, labels AND/OR, types, priorities)
//
// External blockers are attached, not resolved. No limit or ordering
// beyond id is applied here; the scheduler does both after external
// resolution.
func (s *SQLiteStorage) GetReadyCandidates(ctx context.Context, filter types.WorkFilter, now time.Time) ([]*storage.Candidate, error) {
	whereClauses := []string{
		"i.status IN ('open', 'in_progress')",
		"i.pinned = 0",
		"i.ephemeral = 0",
		"(i.lease_id IS NULL OR i.lease_expires_at < ?)",
		`NOT EXISTS (
			SELECT 1 FROM dependencies d
			LEFT JOIN issues blocker ON blocker.id = d.depends_on_id
			WHERE d.issue_id = i.id
			  AND d.type = 'blocks'
			  AND d.depends_on_id NOT LIKE 'external:%'
			  AND (blocker.id IS NULL OR blocker.status != 'closed')
		)`,
	}
	args := []interface{}{types.FormatTimestamp(now)}

	if !filter.IncludeDeferred {
		whereClauses = append(whereClauses, "i.deferred = 0")
	}

	// Unassigned takes precedence over Assignee filter
	if filter.Unassigned {
		whereClauses = append(whereClauses, "i.assignee = ''")
	} else if filter.Assignee != nil {
		whereClauses = append(whereClauses, "i.assignee = ?")
		args = append(args, *filter.Assignee)
	}

	// Label filtering (AND semantics)
	for _, label := range filter.Labels {
		whereClauses = append(whereClauses, `
			EXISTS (
				SELECT 1 FROM labels
				WHERE issue_id = i.id AND label = ?
			)
		`)
		args = append(args, label)
	}

	// Label filtering (OR semantics)
	if len(filter.LabelsAny) > 0 {
		placeholders, labelArgs := inClause(filter.LabelsAny)
		whereClauses = append(whereClauses, fmt.Sprintf(`
			EXISTS (
				SELECT 1 FROM labels
				WHERE issue_id = i.id AND label IN (%s)
			)
		`, placeholders))
		args = append(args, labelArgs...)
	}

	if len(filter.Types) > 0 {
		placeholders, typeArgs := inClause(filter.Types)
		whereClauses = append(whereClauses, fmt.Sprintf("i.issue_type IN (%s)", placeholders))
		args = append(args, typeArgs...)
	}

	if len(filter.Priorities) > 0 {
		placeholders, prioArgs := inClause(filter.Priorities)
		whereClauses = append(whereClauses, fmt.Sprintf("i.priority IN (%s)", placeholders))
		args = append(args, prioArgs...)
	}

	// #nosec G201 - safe SQL with controlled formatting
	query := fmt.Sprintf(`
		SELECT %s
		FROM issues i
		WHERE %s
		ORDER BY i.id
	`, issueColumns, strings.Join(whereClauses, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get ready candidates", err)
	}
	defer func() { _ = rows.Close() }()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, wrapDBError("scan ready candidate", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("iterate ready candidates", err)
	}
	if len(issues) == 0 {
		return nil, nil
	}

	ids := make([]string, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	labels, err := getLabelsForIssues(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	external, err := s.getExternalDepsForIssues(ctx, ids)
	if err != nil {
		return nil, err
	}

	candidates := make([]*storage.Candidate, 0, len(issues))
	for _, issue := range issues {
		issue.Labels = labels[issue.ID]
		c := &storage.Candidate{Issue: issue}
		malformed := false
		for _, raw := range external[issue.ID] {
			ref, err := types.ParseExternalRef(raw)
			if err != nil {
				// Cannot be resolved, so it can never be satisfied.
				debug.Logf("ready: %s has malformed external blocker %q: %v", issue.ID, raw, err)
				malformed = true
				break
			}
			c.ExternalBlockers = append(c.ExternalBlockers, ref)
		}
		if !malformed {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// getExternalDepsForIssues returns a map of issue ID -> external blocks refs
func (s *SQLiteStorage) getExternalDepsForIssues(ctx context.Context, issueIDs []string) (map[string][]string, error) {
	result := make(map[string][]string)
	if len(issueIDs) == 0 {
		return result, nil
	}
	placeholders, args := inClause(issueIDs)

	// #nosec G201 - placeholders only
	query := fmt.Sprintf(`
		SELECT issue_id, depends_on_id
		FROM dependencies
		WHERE issue_id IN (%s)
		  AND type = 'blocks'
		  AND depends_on_id LIKE 'external:%%'
		ORDER BY issue_id, depends_on_id
	`, placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapDBError("get external deps", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var issueID, depID string
		if err := rows.Scan(&issueID, &depID); err != nil {
			return nil, wrapDBError("scan external dep", err)
		}
		result[issueID] = append(result[issueID], depID)
	}
	return result, rows.Err()
}
