package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

// maxDependencyDepth bounds the cycle check walk.
const maxDependencyDepth = 100

func addDependency(ctx context.Context, db dbtx, dep *types.Dependency, actor string, now time.Time) error {
	if dep.Type == "" {
		dep.Type = types.DepBlocks
	}
	if !dep.Type.IsValid() {
		return fmt.Errorf("invalid dependency type: %s", dep.Type)
	}
	if dep.IssueID == dep.DependsOnID {
		return fmt.Errorf("issue %s cannot depend on itself", dep.IssueID)
	}

	ok, err := idExists(ctx, db, dep.IssueID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("issue %s: %w", dep.IssueID, storage.ErrNotFound)
	}

	if dep.IsExternal() {
		if _, err := types.ParseExternalRef(dep.DependsOnID); err != nil {
			return err
		}
	} else {
		ok, err := idExists(ctx, db, dep.DependsOnID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("dependency target %s: %w", dep.DependsOnID, storage.ErrNotFound)
		}
		if dep.Type.AffectsReadyWork() {
			cyclic, err := reachesViaBlocks(ctx, db, dep.DependsOnID, dep.IssueID)
			if err != nil {
				return err
			}
			if cyclic {
				return fmt.Errorf("%s -> %s: %w", dep.IssueID, dep.DependsOnID, storage.ErrCycle)
			}
		}
	}

	dep.CreatedAt = now
	dep.CreatedBy = actor
	if _, err := db.ExecContext(ctx, `
		INSERT INTO dependencies (issue_id, depends_on_id, type, created_at, created_by)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (issue_id, depends_on_id) DO UPDATE SET type = excluded.type
	`, dep.IssueID, dep.DependsOnID, dep.Type, types.FormatTimestamp(now), actor); err != nil {
		return wrapDBError("add dependency", err)
	}

	target := dep.DependsOnID
	return recordEvent(ctx, db, dep.IssueID, types.EventDependencyAdded, actor, nil, &target, nil, now)
}

// reachesViaBlocks reports whether from transitively blocks-depends on to.
func reachesViaBlocks(ctx context.Context, db dbtx, from, to string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `
		WITH RECURSIVE reach(id, depth) AS (
			SELECT ?, 0
			UNION
			SELECT d.depends_on_id, r.depth + 1
			FROM dependencies d
			JOIN reach r ON d.issue_id = r.id
			WHERE d.type = 'blocks' AND r.depth < ?
		)
		SELECT 1 FROM reach WHERE id = ? LIMIT 1
	`, from, maxDependencyDepth, to).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapDBError("check dependency cycle", err)
	}
	return true, nil
}

// AddDependency adds a dependency edge. The target may be a local issue or
// an external ref (external:<project>:<id>). Local blocking edges that would
// close a cycle are rejected with storage.ErrCycle.
func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	return s.withWriteConn(ctx, func(conn *sql.Conn) error {
		return addDependency(ctx, conn, dep, actor, s.now())
	})
}

func getDependencyRecords(ctx context.Context, db dbtx, issueID string) ([]*types.Dependency, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at, created_by
		FROM dependencies WHERE issue_id = ? ORDER BY depends_on_id
	`, issueID)
	if err != nil {
		return nil, wrapDBError("get dependencies", err)
	}
	defer func() { _ = rows.Close() }()

	var deps []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		var createdAt string
		if err := rows.Scan(&d.IssueID, &d.DependsOnID, &d.Type, &createdAt, &d.CreatedBy); err != nil {
			return nil, wrapDBError("scan dependency", err)
		}
		if d.CreatedAt, err = types.ParseTimestamp(createdAt); err != nil {
			return nil, fmt.Errorf("dependency %s -> %s: %w", d.IssueID, d.DependsOnID, err)
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// GetDependencyRecords returns the outgoing edges of an issue.
func (s *SQLiteStorage) GetDependencyRecords(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	return getDependencyRecords(ctx, s.db, issueID)
}
