package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/types"
)

// DefaultExternalTimeout bounds each external store query.
const DefaultExternalTimeout = 2 * time.Second

// maxExternalFanout caps how many external stores are opened at once.
const maxExternalFanout = 8

var _ storage.ExternalStatusResolver = (*ProjectResolver)(nil)

// ProjectResolver resolves external blocker references by reading the
// statuses of issues in other projects' databases.
//
// Projects maps a project name to its directory (the database is
// <dir>/.beads/beads.db) or directly to a .db file. Resolution is lazy and
// read-only; nothing is cached between calls.
type ProjectResolver struct {
	Projects map[string]string
	Timeout  time.Duration
	Logger   *slog.Logger
}

// NewProjectResolver returns a resolver over the given project map.
// A zero timeout selects DefaultExternalTimeout.
func NewProjectResolver(projects map[string]string, timeout time.Duration, logger *slog.Logger) *ProjectResolver {
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ProjectResolver{Projects: projects, Timeout: timeout, Logger: logger}
}

// ProjectDBPath maps a configured project path to its database file.
func ProjectDBPath(projectPath string) string {
	if strings.HasSuffix(projectPath, ".db") {
		return projectPath
	}
	return filepath.Join(projectPath, ".beads", "beads.db")
}

// ResolveStatuses returns the status of every ref it could read. Each
// project is queried once, concurrently, under its own deadline. A project
// that is unknown, missing, unreadable or slow only leaves its refs out of
// the result; it never fails the whole call.
func (r *ProjectResolver) ResolveStatuses(ctx context.Context, refs []types.ExternalRef) map[types.ExternalRef]types.Status {
	result := make(map[types.ExternalRef]types.Status)
	if len(refs) == 0 {
		return result
	}

	byProject := make(map[string][]string)
	for _, ref := range refs {
		byProject[ref.Project] = append(byProject[ref.Project], ref.IssueID)
	}
	projects := make([]string, 0, len(byProject))
	for p := range byProject {
		projects = append(projects, p)
	}
	sort.Strings(projects)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultExternalTimeout
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxExternalFanout)
	for _, project := range projects {
		ids := byProject[project]
		path, ok := r.Projects[project]
		if !ok || path == "" {
			logger.Debug("external project not configured", "project", project)
			continue
		}
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			statuses, err := queryProjectStatuses(qctx, ProjectDBPath(path), ids)
			if err != nil {
				logger.Debug("external project unresolved", "project", project, "path", path, "error", err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for id, status := range statuses {
				result[types.ExternalRef{Project: project, IssueID: id}] = status
			}
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return result
}

// queryProjectStatuses reads the status of ids from a foreign database.
func queryProjectStatuses(ctx context.Context, dbPath string, ids []string) (map[string]types.Status, error) {
	db, err := openReadOnly(dbPath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	placeholders, args := inClause(ids)
	// #nosec G201 - placeholders only
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`SELECT id, status FROM issues WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]types.Status, len(ids))
	for rows.Next() {
		var id string
		var status types.Status
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = status
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// A deadline hit mid-scan must not yield a partial answer.
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
