package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/workbeads/wb/internal/storage/sqlite"
	"github.com/workbeads/wb/internal/types"
)

// newTestStore opens a fresh initialized store in a temp directory.
func newTestStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.New(ctx, filepath.Join(t.TempDir(), ".beads", "beads.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.SetConfig(ctx, "issue_prefix", "wb"); err != nil {
		t.Fatalf("failed to set prefix: %v", err)
	}
	return s
}

func createIssue(t *testing.T, s *sqlite.SQLiteStorage, title string) *types.Issue {
	t.Helper()
	issue := &types.Issue{Title: title, Priority: 2}
	if err := s.CreateIssue(context.Background(), issue, "tester"); err != nil {
		t.Fatalf("CreateIssue(%q) failed: %v", title, err)
	}
	return issue
}
