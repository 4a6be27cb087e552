package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/workbeads/wb/internal/types"
)

// testEpoch is the fixed start time of every test clock.
var testEpoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by a store and its test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// newTestStore creates a file-backed SQLiteStorage in t.TempDir() with
// issue_prefix "wb" configured and a clock pinned at testEpoch.
//
// File-based databases are used instead of :memory: because the pool opens
// several connections and each would otherwise see its own empty database.
func newTestStore(t *testing.T) (*SQLiteStorage, *testClock) {
	t.Helper()
	return newTestStoreAt(t, t.TempDir()+"/test.db", "wb")
}

func newTestStoreAt(t *testing.T, dbPath, prefix string) (*SQLiteStorage, *testClock) {
	t.Helper()

	clock := &testClock{now: testEpoch}
	ctx := context.Background()
	store, err := New(ctx, dbPath, WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Failed to close test database: %v", cerr)
		}
	})

	if err := store.SetConfig(ctx, "issue_prefix", prefix); err != nil {
		t.Fatalf("Failed to set issue_prefix: %v", err)
	}
	return store, clock
}

// mustCreate creates an open task with the given title and priority.
func mustCreate(t *testing.T, store *SQLiteStorage, title string, priority int) *types.Issue {
	t.Helper()
	issue := &types.Issue{
		Title:     title,
		Status:    types.StatusOpen,
		Priority:  priority,
		IssueType: types.TypeTask,
	}
	if err := store.CreateIssue(context.Background(), issue, "test-actor"); err != nil {
		t.Fatalf("CreateIssue(%q) failed: %v", title, err)
	}
	return issue
}
