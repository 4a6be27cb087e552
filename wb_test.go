package wb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestOpenClaimAndReady(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, filepath.Join(t.TempDir(), ".beads", "beads.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = s.Close() }()

	if err := s.SetConfig(ctx, "issue_prefix", "wb"); err != nil {
		t.Fatalf("SetConfig failed: %v", err)
	}
	issue := &Issue{Title: "public api", Priority: 1}
	if err := s.CreateIssue(ctx, issue, "tester"); err != nil {
		t.Fatalf("CreateIssue failed: %v", err)
	}

	sched := NewScheduler(s, nil, nil)
	readyIssues, err := sched.GetReady(ctx, WorkFilter{SortPolicy: SortPriority})
	if err != nil {
		t.Fatalf("GetReady failed: %v", err)
	}
	if len(readyIssues) != 1 || readyIssues[0].ID != issue.ID {
		t.Fatalf("expected %s ready, got %v", issue.ID, readyIssues)
	}

	res, err := Claim(ctx, s, issue.ID, "alice", time.Minute)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if res.LeaseOwner != "alice" {
		t.Errorf("LeaseOwner = %q, want alice", res.LeaseOwner)
	}

	if _, err := Claim(ctx, s, issue.ID, "bob", time.Minute); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second claim: expected ErrAlreadyClaimed, got %v", err)
	}
	if _, err := Claim(ctx, s, issue.ID, "bob", 0); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("zero ttl: expected ErrInvalidArgument, got %v", err)
	}

	readyIssues, err = sched.GetReady(ctx, WorkFilter{})
	if err != nil {
		t.Fatalf("GetReady failed: %v", err)
	}
	if len(readyIssues) != 0 {
		t.Errorf("claimed issue should not be ready, got %d", len(readyIssues))
	}
}

func TestNewSweeperValidates(t *testing.T) {
	if _, err := NewSweeper(nil, SweepOptions{StaleAfter: time.Hour, OrphanAfter: time.Minute}, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestFindDatabasePath(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if got := FindDatabasePath(); got != "" {
		t.Errorf("FindDatabasePath() outside a project = %q, want empty", got)
	}

	if err := os.MkdirAll(filepath.Join(dir, ".beads"), 0o750); err != nil {
		t.Fatal(err)
	}
	got := FindDatabasePath()
	if filepath.Base(got) != "beads.db" || filepath.Base(filepath.Dir(got)) != ".beads" {
		t.Errorf("FindDatabasePath() = %q, want .../.beads/beads.db", got)
	}
}
