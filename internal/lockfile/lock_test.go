package lockfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestReadLockInfo(t *testing.T) {
	tmpDir := t.TempDir()
	lockPath := filepath.Join(tmpDir, SweeperLockName)

	t.Run("JSON format", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte(`{"pid":12345,"database":"/path/to/db"}`), 0644); err != nil {
			t.Fatalf("failed to write lock file: %v", err)
		}
		result, err := ReadLockInfo(lockPath)
		if err != nil {
			t.Fatalf("ReadLockInfo failed: %v", err)
		}
		if result.PID != 12345 {
			t.Errorf("PID mismatch: got %d, want %d", result.PID, 12345)
		}
		if result.Database != "/path/to/db" {
			t.Errorf("Database mismatch: got %s", result.Database)
		}
	})

	t.Run("plain PID", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte("98765\n"), 0644); err != nil {
			t.Fatalf("failed to write lock file: %v", err)
		}
		result, err := ReadLockInfo(lockPath)
		if err != nil {
			t.Fatalf("ReadLockInfo failed: %v", err)
		}
		if result.PID != 98765 {
			t.Errorf("PID mismatch: got %d, want %d", result.PID, 98765)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		if _, err := ReadLockInfo(filepath.Join(tmpDir, "nonexistent")); err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("invalid format", func(t *testing.T) {
		if err := os.WriteFile(lockPath, []byte("invalid json"), 0644); err != nil {
			t.Fatalf("failed to write lock file: %v", err)
		}
		if _, err := ReadLockInfo(lockPath); err == nil {
			t.Error("expected error for invalid format")
		}
	})
}

func TestTryAcquire(t *testing.T) {
	beadsDir := filepath.Join(t.TempDir(), ".beads")

	first := New(beadsDir, SweeperLockName, "/db")
	if err := first.TryAcquire(); err != nil {
		t.Fatalf("first TryAcquire failed: %v", err)
	}
	defer func() { _ = first.Release() }()

	if !first.Locked() {
		t.Fatal("expected first lock to be held")
	}

	info, err := ReadLockInfo(first.Path())
	if err != nil {
		t.Fatalf("ReadLockInfo failed: %v", err)
	}
	if info.PID != os.Getpid() || info.Database != "/db" {
		t.Errorf("unexpected lock info: %+v", info)
	}

	// flock is per open file description, so a second handle in the same
	// process contends just like another process would.
	second := New(beadsDir, SweeperLockName, "/db")
	err = second.TryAcquire()
	if !errors.Is(err, ErrLockBusy) {
		t.Fatalf("expected ErrLockBusy, got %v", err)
	}
	if !strings.Contains(err.Error(), "running") {
		t.Errorf("expected holder state in error, got %q", err.Error())
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("second Release should be a no-op, got %v", err)
	}

	if err := second.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire after release failed: %v", err)
	}
	_ = second.Release()
}

func TestWait(t *testing.T) {
	beadsDir := t.TempDir()

	holder := New(beadsDir, SweeperLockName, "")
	if err := holder.TryAcquire(); err != nil {
		t.Fatalf("TryAcquire failed: %v", err)
	}

	t.Run("times out while held", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
		waiter := New(beadsDir, SweeperLockName, "")
		if err := waiter.Wait(ctx); !errors.Is(err, ErrLockBusy) {
			t.Fatalf("expected ErrLockBusy, got %v", err)
		}
	})

	t.Run("acquires after release", func(t *testing.T) {
		go func() {
			time.Sleep(150 * time.Millisecond)
			_ = holder.Release()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		waiter := New(beadsDir, SweeperLockName, "")
		if err := waiter.Wait(ctx); err != nil {
			t.Fatalf("Wait failed: %v", err)
		}
		_ = waiter.Release()
	})
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process should be running")
	}
	if isProcessRunning(0) {
		t.Error("pid 0 should not be reported as running")
	}
}
