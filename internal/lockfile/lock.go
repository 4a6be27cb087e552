// Package lockfile guards single-instance processes, such as the lease
// sweeper daemon, with an advisory file lock under .beads/.
package lockfile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/workbeads/wb/internal/debug"
)

// SweeperLockName is the lock file held by a running lease sweeper.
const SweeperLockName = "sweeper.lock"

// pollInterval is how often Wait retries a busy lock.
const pollInterval = 100 * time.Millisecond

// ErrLockBusy is returned when another process holds the lock.
var ErrLockBusy = errors.New("lock already held by another process")

// LockInfo is written into the lock file by its holder.
type LockInfo struct {
	PID       int       `json:"pid"`
	Database  string    `json:"database"`
	StartedAt time.Time `json:"started_at"`
}

// Lock is an exclusive advisory lock on a file in a beads directory.
type Lock struct {
	flock *flock.Flock
	info  LockInfo
}

// New returns an unacquired lock on beadsDir/name.
func New(beadsDir, name, database string) *Lock {
	return &Lock{
		flock: flock.New(filepath.Join(beadsDir, name)),
		info:  LockInfo{PID: os.Getpid(), Database: database},
	}
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.flock.Path()
}

// TryAcquire takes the lock without blocking. When another process holds
// it the error wraps ErrLockBusy and names the holder's PID when known.
func (l *Lock) TryAcquire() error {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0o750); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	locked, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire %s: %w", l.Path(), err)
	}
	if !locked {
		return l.busyError()
	}
	return l.writeInfo()
}

// Wait polls until the lock is acquired or ctx is done.
func (l *Lock) Wait(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0o750); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}
	start := time.Now()
	locked, err := l.flock.TryLockContext(ctx, pollInterval)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: gave up after %v", l.busyError(), time.Since(start).Round(time.Millisecond))
		}
		return fmt.Errorf("failed to acquire %s: %w", l.Path(), err)
	}
	if !locked {
		return l.busyError()
	}
	debug.Logf("acquired %s after %v", l.Path(), time.Since(start))
	return l.writeInfo()
}

// Locked reports whether this process holds the lock.
func (l *Lock) Locked() bool {
	return l.flock.Locked()
}

// Release drops the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if !l.flock.Locked() {
		return nil
	}
	debug.Logf("releasing %s", l.Path())
	return l.flock.Unlock()
}

func (l *Lock) writeInfo() error {
	l.info.StartedAt = time.Now().UTC()
	data, err := json.Marshal(l.info)
	if err != nil {
		return err
	}
	// The flock is tied to our descriptor; rewriting the content through a
	// second one leaves it in place.
	if err := os.WriteFile(l.Path(), data, 0o600); err != nil {
		_ = l.flock.Unlock()
		return fmt.Errorf("failed to write lock info: %w", err)
	}
	debug.Logf("acquired %s (pid %d)", l.Path(), l.info.PID)
	return nil
}

func (l *Lock) busyError() error {
	info, err := ReadLockInfo(l.Path())
	if err != nil || info.PID <= 0 {
		return fmt.Errorf("%w: %s", ErrLockBusy, l.Path())
	}
	state := "running"
	if !isProcessRunning(info.PID) {
		state = "not responding"
	}
	return fmt.Errorf("%w: %s is held by pid %d (%s)", ErrLockBusy, l.Path(), info.PID, state)
}

// ReadLockInfo parses a lock file. A bare PID is accepted as well as JSON.
func ReadLockInfo(path string) (*LockInfo, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is under .beads
	if err != nil {
		return nil, err
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err == nil {
		return &info, nil
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid lock file format: %w", err)
	}
	return &LockInfo{PID: pid}, nil
}
