package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/workbeads/wb/internal/debug"
)

const lastTouchedFile = "last-touched"

// LastTouched remembers the most recently claimed or created issue so that
// `wb claim` with no arguments can act on it. A zero LastTouched (no beads
// directory) reads as empty and ignores writes.
type LastTouched struct {
	path string
}

// NewLastTouched tracks beadsDir/last-touched.
func NewLastTouched(beadsDir string) *LastTouched {
	if beadsDir == "" {
		return &LastTouched{}
	}
	return &LastTouched{path: filepath.Join(beadsDir, lastTouchedFile)}
}

// Get returns the last touched issue ID, or "" if none is recorded.
func (l *LastTouched) Get() string {
	if l.path == "" {
		return ""
	}
	data, err := os.ReadFile(l.path) // #nosec G304 - path is under .beads
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Set records id. The file is replaced atomically so concurrent readers
// never see a partial ID.
func (l *LastTouched) Set(id string) error {
	if l.path == "" || id == "" {
		return nil
	}
	if err := atomic.WriteFile(l.path, strings.NewReader(id+"\n")); err != nil {
		return err
	}
	debug.Logf("Debug: last touched %s", id)
	return nil
}

// Clear forgets the recorded ID.
func (l *LastTouched) Clear() error {
	if l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// touch records id, warning instead of failing.
func touch(id string) {
	if err := lastTouched().Set(id); err != nil {
		WarnError("failed to record last-touched issue: %v", err)
	}
}

// forgetTouched clears the record when it names id, so a bare `wb claim`
// does not fall back to an issue that can no longer be claimed.
func forgetTouched(id string) {
	lt := lastTouched()
	if lt.Get() != id {
		return
	}
	if err := lt.Clear(); err != nil {
		WarnError("failed to clear last-touched issue: %v", err)
	}
}
