package main

import (
	"context"
	"log/slog"

	"github.com/workbeads/wb/internal/debug"
	"github.com/workbeads/wb/internal/storage"
)

// CommandContext holds all runtime state for one command execution.
// Flag-bound globals are copied in once by PersistentPreRun; commands read
// state from here.
type CommandContext struct {
	// Configuration (derived from flags and config)
	DBPath   string
	BeadsDir string
	Actor    string
	Format   outputFormat
	Verbose  bool
	Quiet    bool

	// Runtime state
	Store       storage.Storage
	LastTouched *LastTouched
	RootCtx     context.Context
	RootCancel  context.CancelFunc
}

// cmdCtx is the CommandContext for the running command.
var cmdCtx *CommandContext

// initCommandContext creates a fresh CommandContext.
// Called from PersistentPreRun to set up runtime state.
func initCommandContext() {
	cmdCtx = &CommandContext{Format: formatText}
}

// resetCommandContext clears the CommandContext for testing.
func resetCommandContext() {
	cmdCtx = nil
}

// getStore returns the open store, or nil for no-db commands.
func getStore() storage.Storage {
	if cmdCtx == nil {
		return nil
	}
	return cmdCtx.Store
}

// getActor returns the actor recorded on events and used as lease owner.
func getActor() string {
	if cmdCtx == nil || cmdCtx.Actor == "" {
		return actor
	}
	return cmdCtx.Actor
}

// getFormat returns the selected output format.
func getFormat() outputFormat {
	if cmdCtx == nil {
		return formatText
	}
	return cmdCtx.Format
}

// isJSONOutput reports whether machine-readable JSON was requested.
func isJSONOutput() bool {
	return getFormat() == formatJSON
}

// rootContext returns the signal-aware context for store calls.
func rootContext() context.Context {
	if cmdCtx == nil || cmdCtx.RootCtx == nil {
		return context.Background()
	}
	return cmdCtx.RootCtx
}

// logger returns the process logger configured by the verbosity flags.
func logger() *slog.Logger {
	return debug.Logger()
}

// lastTouched returns the last-touched tracker for the current project.
// Without a beads directory it is a no-op tracker.
func lastTouched() *LastTouched {
	if cmdCtx == nil || cmdCtx.LastTouched == nil {
		return &LastTouched{}
	}
	return cmdCtx.LastTouched
}
