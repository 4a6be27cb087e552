package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/config"
	"github.com/workbeads/wb/internal/debug"
	"github.com/workbeads/wb/internal/storage"
	"github.com/workbeads/wb/internal/storage/sqlite"
	"github.com/workbeads/wb/internal/telemetry"
	"github.com/workbeads/wb/internal/ui"
	"github.com/workbeads/wb/internal/utils"
)

// setupSignalContext cancels the root context on SIGINT or SIGTERM.
func setupSignalContext() {
	cmdCtx.RootCtx, cmdCtx.RootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// applyViperOverrides fills every flag the user did not pass from config
// (WB_* env or config.yaml). Explicit flags win.
func applyViperOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()

	if !flags.Changed("db") {
		dbPath = config.GetString("db")
	}
	if !flags.Changed("actor") {
		actor = config.GetString("actor")
	}
	if !flags.Changed("color") {
		colorFlag = config.GetString("color")
	}
	if !flags.Changed("json") {
		jsonOutput = config.GetBool("json")
	}

	format, err := parseOutputFormat(formatFlag, jsonOutput)
	if err != nil {
		FatalError("%v", err)
	}
	cmdCtx.Format = format
	cmdCtx.DBPath = dbPath
}

func applyVerbosityFlags() {
	cmdCtx.Verbose = verboseFlag
	cmdCtx.Quiet = quietFlag
	debug.SetVerbose(verboseFlag)
	debug.SetQuiet(quietFlag)
	debug.SetLogger(debug.NewLogger(os.Stderr))
}

func applyColorMode() {
	// Machine-readable output never carries escape codes.
	mode := colorFlag
	if getFormat() != formatText {
		mode = ui.ColorNever
	}
	if err := ui.ApplyColorMode(mode); err != nil {
		FatalError("%v", err)
	}
}

// setupActor resolves the actor for audit trails.
// Priority: --actor flag > WB_ACTOR env / config actor > git config user.name > $USER > "unknown"
func setupActor() {
	cmdCtx.Actor = resolveActor(actor, gitUserName)
}

func resolveActor(configured string, gitUser func() string) string {
	if configured != "" {
		return configured
	}
	if u := gitUser(); u != "" {
		return u
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "unknown"
}

func gitUserName() string {
	out, err := exec.Command("git", "config", "user.name").Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func initTelemetry() {
	if err := telemetry.Init(rootContext(), "wb", Version); err != nil {
		WarnError("telemetry disabled: %v", err)
	}
}

// discoverDatabasePath returns the database for this command: --db/config
// first, then the nearest .beads directory.
func discoverDatabasePath() string {
	if cmdCtx.DBPath != "" {
		return cmdCtx.DBPath
	}
	beadsDir := config.FindBeadsDir()
	if beadsDir == "" {
		FatalErrorWithHint("no .beads directory found", "Run 'wb init --prefix <prefix>' to create one, or pass --db")
	}
	return config.LoadLocalConfig(beadsDir).DatabasePath(beadsDir)
}

// openStore opens the SQLite store and wraps it for telemetry.
func openStore(path string) {
	if _, err := os.Stat(path); err != nil && cmdCtx.DBPath == "" {
		FatalErrorWithHint(fmt.Sprintf("database %s not found", path), "Run 'wb init --prefix <prefix>' first")
	}
	s, err := sqlite.New(rootContext(), path)
	if err != nil {
		FatalError("failed to open database: %v", err)
	}
	cmdCtx.DBPath = s.Path()
	cmdCtx.BeadsDir = filepath.Dir(s.Path())
	cmdCtx.Store = telemetry.WrapStorage(s)
	cmdCtx.LastTouched = NewLastTouched(cmdCtx.BeadsDir)
	debug.Logf("Debug: using database %s (actor %s)", s.Path(), getActor())
}

// ensureStore opens the store for commands in noDbCommands that need it
// only on some paths.
func ensureStore() storage.Storage {
	if s := getStore(); s != nil {
		return s
	}
	openStore(discoverDatabasePath())
	return getStore()
}

// newIDResolver builds the identifier resolver over the open store.
func newIDResolver(ctx context.Context, s storage.Storage) *utils.IDResolver {
	prefix, err := s.GetConfig(ctx, "issue_prefix")
	if err != nil {
		debug.Logf("Debug: reading issue_prefix: %v", err)
	}
	return utils.NewIDResolver(prefix, s.IDExists, s.FindIDsByHash)
}

// resolveIssueIDs resolves every token or exits with the resolver's error.
func resolveIssueIDs(ctx context.Context, s storage.Storage, tokens []string) []string {
	ids, err := newIDResolver(ctx, s).ResolveAll(ctx, tokens)
	if err != nil {
		fatalErr(err)
	}
	return ids
}
