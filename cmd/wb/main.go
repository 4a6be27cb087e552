package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/config"
	"github.com/workbeads/wb/internal/telemetry"
)

// Version is overridden at build time with -ldflags.
var Version = "0.1.0-dev"

var (
	dbPath       string
	actor        string
	jsonOutput   bool
	formatFlag   string
	verboseFlag  bool // Enable verbose/debug output
	quietFlag    bool // Suppress non-essential output
	colorFlag    string
	showVersionF bool
)

// noDbCommands can run without an initialized store.
var noDbCommands = map[string]bool{
	"init":       true,
	"config":     true,
	"get":        true,
	"set":        true,
	"help":       true,
	"version":    true,
	"completion": true,
}

func isNoDbCommand(cmd *cobra.Command) bool {
	if noDbCommands[cmd.Name()] {
		return true
	}
	// Subcommands of `config` open the store on demand.
	return cmd.Parent() != nil && cmd.Parent().Name() == "config"
}

func init() {
	// Initialize viper configuration
	if err := config.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .beads/beads.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for audit trail and lease ownership (default: $WB_ACTOR, git user.name, $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format (same as --format json)")
	rootCmd.PersistentFlags().StringVar(&formatFlag, "format", "", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().StringVar(&colorFlag, "color", "", "Color output: auto, always or never")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Suppress non-essential output (errors only)")

	rootCmd.Flags().BoolVarP(&showVersionF, "version", "V", false, "Print version information")

	rootCmd.AddGroup(&cobra.Group{ID: "issues", Title: "Working With Issues:"})
	rootCmd.AddGroup(&cobra.Group{ID: "leases", Title: "Claiming Work:"})
	rootCmd.AddGroup(&cobra.Group{ID: "views", Title: "Views:"})
	rootCmd.AddGroup(&cobra.Group{ID: "setup", Title: "Setup & Configuration:"})
}

var rootCmd = &cobra.Command{
	Use:   "wb",
	Short: "wb - lease-based work claiming over a dependency-aware issue graph",
	Long: `wb lets many agents pull ready work from one issue graph without
stepping on each other. Work is claimed with a time-bounded lease that must be
renewed by heartbeat; abandoned leases are reclaimed by 'wb lease-sweep'.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersionF {
			fmt.Printf("wb version %s\n", Version)
			return
		}
		_ = cmd.Help() // Help() always returns nil for cobra commands
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// --- Phase 1: Universal setup ---
		initCommandContext()
		setupSignalContext()
		applyViperOverrides(cmd)
		applyVerbosityFlags()
		applyColorMode()
		setupActor()
		initTelemetry()

		// --- Phase 2: Early exit for commands that don't need a database ---
		if isNoDbCommand(cmd) {
			return
		}

		// --- Phase 3: Database discovery and store ---
		openStore(discoverDatabasePath())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		teardown()
	},
}

// teardown closes the store and flushes telemetry. Safe to call twice.
func teardown() {
	if cmdCtx == nil {
		return
	}
	if s := getStore(); s != nil {
		_ = s.Close()
		cmdCtx.Store = nil
	}
	telemetry.Shutdown(context.Background())
	if cmdCtx.RootCancel != nil {
		cmdCtx.RootCancel()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
