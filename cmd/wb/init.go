package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/config"
)

type initResult struct {
	Database      string `json:"database" yaml:"database"`
	Prefix        string `json:"prefix" yaml:"prefix"`
	ConfigWritten bool   `json:"config_written" yaml:"config_written"`
}

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Initialize wb in the current directory",
	Long: `Create .beads/ with a database and a commented config.yaml, and record
the issue prefix used for new IDs (e.g. --prefix wb gives wb-a3f8).

Running init again is safe: the prefix is updated and an existing
config.yaml is left alone.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		prefix, _ := cmd.Flags().GetString("prefix")
		prefix = strings.TrimSuffix(strings.TrimSpace(prefix), "-")
		if prefix == "" {
			cwd, err := os.Getwd()
			if err != nil {
				FatalError("failed to get working directory: %v", err)
			}
			prefix = defaultPrefix(filepath.Base(cwd))
		}
		if strings.ContainsAny(prefix, " :") {
			FatalError("invalid prefix %q: must not contain spaces or colons", prefix)
		}

		path := cmdCtx.DBPath
		if path == "" {
			path = filepath.Join(config.BeadsDirName, config.DefaultDBName)
		}
		openStore(path)

		ctx := rootContext()
		if err := getStore().SetConfig(ctx, "issue_prefix", prefix); err != nil {
			FatalError("failed to set issue prefix: %v", err)
		}

		wrote, err := config.WriteDefaultConfig(cmdCtx.BeadsDir, prefix)
		if err != nil {
			WarnError("failed to create config.yaml: %v", err)
		}

		res := initResult{Database: cmdCtx.DBPath, Prefix: prefix, ConfigWritten: wrote}
		emit(res, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "Initialized wb in %s (prefix %q)\n", cmdCtx.BeadsDir, prefix)
		})
	},
}

// defaultPrefix derives a prefix from a directory name: lowercase
// alphanumerics, at most eight characters.
func defaultPrefix(dir string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(dir) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
		if b.Len() == 8 {
			break
		}
	}
	if b.Len() == 0 {
		return "wb"
	}
	return b.String()
}

func init() {
	initCmd.Flags().StringP("prefix", "p", "", "Issue prefix (default: current directory name)")
	rootCmd.AddCommand(initCmd)
}
