package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/workbeads/wb/internal/config"
)

type configValue struct {
	Key    string `json:"key" yaml:"key"`
	Value  string `json:"value" yaml:"value"`
	Source string `json:"source" yaml:"source"`
}

var configCmd = &cobra.Command{
	Use:     "config",
	GroupID: "setup",
	Short:   "Read and write configuration",
	Long: `Read and write configuration.

Keys read before the database is opened (actor, db, json, color, lease.*,
sweep.*, external.*, external_projects.*) live in .beads/config.yaml.
Everything else, such as issue_prefix, is stored in the database.`,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print a configuration value and where it came from",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		var res configValue
		if config.IsYamlOnlyKey(key) {
			res = configValue{Key: key, Value: config.GetString(key), Source: string(config.GetValueSource(key))}
		} else {
			value, err := ensureStore().GetConfig(rootContext(), key)
			if err != nil {
				fatalErr(err)
			}
			res = configValue{Key: key, Value: value, Source: "database"}
		}
		emit(res, func(w io.Writer) {
			_, _ = fmt.Fprintln(w, res.Value)
		})
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key, value := args[0], args[1]
		source := "database"
		if config.IsYamlOnlyKey(key) {
			if err := config.SetYamlConfig(key, value); err != nil {
				FatalError("%v", err)
			}
			source = string(config.SourceConfigFile)
		} else if err := ensureStore().SetConfig(rootContext(), key, value); err != nil {
			fatalErr(err)
		}
		res := configValue{Key: key, Value: value, Source: source}
		emit(res, func(w io.Writer) {
			_, _ = fmt.Fprintf(w, "Set %s = %s (%s)\n", key, value, source)
		})
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List effective config.yaml settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		settings := config.AllSettings()
		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		emit(settings, func(w io.Writer) {
			if used := config.ConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(w, "# %s\n", used)
			}
			for _, k := range keys {
				_, _ = fmt.Fprintf(w, "%s = %v\n", k, settings[k])
			}
		})
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configListCmd)
	rootCmd.AddCommand(configCmd)
}
