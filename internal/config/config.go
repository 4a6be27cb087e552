// Package config holds the viper-backed configuration singleton.
//
// Precedence, highest first: command-line flags (applied by cmd/wb),
// WB_* environment variables, the discovered config.yaml, defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/workbeads/wb/internal/debug"
	"github.com/workbeads/wb/internal/lease"
)

// EnvPrefix is prepended to every environment variable binding.
const EnvPrefix = "WB"

// BeadsDirName is the per-project state directory.
const BeadsDirName = ".beads"

// DefaultDBName is the database file inside BeadsDirName.
const DefaultDBName = "beads.db"

var v *viper.Viper

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .beads/config.yaml > ~/.config/wb/config.yaml
	configFileSet := false

	if path, err := findProjectConfigYaml(); err == nil {
		v.SetConfigFile(path)
		configFileSet = true
	}

	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "wb", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// WB_JSON, WB_ACTOR, WB_DB, WB_LEASE_TTL, WB_SWEEP_STALE_AFTER, ...
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("json", false)
	v.SetDefault("db", "")
	v.SetDefault("actor", "")
	v.SetDefault("issue-prefix", "")
	v.SetDefault("color", "auto")

	v.SetDefault("lease.ttl", lease.DefaultTTL.String())
	v.SetDefault("sweep.stale-after", lease.DefaultStaleAfter.String())
	v.SetDefault("sweep.orphan-after", lease.DefaultOrphanAfter.String())
	v.SetDefault("sweep.interval", lease.DefaultSweepInterval.String())
	v.SetDefault("sweep.log-file", "")

	// Maps project names to paths for resolving external:<project>:<id> blockers.
	v.SetDefault("external_projects", map[string]string{})
	v.SetDefault("external.timeout", "2s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("Debug: loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("Debug: no config.yaml found; using defaults and environment variables")
	}

	return nil
}

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault    ConfigSource = "default"
	SourceConfigFile ConfigSource = "config_file"
	SourceEnvVar     ConfigSource = "env_var"
	SourceFlag       ConfigSource = "flag"
)

// EnvKey returns the environment variable bound to key.
func EnvKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
}

// GetValueSource returns the source of a configuration value.
// Flags are not visible here; cmd/wb tracks those itself.
func GetValueSource(key string) ConfigSource {
	if v == nil {
		return SourceDefault
	}
	if os.Getenv(EnvKey(key)) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}

// ConfigFileUsed returns the loaded config.yaml path, or "".
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// IsSet reports whether key has any value, including a default.
func IsSet(key string) bool {
	return v != nil && v.IsSet(key)
}

// Set sets a configuration value
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// GetStringMapString retrieves a map[string]string configuration value
func GetStringMapString(key string) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	return v.GetStringMapString(key)
}

// durationOr returns the configured duration for key, or fallback when the
// key is unset or does not parse to a positive value.
func durationOr(key string, fallback time.Duration) time.Duration {
	if d := GetDuration(key); d > 0 {
		return d
	}
	return fallback
}

// LeaseTTL is the default lease duration for wb claim.
func LeaseTTL() time.Duration { return durationOr("lease.ttl", lease.DefaultTTL) }

// StaleAfter is the heartbeat silence after which a lease is flagged.
func StaleAfter() time.Duration { return durationOr("sweep.stale-after", lease.DefaultStaleAfter) }

// OrphanAfter is the heartbeat silence after which a lease is reclaimed.
func OrphanAfter() time.Duration { return durationOr("sweep.orphan-after", lease.DefaultOrphanAfter) }

// SweepInterval is the daemon sweep period.
func SweepInterval() time.Duration {
	return durationOr("sweep.interval", lease.DefaultSweepInterval)
}

// ExternalTimeout bounds each external project lookup.
func ExternalTimeout() time.Duration { return durationOr("external.timeout", 2*time.Second) }

// GetExternalProjects returns the external_projects configuration.
// Maps project names to paths for cross-project dependency resolution.
// Example config.yaml:
//
//	external_projects:
//	  infra: ../infra
//	  platform: /absolute/path/to/platform
func GetExternalProjects() map[string]string {
	return GetStringMapString("external_projects")
}

// ResolveExternalProjectPath resolves a project name to its absolute path.
// Relative paths are taken from the directory holding .beads/, falling back
// to the working directory. Returns "" if the project is not configured or
// the path does not exist.
func ResolveExternalProjectPath(projectName string) string {
	path, ok := GetExternalProjects()[projectName]
	if !ok || path == "" {
		return ""
	}

	if !filepath.IsAbs(path) {
		base := projectRoot()
		if base == "" {
			return ""
		}
		path = filepath.Join(base, path)
	}

	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// ResolvedExternalProjects resolves every configured project, dropping the
// ones whose path cannot be found.
func ResolvedExternalProjects() map[string]string {
	out := make(map[string]string)
	for name := range GetExternalProjects() {
		if path := ResolveExternalProjectPath(name); path != "" {
			out[name] = path
		} else {
			debug.Logf("external project %q: path not found", name)
		}
	}
	return out
}

// projectRoot is the directory containing the loaded project config's
// .beads directory, or the working directory.
func projectRoot() string {
	if used := ConfigFileUsed(); used != "" && filepath.Base(filepath.Dir(used)) == BeadsDirName {
		return filepath.Dir(filepath.Dir(used))
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

// FindBeadsDir walks up from the working directory to the nearest .beads
// directory. Returns "" when there is none.
func FindBeadsDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, BeadsDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if dir == filepath.Dir(dir) {
			return ""
		}
	}
}

// ResetForTesting clears the singleton so tests start from nil-viper behavior.
func ResetForTesting() {
	v = nil
}
