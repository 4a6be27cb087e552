package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig represents the subset of config.yaml fields that need to be read
// directly from the file rather than through the viper singleton, e.g. when
// inspecting another project's .beads directory.
type LocalConfig struct {
	IssuePrefix string `yaml:"issue-prefix"`
	Actor       string `yaml:"actor"`
	DB          string `yaml:"db"`
}

// LoadLocalConfig reads and parses config.yaml directly from the specified beads directory.
// Returns an empty LocalConfig (not nil) if the file doesn't exist or can't be parsed.
func LoadLocalConfig(beadsDir string) *LocalConfig {
	configPath := filepath.Join(beadsDir, "config.yaml")
	data, err := os.ReadFile(configPath) // #nosec G304 - config file path from beadsDir
	if err != nil {
		return &LocalConfig{}
	}

	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}

	return &cfg
}

// LoadLocalConfigWithEnv reads config.yaml and applies WB_* environment
// variable overrides.
func LoadLocalConfigWithEnv(beadsDir string) *LocalConfig {
	cfg := LoadLocalConfig(beadsDir)

	if prefix := os.Getenv(EnvKey("issue-prefix")); prefix != "" {
		cfg.IssuePrefix = prefix
	}
	if actor := os.Getenv(EnvKey("actor")); actor != "" {
		cfg.Actor = actor
	}
	if db := os.Getenv(EnvKey("db")); db != "" {
		cfg.DB = db
	}

	return cfg
}

// DatabasePath returns the database a beads directory points at: the
// configured db (relative to beadsDir when not absolute) or beads.db.
func (c *LocalConfig) DatabasePath(beadsDir string) string {
	if c.DB == "" {
		return filepath.Join(beadsDir, DefaultDBName)
	}
	if filepath.IsAbs(c.DB) {
		return c.DB
	}
	return filepath.Join(beadsDir, c.DB)
}
