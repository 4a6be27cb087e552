package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeProjectConfig creates dir/.beads/config.yaml with content and returns dir.
func writeProjectConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	beadsDir := filepath.Join(tmpDir, ".beads")
	if err := os.MkdirAll(beadsDir, 0750); err != nil {
		t.Fatalf("failed to create .beads directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(beadsDir, "config.yaml"), []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return tmpDir
}

func TestInitialize(t *testing.T) {
	err := Initialize()
	if err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	if v == nil {
		t.Fatal("viper instance is nil after Initialize()")
	}
	if ConfigFileUsed() != "" {
		t.Errorf("expected no config file outside a project, got %q", ConfigFileUsed())
	}
}

func TestDefaults(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	tests := []struct {
		key      string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"json", false, func(k string) interface{} { return GetBool(k) }},
		{"db", "", func(k string) interface{} { return GetString(k) }},
		{"actor", "", func(k string) interface{} { return GetString(k) }},
		{"color", "auto", func(k string) interface{} { return GetString(k) }},
		{"lease.ttl", 30 * time.Minute, func(k string) interface{} { return GetDuration(k) }},
		{"sweep.stale-after", 20 * time.Minute, func(k string) interface{} { return GetDuration(k) }},
		{"sweep.orphan-after", 40 * time.Minute, func(k string) interface{} { return GetDuration(k) }},
		{"sweep.interval", 60 * time.Second, func(k string) interface{} { return GetDuration(k) }},
		{"external.timeout", 2 * time.Second, func(k string) interface{} { return GetDuration(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) = %v, want %v", tt.key, got, tt.expected)
			}
		})
	}
}

func TestEnvironmentBinding(t *testing.T) {
	tests := []struct {
		envVar   string
		key      string
		value    string
		expected interface{}
		getter   func(string) interface{}
	}{
		{"WB_JSON", "json", "true", true, func(k string) interface{} { return GetBool(k) }},
		{"WB_ACTOR", "actor", "testuser", "testuser", func(k string) interface{} { return GetString(k) }},
		{"WB_DB", "db", "/tmp/test.db", "/tmp/test.db", func(k string) interface{} { return GetString(k) }},
		{"WB_LEASE_TTL", "lease.ttl", "5m", 5 * time.Minute, func(k string) interface{} { return GetDuration(k) }},
		{"WB_SWEEP_ORPHAN_AFTER", "sweep.orphan-after", "2h", 2 * time.Hour, func(k string) interface{} { return GetDuration(k) }},
	}

	for _, tt := range tests {
		t.Run(tt.envVar, func(t *testing.T) {
			t.Setenv(tt.envVar, tt.value)

			if err := Initialize(); err != nil {
				t.Fatalf("Initialize() returned error: %v", err)
			}

			got := tt.getter(tt.key)
			if got != tt.expected {
				t.Errorf("GetXXX(%q) with %s=%s = %v, want %v", tt.key, tt.envVar, tt.value, got, tt.expected)
			}
			if src := GetValueSource(tt.key); src != SourceEnvVar {
				t.Errorf("GetValueSource(%q) = %s, want %s", tt.key, src, SourceEnvVar)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := map[string]string{
		"json":               "WB_JSON",
		"lease.ttl":          "WB_LEASE_TTL",
		"sweep.orphan-after": "WB_SWEEP_ORPHAN_AFTER",
	}
	for key, want := range tests {
		if got := EnvKey(key); got != want {
			t.Errorf("EnvKey(%q) = %q, want %q", key, got, want)
		}
	}
}

func TestConfigFile(t *testing.T) {
	dir := writeProjectConfig(t, `
json: true
actor: configuser
lease.ttl: 15m
sweep:
  stale-after: 5m
`)
	t.Chdir(dir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	if got := GetBool("json"); got != true {
		t.Errorf("GetBool(json) = %v, want true", got)
	}
	if got := GetString("actor"); got != "configuser" {
		t.Errorf("GetString(actor) = %q, want \"configuser\"", got)
	}
	if got := StaleAfter(); got != 5*time.Minute {
		t.Errorf("StaleAfter() = %v, want 5m", got)
	}
	if got := GetValueSource("actor"); got != SourceConfigFile {
		t.Errorf("GetValueSource(actor) = %s, want %s", got, SourceConfigFile)
	}
	if got := GetValueSource("color"); got != SourceDefault {
		t.Errorf("GetValueSource(color) = %s, want %s", got, SourceDefault)
	}
}

func TestConfigFileFoundFromSubdirectory(t *testing.T) {
	dir := writeProjectConfig(t, "actor: nested\n")
	sub := filepath.Join(dir, "a", "b")
	if err := os.MkdirAll(sub, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("actor"); got != "nested" {
		t.Errorf("GetString(actor) = %q, want nested", got)
	}
	if got := FindBeadsDir(); filepath.Base(got) != BeadsDirName {
		t.Errorf("FindBeadsDir() = %q, want a .beads directory", got)
	}
}

func TestUserConfigFallback(t *testing.T) {
	t.Chdir(t.TempDir())

	configDir, err := os.UserConfigDir()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	wbDir := filepath.Join(configDir, "wb")
	if err := os.MkdirAll(wbDir, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	userConfig := filepath.Join(wbDir, "config.yaml")
	if err := os.WriteFile(userConfig, []byte("actor: from-home\n"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(userConfig) })

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetString("actor"); got != "from-home" {
		t.Errorf("GetString(actor) = %q, want from-home", got)
	}
}

func TestConfigPrecedence(t *testing.T) {
	t.Chdir(writeProjectConfig(t, `json: false`))

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetBool("json"); got != false {
		t.Errorf("GetBool(json) from config file = %v, want false", got)
	}

	// Environment variable overrides config file
	t.Setenv("WB_JSON", "true")

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := GetBool("json"); got != true {
		t.Errorf("GetBool(json) with env var = %v, want true (env should override config)", got)
	}

	// Explicit Set (used for flags) overrides both
	Set("json", false)
	if got := GetBool("json"); got != false {
		t.Errorf("GetBool(json) after Set = %v, want false", got)
	}
}

func TestDurationHelpersFallBack(t *testing.T) {
	t.Setenv("WB_LEASE_TTL", "garbage")
	t.Setenv("WB_SWEEP_INTERVAL", "-5s")

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}
	if got := LeaseTTL(); got != 30*time.Minute {
		t.Errorf("LeaseTTL() = %v, want 30m fallback", got)
	}
	if got := SweepInterval(); got != 60*time.Second {
		t.Errorf("SweepInterval() = %v, want 60s fallback", got)
	}
	if got := OrphanAfter(); got != 40*time.Minute {
		t.Errorf("OrphanAfter() = %v, want 40m", got)
	}
	if got := ExternalTimeout(); got != 2*time.Second {
		t.Errorf("ExternalTimeout() = %v, want 2s", got)
	}
}

func TestSetAndGet(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	Set("test-key", "test-value")
	if got := GetString("test-key"); got != "test-value" {
		t.Errorf("GetString(test-key) = %q, want \"test-value\"", got)
	}

	Set("test-int", 42)
	if got := GetInt("test-int"); got != 42 {
		t.Errorf("GetInt(test-int) = %d, want 42", got)
	}
	if !IsSet("test-int") {
		t.Error("IsSet(test-int) = false, want true")
	}
}

func TestAllSettings(t *testing.T) {
	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	Set("custom-key", "custom-value")

	settings := AllSettings()
	if settings == nil {
		t.Fatal("AllSettings() returned nil")
	}
	if settings["custom-key"] != "custom-value" {
		t.Errorf("AllSettings()[custom-key] = %v, want \"custom-value\"", settings["custom-key"])
	}
}

func TestGetExternalProjectsFromFile(t *testing.T) {
	dir := writeProjectConfig(t, `
external_projects:
  infra: ../infra
  platform: /nonexistent/platform
`)
	if err := os.MkdirAll(filepath.Join(filepath.Dir(dir), "infra"), 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// Run from a subdirectory: relative paths are anchored at the project root.
	sub := filepath.Join(dir, "src")
	if err := os.MkdirAll(sub, 0750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() returned error: %v", err)
	}

	projects := GetExternalProjects()
	if len(projects) != 2 {
		t.Fatalf("GetExternalProjects() = %v, want 2 entries", projects)
	}

	wantInfra := filepath.Join(dir, "..", "infra")
	if got := ResolveExternalProjectPath("infra"); got != filepath.Clean(wantInfra) {
		t.Errorf("ResolveExternalProjectPath(infra) = %q, want %q", got, filepath.Clean(wantInfra))
	}
	if got := ResolveExternalProjectPath("platform"); got != "" {
		t.Errorf("ResolveExternalProjectPath(platform) = %q, want empty for missing path", got)
	}
	if got := ResolveExternalProjectPath("unknown"); got != "" {
		t.Errorf("ResolveExternalProjectPath(unknown) = %q, want empty", got)
	}

	resolved := ResolvedExternalProjects()
	if len(resolved) != 1 || resolved["infra"] == "" {
		t.Errorf("ResolvedExternalProjects() = %v, want only infra", resolved)
	}
}

func TestFindBeadsDirNone(t *testing.T) {
	t.Chdir(t.TempDir())
	if got := FindBeadsDir(); got != "" {
		t.Errorf("FindBeadsDir() = %q, want empty", got)
	}
}

func TestNilViperBehavior(t *testing.T) {
	savedV := v
	ResetForTesting()
	defer func() { v = savedV }()

	// All getters should return zero values without panicking
	if got := GetString("any-key"); got != "" {
		t.Errorf("GetString with nil viper = %q, want \"\"", got)
	}
	if got := GetBool("any-key"); got != false {
		t.Errorf("GetBool with nil viper = %v, want false", got)
	}
	if got := GetInt("any-key"); got != 0 {
		t.Errorf("GetInt with nil viper = %d, want 0", got)
	}
	if got := GetDuration("any-key"); got != 0 {
		t.Errorf("GetDuration with nil viper = %v, want 0", got)
	}
	if got := AllSettings(); got == nil || len(got) != 0 {
		t.Errorf("AllSettings with nil viper = %v, want empty map", got)
	}
	if got := GetExternalProjects(); got == nil || len(got) != 0 {
		t.Errorf("GetExternalProjects with nil viper = %v, want empty map", got)
	}
	if got := LeaseTTL(); got != 30*time.Minute {
		t.Errorf("LeaseTTL with nil viper = %v, want default", got)
	}
	if IsSet("json") {
		t.Error("IsSet with nil viper = true, want false")
	}
	if got := GetValueSource("json"); got != SourceDefault {
		t.Errorf("GetValueSource with nil viper = %s, want default", got)
	}

	// Set should not panic
	Set("any-key", "any-value")
}
