package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("QUIP_CATALOG", "")
	t.Setenv("QUIP_DB", "")
	t.Setenv("QUIP_LOG_LEVEL", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "quip.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	t.Setenv("QUIP_CATALOG", "")
	t.Setenv("QUIP_DB", "")
	t.Setenv("QUIP_LOG_LEVEL", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "quip.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
catalog: rules
database: /var/lib/quip.db
engine:
  workers: 4
  diagnostics: true
  keep_facts_on_reload: true
match:
  check_all_rules: true
logging:
  level: debug
  format: json
metrics:
  enabled: true
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "rules"), cfg.Catalog)
	assert.Equal(t, "/var/lib/quip.db", cfg.Database)
	assert.Equal(t, EngineConfig{Workers: 4, Diagnostics: true, KeepFactsOnReload: true}, cfg.Engine)
	assert.True(t, cfg.Match.CheckAllRules)
	assert.False(t, cfg.Match.CountAllFactMatches)
	assert.Equal(t, LoggingConfig{Level: "debug", Format: "json"}, cfg.Logging)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quip.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  diagnostics: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Engine.Workers)
	assert.True(t, cfg.Engine.Diagnostics)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoad_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quip.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  wrokers: 2\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrokers")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("QUIP_CATALOG", "/env/rules")
	t.Setenv("QUIP_DB", "/env/quip.db")
	t.Setenv("QUIP_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "/env/rules", cfg.Catalog)
	assert.Equal(t, "/env/quip.db", cfg.Database)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestDecode_Empty(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, Decode(strings.NewReader(""), cfg))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("QUIP_CATALOG", "")
	t.Setenv("QUIP_DB", "")
	t.Setenv("QUIP_LOG_LEVEL", "")

	path := filepath.Join(t.TempDir(), "nested", "quip.yaml")
	want := DefaultConfig()
	want.Catalog = "/abs/rules"
	want.Engine.Workers = 3
	want.Match.CountAllFactMatches = true

	require.NoError(t, want.Save(path))
	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"negative workers", func(c *Config) { c.Engine.Workers = -1 }, "workers"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "invalid logging level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "invalid logging format"},
		{"upper case level", func(c *Config) { c.Logging.Level = "DEBUG" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLogger(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging = LoggingConfig{Level: "warn", Format: "json"}

	var buf bytes.Buffer
	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "k", 1)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":1`)
}

func TestEngineOptions(t *testing.T) {
	cfg := DefaultConfig()
	assert.Len(t, cfg.EngineOptions(nil, nil), 4)

	cfg.Metrics.Enabled = true
	assert.Len(t, cfg.EngineOptions(nil, nil), 5)
}
