// Package config loads quip's YAML configuration file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/quip/internal/engine"
	"github.com/roach88/quip/internal/match"
	"github.com/roach88/quip/internal/metrics"
)

// Config holds all quip configuration.
type Config struct {
	// Catalog is a directory of CUE files or a compiled JSON catalog.
	Catalog string `yaml:"catalog"`

	// Database is the SQLite file for snapshots and the pick log.
	// Empty disables persistence.
	Database string `yaml:"database"`

	Engine  EngineConfig   `yaml:"engine"`
	Match   match.Settings `yaml:"match"`
	Logging LoggingConfig  `yaml:"logging"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// EngineConfig configures the engine.
type EngineConfig struct {
	Workers           int  `yaml:"workers"`
	Diagnostics       bool `yaml:"diagnostics"`
	KeepFactsOnReload bool `yaml:"keep_facts_on_reload"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Workers: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := Decode(strings.NewReader(string(data)), cfg); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	// Relative paths are relative to the config file.
	base := filepath.Dir(path)
	cfg.Catalog = resolve(base, cfg.Catalog)
	cfg.Database = resolve(base, cfg.Database)

	return cfg, nil
}

// Decode reads YAML from r over cfg, keeping fields the document omits.
func Decode(r io.Reader, cfg *Config) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(cfg); err != nil && err != io.EOF {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("QUIP_CATALOG"); v != "" {
		c.Catalog = v
	}
	if v := os.Getenv("QUIP_DB"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("QUIP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ValidLogLevels lists the accepted logging levels.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers must be >= 0, got %d", c.Engine.Workers)
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json)", c.Logging.Format)
	}
	return nil
}

// Logger builds a slog.Logger writing to w per the logging settings.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid logging level: %s (valid: %v)", s, ValidLogLevels)
}

// EngineOptions returns the engine options for c. logger and m may be nil.
func (c *Config) EngineOptions(logger *slog.Logger, m *metrics.Metrics) []engine.Option {
	opts := []engine.Option{
		engine.WithWorkers(c.Engine.Workers),
		engine.WithDiagnostics(c.Engine.Diagnostics),
		engine.WithKeepFactsOnReload(c.Engine.KeepFactsOnReload),
		engine.WithLogger(logger),
	}
	if c.Metrics.Enabled {
		opts = append(opts, engine.WithMetrics(m))
	}
	return opts
}
