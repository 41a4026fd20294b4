// Package config loads dbsync settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dbsync/internal/store"
)

const (
	defaultDatabase = "dbsync.db"
	defaultSettle   = 200 * time.Millisecond
)

// Config holds the settings shared by every dbsync command.
type Config struct {
	// Database is the SQLite file path; ":memory:" opens a private database.
	Database string `yaml:"database"`

	// Schemas lists CUE files or directories holding entity definitions.
	Schemas []string `yaml:"schemas"`

	BusyTimeoutMS int    `yaml:"busy_timeout_ms"`
	LogLevel      string `yaml:"log_level"`

	// MetricsAddr enables the Prometheus endpoint of `dbsync watch`.
	MetricsAddr string `yaml:"metrics_addr"`

	Watch WatchConfig `yaml:"watch"`
}

// WatchConfig configures the import inbox.
type WatchConfig struct {
	Dir string `yaml:"dir"`

	// Settle is how long a file must be quiet before it is imported.
	Settle time.Duration `yaml:"settle"`
}

// Default returns a Config with defaults for every setting.
func Default() Config {
	return Config{
		Database:      defaultDatabase,
		BusyTimeoutMS: store.DefaultBusyTimeout,
		LogLevel:      "info",
		Watch: WatchConfig{
			Settle: defaultSettle,
		},
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Database != "" {
		c.Database = source.Database
	}
	if len(source.Schemas) > 0 {
		c.Schemas = source.Schemas
	}
	if source.BusyTimeoutMS > 0 {
		c.BusyTimeoutMS = source.BusyTimeoutMS
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.MetricsAddr != "" {
		c.MetricsAddr = source.MetricsAddr
	}
	c.Watch.Merge(&source.Watch)
}

// Merge applies non-zero values from source into w.
func (w *WatchConfig) Merge(source *WatchConfig) {
	if source.Dir != "" {
		w.Dir = source.Dir
	}
	if source.Settle > 0 {
		w.Settle = source.Settle
	}
}

// Load reads a YAML config file and merges it over the defaults. Relative
// database, schema and inbox paths are resolved against the file's
// directory. Unknown keys are rejected.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	loaded, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	// Merge skips zero and negative values, so check before merging.
	if err := loaded.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	loaded.resolve(filepath.Dir(filename))

	cfg := Default()
	cfg.Merge(loaded)
	return &cfg, nil
}

// Parse decodes YAML without applying defaults. Empty input is an empty
// Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) resolve(base string) {
	if base == "" || base == "." {
		return
	}
	if c.Database != "" && c.Database != ":memory:" && !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(base, c.Database)
	}
	for i, p := range c.Schemas {
		if !filepath.IsAbs(p) {
			c.Schemas[i] = filepath.Join(base, p)
		}
	}
	if c.Watch.Dir != "" && !filepath.IsAbs(c.Watch.Dir) {
		c.Watch.Dir = filepath.Join(base, c.Watch.Dir)
	}
}

// Validate checks settings that have no usable zero value.
func (c *Config) Validate() error {
	if c.BusyTimeoutMS < 0 {
		return fmt.Errorf("busy_timeout_ms must not be negative, got %d", c.BusyTimeoutMS)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Watch.Settle < 0 {
		return fmt.Errorf("watch.settle must not be negative, got %s", c.Watch.Settle)
	}
	return nil
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// ParseLevel converts debug, info, warn or error into a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", s)
	}
}
