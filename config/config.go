// Package config loads converter settings from YAML.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/VanDung-dev/MzParquet-Engine/arrow"
	"github.com/VanDung-dev/MzParquet-Engine/data"
	"github.com/VanDung-dev/MzParquet-Engine/engine"
)

// Config holds the full converter configuration.
type Config struct {
	OutputDir   string `yaml:"output_dir"`
	BatchRows   int    `yaml:"batch_rows"`
	BatchMB     int    `yaml:"batch_mb"`
	Strict      bool   `yaml:"strict"`
	KeepPartial bool   `yaml:"keep_partial"`
	Concurrent  bool   `yaml:"concurrent"`
	QueueDepth  int    `yaml:"queue_depth"`
	Jobs        int    `yaml:"jobs"`
	Layout      string `yaml:"layout"` // wide | long
	Format      string `yaml:"format"` // parquet | ipc
	Compression int    `yaml:"compression_level"`
	DeriveTIC   bool   `yaml:"derive_tic"`

	LogLevel      string `yaml:"log_level"`
	MetricsAddr   string `yaml:"metrics_addr"`
	NotifyAddr    string `yaml:"notify_addr"`
	ProgressEvery int    `yaml:"progress_every"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	batch := engine.DefaultBatchOptions()
	return &Config{
		BatchRows:     batch.MaxRows,
		BatchMB:       batch.MaxBytes >> 20,
		QueueDepth:    256,
		Jobs:          1,
		Layout:        string(data.LayoutWide),
		Format:        string(arrow.FormatParquet),
		Compression:   arrow.DefaultCompressionLevel,
		LogLevel:      "info",
		ProgressEvery: 10000,
	}
}

// Load reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.BatchRows <= 0 {
		return fmt.Errorf("batch_rows must be > 0")
	}
	if c.BatchMB <= 0 {
		return fmt.Errorf("batch_mb must be > 0")
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be > 0")
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("jobs must be > 0")
	}
	if !data.Layout(c.Layout).Valid() || c.Layout == "" {
		return fmt.Errorf("unsupported layout %q (use wide or long)", c.Layout)
	}
	switch arrow.Format(c.Format) {
	case arrow.FormatParquet, arrow.FormatIPC:
	default:
		return fmt.Errorf("unsupported format %q (use parquet or ipc)", c.Format)
	}
	if c.Compression < 1 || c.Compression > 22 {
		return fmt.Errorf("compression_level must be between 1 and 22")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress_every must be > 0")
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("unsupported log_level %q", c.LogLevel)
	}
	return level, nil
}

// Options converts the configuration into driver options. Logger, metrics,
// notifier and store are left for the caller.
func (c *Config) Options() engine.Options {
	opts := engine.DefaultOptions()
	opts.Batch = engine.BatchOptions{
		MaxRows:  c.BatchRows,
		MaxBytes: c.BatchMB << 20,
	}
	opts.Strict = c.Strict
	opts.KeepPartial = c.KeepPartial
	opts.Concurrent = c.Concurrent
	opts.QueueDepth = c.QueueDepth
	opts.Jobs = c.Jobs
	opts.Layout = data.Layout(c.Layout)
	opts.Format = arrow.Format(c.Format)
	opts.CompressionLevel = c.Compression
	opts.DeriveTIC = c.DeriveTIC
	opts.ProgressInterval = c.ProgressEvery
	return opts
}
