// Package config defines the pipeline configuration structure and loading.
//
// Conventions:
// - Every recognized option is an explicit struct field; there is no
//   pass-through dictionary of untyped settings.
// - Provide New() for defaults and Load(ctx) for layered loading.
// - External errors are wrapped via this package's sentinel kinds.
package config

import (
	"time"
)

// Config enumerates every option the preprocessing core recognizes.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// MetricsAddr is the listen address for the Prometheus /metrics
	// endpoint. Empty disables the listener.
	MetricsAddr string `koanf:"metrics_addr"`

	// Granularity sets the time-bucket width for merging: hourly or daily.
	Granularity string `koanf:"granularity" validate:"oneof=hourly daily"`

	// DuplicatePolicy resolves duplicate record keys: keep_latest or
	// sum_metrics.
	DuplicatePolicy string `koanf:"duplicate_policy" validate:"oneof=keep_latest sum_metrics"`

	// Scaling selects metric rescaling: minmax, zscore, or none.
	Scaling string `koanf:"scaling" validate:"oneof=minmax zscore none"`

	// Linkage maps source-native entity ids to canonical ids, e.g. a
	// YouTube video id to the Spotify track it covers.
	Linkage map[string]string `koanf:"linkage"`

	// Dimensions is the set of tag dimensions the filter engine recognizes.
	Dimensions []string `koanf:"dimensions" validate:"min=1,dive,required"`

	// RefreshIntervalSec is how often the snapshot is rebuilt.
	RefreshIntervalSec int `koanf:"refresh_interval_sec" validate:"min=1"`

	// RetentionHours bounds how old a staged record may be, measured
	// against its own timestamp. Zero keeps everything.
	RetentionHours int `koanf:"retention_hours" validate:"min=0"`

	// QueueSize bounds the in-memory batch queue.
	QueueSize int `koanf:"queue_size" validate:"min=1"`

	// Inputs lists JSONL record files read at startup by the CLI.
	Inputs []string `koanf:"inputs"`

	// OutCSV and OutXLSX are optional export destinations for the unified
	// table.
	OutCSV  string `koanf:"out_csv"`
	OutXLSX string `koanf:"out_xlsx"`
}

// RefreshInterval returns the rebuild cadence as a duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSec) * time.Second
}

// Retention returns the staging window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		MetricsAddr:        "",
		Granularity:        "daily",
		DuplicatePolicy:    "keep_latest",
		Scaling:            "minmax",
		Linkage:            map[string]string{},
		Dimensions:         []string{"genre", "region", "category"},
		RefreshIntervalSec: 300,
		RetentionHours:     7 * 24,
		QueueSize:          1024,
	}
}
