package config

import (
	"time"

	"github.com/teranos/strata/errors"
)

// Dispatch modes for the daemon run loop
const (
	ModeSequential = "sequential"
	ModeConcurrent = "concurrent"
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// Config represents the core strata configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Daemon   DaemonConfig   `mapstructure:"daemon"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	OpenData OpenDataConfig `mapstructure:"opendata"`
	Export   ExportConfig   `mapstructure:"export"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// DaemonConfig configures the polling run loop
type DaemonConfig struct {
	PollIntervalSeconds int    `mapstructure:"poll_interval_seconds"` // How often to check for due jobs (default: 5)
	Mode                string `mapstructure:"mode"`                  // Dispatch mode: sequential or concurrent
	Workers             int    `mapstructure:"workers"`               // Concurrent dispatch fan-out bound (default: 4)
	StatusEveryTicks    int    `mapstructure:"status_every_ticks"`    // Status log cadence in poll ticks (0 = never)
}

// ScheduleConfig configures the declarative schedule document
type ScheduleConfig struct {
	Path  string `mapstructure:"path"`  // Path to the schedule YAML document
	Watch bool   `mapstructure:"watch"` // Hot-reload the document on change (default: true)
}

// OpenDataConfig configures access to the public open-data API
type OpenDataConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	ServiceKey     string `mapstructure:"service_key"` // STRATA_OPENDATA_SERVICE_KEY
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	PageSize       int    `mapstructure:"page_size"` // Records requested per page
}

// ExportConfig configures CSV export output
type ExportConfig struct {
	Dir string `mapstructure:"dir"`
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "strata.db" per defaults.go
	// No validation needed here

	if c.Daemon.PollIntervalSeconds <= 0 {
		return errors.Newf("daemon.poll_interval_seconds must be > 0, got %d", c.Daemon.PollIntervalSeconds)
	}

	if c.Daemon.Mode != ModeSequential && c.Daemon.Mode != ModeConcurrent {
		return errors.Newf("daemon.mode must be %q or %q, got %q", ModeSequential, ModeConcurrent, c.Daemon.Mode)
	}

	if c.Daemon.Mode == ModeConcurrent && c.Daemon.Workers < 1 {
		return errors.Newf("daemon.workers must be >= 1 in concurrent mode, got %d", c.Daemon.Workers)
	}
	if c.Daemon.Workers < 0 {
		return errors.Newf("daemon.workers must be >= 0, got %d", c.Daemon.Workers)
	}

	// Status cadence: 0 = never log status, negative = invalid
	if c.Daemon.StatusEveryTicks < 0 {
		return errors.Newf("daemon.status_every_ticks must be >= 0, got %d", c.Daemon.StatusEveryTicks)
	}

	if c.OpenData.TimeoutSeconds <= 0 {
		return errors.Newf("opendata.timeout_seconds must be > 0, got %d", c.OpenData.TimeoutSeconds)
	}
	if c.OpenData.PageSize <= 0 {
		return errors.Newf("opendata.page_size must be > 0, got %d", c.OpenData.PageSize)
	}

	return nil
}

// PollInterval returns the daemon poll interval as a duration
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.PollIntervalSeconds) * time.Second
}

// OpenDataTimeout returns the open-data request timeout as a duration
func (c *Config) OpenDataTimeout() time.Duration {
	return time.Duration(c.OpenData.TimeoutSeconds) * time.Second
}
