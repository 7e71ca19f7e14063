package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "strata.db")

	// Daemon defaults
	v.SetDefault("daemon.poll_interval_seconds", 5)
	v.SetDefault("daemon.mode", ModeSequential)
	v.SetDefault("daemon.workers", 4)
	v.SetDefault("daemon.status_every_ticks", 12) // ~1 status line per minute at the default poll interval

	// Schedule document defaults
	v.SetDefault("schedule.path", "schedule.yaml")
	v.SetDefault("schedule.watch", true)

	// Open-data API defaults
	v.SetDefault("opendata.base_url", "https://apis.data.go.kr")
	v.SetDefault("opendata.timeout_seconds", 30)
	v.SetDefault("opendata.page_size", 1000)

	// Export defaults
	v.SetDefault("export.dir", "exports")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Open-data service key stays out of config files on shared hosts
	v.BindEnv("opendata.service_key", "STRATA_OPENDATA_SERVICE_KEY")

	// Database path
	v.BindEnv("database.path", "STRATA_DATABASE_PATH")
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "strata.db" // Fallback default
	}
	return c.Database.Path
}

// GetSchedulePath returns the configured schedule document path
func (c *Config) GetSchedulePath() string {
	if c.Schedule.Path == "" {
		return "schedule.yaml"
	}
	return c.Schedule.Path
}

// GetExportDir returns the configured CSV export directory
func (c *Config) GetExportDir() string {
	if c.Export.Dir == "" {
		return "exports"
	}
	return c.Export.Dir
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Schedule: %s, Daemon: {Mode: %s, Workers: %d}}",
		c.Database.Path, c.Schedule.Path, c.Daemon.Mode, c.Daemon.Workers)
}
