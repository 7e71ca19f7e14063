package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/strata/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	// Check if file exists before backing up
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup if exists
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		// Log deletion failures (but don't fail config save)
		fmt.Printf("Failed to delete old backup %s: %v\n", back3, err)
	}

	// Rotate .back2 to .back3
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	// Rotate .back1 to .back2
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	// Copy current to .back1
	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// UserConfigPath returns the path of the per-user config file (~/.strata/strata.toml)
func UserConfigPath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "strata.toml")
}

// loadOrInitializeUserConfig loads the user config file, or starts an empty
// document if it doesn't exist yet.
func loadOrInitializeUserConfig() (map[string]interface{}, string, error) {
	configPath := UserConfigPath()
	if configPath == "" {
		return nil, "", errors.New("could not determine home directory")
	}

	var config map[string]interface{}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, "", errors.Wrap(err, "failed to parse user config")
		}
	} else {
		config = make(map[string]interface{})
	}

	return config, configPath, nil
}

// saveUserConfig writes the config to the user config file with backup
func saveUserConfig(config map[string]interface{}, configPath string) error {
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	// Mark this as our own write to prevent reload loops
	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to write user config")
	}

	return nil
}

// Set persists a single dotted-path setting (e.g. "daemon.workers") to the
// user config file, creating intermediate sections as needed. The cached
// configuration is reset so the next Load sees the new value.
func Set(key, rawValue string) error {
	if key == "" {
		return errors.New("config key cannot be empty")
	}

	config, configPath, err := loadOrInitializeUserConfig()
	if err != nil {
		return errors.Wrap(err, "failed to load user config")
	}

	parts := strings.Split(key, ".")
	section := config
	for _, part := range parts[:len(parts)-1] {
		child, ok := section[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			section[part] = child
		}
		section = child
	}
	section[parts[len(parts)-1]] = parseValue(rawValue)

	if err := saveUserConfig(config, configPath); err != nil {
		return err
	}

	Reset()
	return nil
}

// parseValue interprets a CLI-supplied value as bool, int, or float before
// falling back to a plain string.
func parseValue(raw string) interface{} {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// Render returns the effective configuration serialized as TOML
func Render(cfg *Config) (string, error) {
	data, err := toml.Marshal(cfg.toDocument())
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal config")
	}
	return string(data), nil
}

// toDocument converts the typed config into the nested map shape the TOML
// files use, so `config show` output can be pasted back into a file.
func (c *Config) toDocument() map[string]interface{} {
	return map[string]interface{}{
		"database": map[string]interface{}{
			"path": c.GetDatabasePath(),
		},
		"daemon": map[string]interface{}{
			"poll_interval_seconds": c.Daemon.PollIntervalSeconds,
			"mode":                  c.Daemon.Mode,
			"workers":               c.Daemon.Workers,
			"status_every_ticks":    c.Daemon.StatusEveryTicks,
		},
		"schedule": map[string]interface{}{
			"path":  c.GetSchedulePath(),
			"watch": c.Schedule.Watch,
		},
		"opendata": map[string]interface{}{
			"base_url":        c.OpenData.BaseURL,
			"timeout_seconds": c.OpenData.TimeoutSeconds,
			"page_size":       c.OpenData.PageSize,
		},
		"export": map[string]interface{}{
			"dir": c.GetExportDir(),
		},
	}
}
