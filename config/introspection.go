package config

import (
	"os"
	"sort"
	"strings"
)

// ConfigSource indicates where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"
	SourceUser        ConfigSource = "user"
	SourceProject     ConfigSource = "project"
	SourceEnvironment ConfigSource = "environment"
)

// SourceInfo records the origin of a single configuration key
type SourceInfo struct {
	Source ConfigSource
	Path   string
}

// SettingInfo describes a single configuration setting with its source
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"`
}

// ConfigIntrospection is the full effective configuration with per-key
// source attribution, as shown by `strata config show --sources`.
type ConfigIntrospection struct {
	Settings []SettingInfo `json:"settings"`
}

// GetConfigIntrospection returns every effective setting annotated with the
// file (or environment variable) it came from.
func GetConfigIntrospection() (*ConfigIntrospection, error) {
	v := GetViper()
	if v == nil {
		if _, err := Load(); err != nil {
			return nil, err
		}
		v = GetViper()
	}

	settings := flattenSettingsWithSources(v.AllSettings(), "")
	sort.Slice(settings, func(i, j int) bool {
		return settings[i].Key < settings[j].Key
	})

	return &ConfigIntrospection{Settings: settings}, nil
}

// flattenSettingsWithSources walks the nested settings map and attributes
// each leaf key to its source. Environment variables win over files.
func flattenSettingsWithSources(settings map[string]interface{}, prefix string) []SettingInfo {
	var result []SettingInfo

	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}

		value := settings[key]
		if nested, ok := value.(map[string]interface{}); ok {
			result = append(result, flattenSettingsWithSources(nested, fullKey)...)
			continue
		}

		info := SettingInfo{
			Key:    fullKey,
			Value:  value,
			Source: SourceDefault,
		}

		if src, ok := ConfigSources[fullKey]; ok {
			info.Source = src.Source
			info.SourcePath = src.Path
		}

		envKey := "STRATA_" + strings.ToUpper(strings.ReplaceAll(fullKey, ".", "_"))
		if _, present := os.LookupEnv(envKey); present {
			info.Source = SourceEnvironment
			info.SourcePath = envKey
		}

		result = append(result, info)
	}

	return result
}

// GetConfigSummary counts effective settings by source
func GetConfigSummary() (map[ConfigSource]int, error) {
	introspection, err := GetConfigIntrospection()
	if err != nil {
		return nil, err
	}

	summary := make(map[ConfigSource]int)
	for _, setting := range introspection.Settings {
		summary[setting.Source]++
	}
	return summary, nil
}
