package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/strata/config"
)

// ConfigCmd groups configuration inspection commands
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect strata configuration",
	Long: `Inspect the effective strata configuration.

Configuration sources (in order of precedence):
1. Environment variables (STRATA_* prefix)
2. Project config (./strata.toml or ./config.toml, searched upward)
3. User config (~/.strata/strata.toml or ~/.strata/config.toml)
4. System config (/etc/strata/config.toml)
5. Default values

Examples:
  strata config show                # Effective configuration as TOML
  strata config show --sources      # Where each value came from
  strata config get database.path   # One value by dot-notation key
  strata config set daemon.workers 8
  strata config validate`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  "Display the effective configuration merged from all sources",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a configuration value",
	Long:  "Get a single configuration value using dot notation (e.g., database.path, daemon.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user config file using dot notation.

The value is written to ~/.strata/strata.toml with rotating backups of the
previous file. Project and system config files are never modified.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate that the effective strata configuration is usable",
	RunE:  runConfigValidate,
}

var (
	configFormatFlag  string
	configSourcesFlag bool
)

func init() {
	configShowCmd.Flags().StringVar(&configFormatFlag, "format", "toml", "Output format: toml, json, yaml")
	configShowCmd.Flags().BoolVar(&configSourcesFlag, "sources", false, "Annotate each value with its source")

	ConfigCmd.AddCommand(configShowCmd)
	ConfigCmd.AddCommand(configGetCmd)
	ConfigCmd.AddCommand(configSetCmd)
	ConfigCmd.AddCommand(configValidateCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	if configSourcesFlag {
		return showConfigSources()
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch configFormatFlag {
	case "toml":
		rendered, err := config.Render(cfg)
		if err != nil {
			return err
		}
		fmt.Printf("# strata configuration\n%s", rendered)

	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# strata configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormatFlag)
	}
	return nil
}

func showConfigSources() error {
	introspection, err := config.GetConfigIntrospection()
	if err != nil {
		return err
	}

	for _, setting := range introspection.Settings {
		origin := string(setting.Source)
		if setting.SourcePath != "" {
			origin = fmt.Sprintf("%s: %s", setting.Source, setting.SourcePath)
		}
		fmt.Printf("%-32s = %-24v (%s)\n", setting.Key, setting.Value, origin)
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := config.Get(key)
	if value == nil {
		return fmt.Errorf("configuration key not found: %s", key)
	}
	fmt.Println(value)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := config.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	fmt.Printf("Set %s = %s in %s\n", key, value, config.UserConfigPath())
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	fmt.Println("✓ Configuration is valid")
	return nil
}
