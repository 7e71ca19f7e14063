package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/cmd/strata/commands"
	"github.com/teranos/strata/logger"
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - scheduled data collection with temporal versioning",
	Long: `Strata - scheduled data collection with temporal versioning.

Strata runs a declarative schedule of collection jobs, versions the
records they pull into SCD2 temporal tables, and keeps an append-only
history of every run.

Available commands:
  run      - Run the collection daemon
  once     - Run due jobs once and exit
  validate - Validate the schedule document without running jobs
  jobs     - List scheduled jobs and their next runs
  history  - Show recent job execution history
  config   - Inspect configuration
  db       - Manage the database
  version  - Show version information

Examples:
  strata validate             # Check the schedule document
  strata run -v               # Run the daemon with info logging
  strata once                 # One dispatch cycle, e.g. from cron
  strata history --job trade  # Recent events for one job`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.InitializeWithLevel(jsonLogs, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Emit logs as JSON")
	rootCmd.PersistentFlags().String("schedule", "", "Override the schedule document path")

	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.OnceCmd)
	rootCmd.AddCommand(commands.ValidateCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.HistoryCmd)
	rootCmd.AddCommand(commands.ConfigCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	defer logger.Cleanup()
	return rootCmd.Execute()
}
