package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/config"
	"github.com/teranos/strata/daemon"
	"github.com/teranos/strata/history"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/schedule"
)

// OnceCmd runs one dispatch cycle and exits
var OnceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run due jobs once and exit",
	Long: `Run a single dispatch cycle: sync the schedule document, claim every
job that is due right now, run each one, and exit.

Exits non-zero when the cycle hits a configuration or storage error.
Individual job failures are recorded in the history ledger and do not
change the exit code.

Example:
  strata once        # Typically from cron or a systemd timer
  strata once -v     # With per-job log output`,
	RunE: runOnce,
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	parser := schedule.NewCronParser()
	doc, err := schedule.LoadDocument(schedulePath(cmd, cfg), parser)
	if err != nil {
		return err
	}

	store := schedule.NewStore(database, parser)
	if err := store.Sync(doc, time.Now().UTC()); err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, database)
	if err != nil {
		return err
	}

	runner := daemon.NewRunner(store, history.NewLedger(database), registry, runnerConfig(cfg), logger.Logger)
	if err := runner.ValidateAgainst(doc); err != nil {
		return err
	}

	return runner.RunCycle(context.Background(), time.Now().UTC())
}
