package commands

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/client"
	"github.com/teranos/strata/config"
	"github.com/teranos/strata/daemon"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/history"
	"github.com/teranos/strata/jobs"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/schedule"
	"github.com/teranos/strata/temporal"
)

// RunCmd runs the collection daemon in the foreground
var RunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collection daemon",
	Long: `Run the collection daemon in foreground mode.

The daemon will:
- Sync the schedule document into the database
- Poll for due jobs and dispatch them to their handlers
- Record every run in the ingestion history ledger
- Re-sync automatically when the schedule document changes
- Run until interrupted (Ctrl+C) with a clean shutdown

Example:
  strata run                # Run with the configured schedule
  strata run --workers 3    # Override concurrent dispatch fan-out`,
	RunE: runDaemon,
}

func init() {
	RunCmd.Flags().Int("workers", 0, "Override daemon.workers from configuration (0 = use config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
		cfg.Daemon.Workers = workers
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
	docPath := schedulePath(cmd, cfg)

	doc, err := schedule.LoadDocument(docPath, parser)
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

	fmt.Printf("Starting strata daemon...\n")
	fmt.Printf("  Schedule: %s (%d jobs)\n", docPath, len(doc.Jobs))
	fmt.Printf("  Database: %s\n", cfg.GetDatabasePath())
	fmt.Printf("  Poll interval: %v\n", cfg.PollInterval())
	fmt.Printf("  Mode: %s", cfg.Daemon.Mode)
	if cfg.Daemon.Mode == config.ModeConcurrent {
		fmt.Printf(" (%d workers)", cfg.Daemon.Workers)
	}
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	var watcher *config.FileWatcher
	if cfg.Schedule.Watch {
		watcher, err = config.NewFileWatcher(docPath)
		if err != nil {
			cancel()
			<-errCh
			return errors.Wrap(err, "failed to watch schedule document")
		}
		watcher.OnChange(func(path string) error {
			return resyncDocument(path, parser, store, runner)
		})
		watcher.Start()
		fmt.Printf("  Watching %s for changes\n", docPath)
	}

	fmt.Printf("\nPress Ctrl+C to stop\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		fmt.Printf("\nShutting down...\n")
	case err := <-errCh:
		if watcher != nil {
			watcher.Stop()
		}
		return err
	}

	// Stop components in reverse order of startup
	if watcher != nil {
		watcher.Stop()
	}
	cancel()
	<-errCh

	fmt.Println("Daemon stopped")
	return nil
}

// resyncDocument reloads the schedule document into the store. A document
// that fails to load or validate leaves the previous schedule running; the
// watcher logs the error and keeps watching.
func resyncDocument(path string, parser schedule.CronParser, store *schedule.Store, runner *daemon.Runner) error {
	doc, err := schedule.LoadDocument(path, parser)
	if err != nil {
		return err
	}
	if err := runner.ValidateAgainst(doc); err != nil {
		return err
	}
	if err := store.Sync(doc, time.Now().UTC()); err != nil {
		return err
	}
	logger.Infow("Schedule document reloaded",
		logger.FieldPath, path,
		logger.FieldCount, len(doc.Jobs))
	return nil
}

// schedulePath resolves the schedule document path, honoring the global
// --schedule override.
func schedulePath(cmd *cobra.Command, cfg *config.Config) string {
	if path, _ := cmd.Flags().GetString("schedule"); path != "" {
		return path
	}
	return cfg.GetSchedulePath()
}

// buildRegistry wires the job handlers. A nil database builds handlers for
// validation only; they must not execute.
func buildRegistry(cfg *config.Config, database *sql.DB) (*daemon.Registry, error) {
	deps := jobs.Deps{
		OpenData: client.NewOpenData(client.Config{
			ServiceKey: cfg.OpenData.ServiceKey,
			BaseURL:    cfg.OpenData.BaseURL,
			Timeout:    cfg.OpenDataTimeout(),
			PageSize:   cfg.OpenData.PageSize,
			Logger:     logger.Logger,
		}),
		ExportDir: cfg.GetExportDir(),
		Logger:    logger.Logger,
	}
	if database != nil {
		deps.Engine = temporal.NewEngine(database)
		deps.Ledger = history.NewLedger(database)
	}
	return jobs.NewRegistry(deps)
}

func runnerConfig(cfg *config.Config) daemon.RunnerConfig {
	return daemon.RunnerConfig{
		PollInterval:     cfg.PollInterval(),
		Mode:             cfg.Daemon.Mode,
		Workers:          cfg.Daemon.Workers,
		StatusEveryTicks: cfg.Daemon.StatusEveryTicks,
	}
}
