package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/history"
)

// HistoryCmd shows recent ledger events
var HistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent job execution history",
	Long: `Show recent events from the ingestion history ledger, newest first.

Every job run appends a start event and an end or error event; job
bodies add marker events (data loads, SCD2 upserts, CSV saves) in
between.

Examples:
  strata history                    # Last 20 events across all jobs
  strata history --job trade        # Events for one job
  strata history --limit 50 --json  # Raw events as JSON`,
	RunE: runHistory,
}

var (
	historyJobFlag   string
	historyLimitFlag int
	historyJSONFlag  bool
)

func init() {
	HistoryCmd.Flags().StringVar(&historyJobFlag, "job", "", "Only show events for this job")
	HistoryCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Number of events to show")
	HistoryCmd.Flags().BoolVar(&historyJSONFlag, "json", false, "Output events as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	ledger := history.NewLedger(database)
	ctx := context.Background()

	var events []history.Event
	if historyJobFlag != "" {
		events, err = ledger.RecentForJob(ctx, historyJobFlag, historyLimitFlag)
	} else {
		events, err = ledger.Recent(ctx, historyLimitFlag)
	}
	if err != nil {
		return err
	}

	if historyJSONFlag {
		output, err := json.MarshalIndent(events, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to format events: %w", err)
		}
		fmt.Println(string(output))
		return nil
	}

	if len(events) == 0 {
		fmt.Println("No history recorded yet.")
		return nil
	}

	for _, event := range events {
		fmt.Println(formatEvent(event))
	}
	return nil
}

// formatEvent renders one ledger event as a single history line
func formatEvent(event history.Event) string {
	line := fmt.Sprintf("[%s] %-16s %-20s %-8s",
		event.StartedAt.UTC().Format("2006-01-02 15:04:05"),
		event.JobName,
		event.EventType,
		event.Status,
	)
	if event.RowCount != nil {
		line += fmt.Sprintf("  rows=%d", *event.RowCount)
	}
	if event.DurationMs != nil {
		line += fmt.Sprintf("  %dms", *event.DurationMs)
	}
	if event.Status == history.StatusFailed {
		if reason, ok := event.Details["error"].(string); ok && reason != "" {
			line += "  " + reason
		}
	}
	return line
}
