package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/strata/config"
	"github.com/teranos/strata/temporal"
)

// DbCmd groups database maintenance commands
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the strata database",
	Long: `Manage strata database operations.

Examples:
  strata db stats    # Row counts per table, with current-version counts`,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	Long: `Display row counts for every table in the database.

Versioned tables additionally show how many rows are current, so the
ratio of history to live data is visible at a glance.`,
	RunE: runDbStats,
}

func init() {
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	engine := temporal.NewEngine(database)
	ctx := context.Background()

	tables, err := engine.Query(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return err
	}

	fmt.Println("Database Statistics")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("Database Path: %s\n\n", cfg.GetDatabasePath())

	for _, row := range tables {
		name, ok := row["name"].(string)
		if !ok {
			continue
		}

		total, err := countRows(ctx, engine, name, "")
		if err != nil {
			return err
		}

		versioned, err := hasColumn(ctx, engine, name, "is_current")
		if err != nil {
			return err
		}
		if versioned {
			current, err := countRows(ctx, engine, name, "WHERE is_current = 1")
			if err != nil {
				return err
			}
			fmt.Printf("  %-24s %8d rows (%d current)\n", name, total, current)
		} else {
			fmt.Printf("  %-24s %8d rows\n", name, total)
		}
	}
	return nil
}

// countRows counts rows in a table named by sqlite_master, optionally
// filtered by a WHERE clause.
func countRows(ctx context.Context, engine *temporal.Engine, table, where string) (int64, error) {
	rows, err := engine.Query(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s %s", table, where))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := rows[0]["n"].(int64)
	return n, nil
}

// hasColumn reports whether a table has a column with the given name
func hasColumn(ctx context.Context, engine *temporal.Engine, table, column string) (bool, error) {
	rows, err := engine.Query(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	for _, row := range rows {
		if name, ok := row["name"].(string); ok && name == column {
			return true, nil
		}
	}
	return false, nil
}
