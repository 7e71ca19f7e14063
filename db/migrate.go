package db

import (
	"database/sql"
	"embed"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/strata/errors"
)

//go:embed sqlite/migrations/*.sql
var migrationsFS embed.FS

const migrationsDir = "sqlite/migrations"

// The bootstrap migration creates schema_migrations itself, so it is the
// only version allowed to run while that table is still missing.
const bootstrapVersion = "000"

// Migrate applies every pending migration in version order, each inside its
// own transaction, and records it in schema_migrations. A nil logger
// migrates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	names, err := migrationNames()
	if err != nil {
		return err
	}

	applied, ledgerExists := appliedVersions(db)

	ran := 0
	for _, name := range names {
		version := migrationVersion(name)
		if applied[version] {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)",
					"migration", name,
					"version", version,
				)
			}
			continue
		}
		if !ledgerExists && version != bootstrapVersion {
			return errors.Newf("schema_migrations table missing, %s cannot run before %s", name, bootstrapVersion)
		}

		if logger != nil {
			logger.Infow("Applying migration",
				"migration", name,
				"version", version,
			)
		}
		if err := applyMigration(db, name, version); err != nil {
			return err
		}
		ledgerExists = true
		ran++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"applied", ran,
			"total", len(names),
		)
	}
	return nil
}

// migrationNames returns the embedded .sql files sorted by name. The numeric
// prefix makes lexicographic order the application order.
func migrationNames() ([]string, error) {
	entries, err := migrationsFS.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// migrationVersion extracts the version prefix before the first underscore,
// e.g. "001" from "001_create_scheduled_jobs.sql".
func migrationVersion(name string) string {
	version, _, _ := strings.Cut(name, "_")
	return version
}

// appliedVersions reads the schema_migrations ledger. A query failure is
// taken to mean the table does not exist yet, which is the normal state of
// a fresh database before the bootstrap migration runs.
func appliedVersions(db *sql.DB) (map[string]bool, bool) {
	rows, err := db.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return map[string]bool{}, false
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return applied, true
		}
		applied[version] = true
	}
	return applied, true
}

func applyMigration(db *sql.DB, name, version string) error {
	ddl, err := migrationsFS.ReadFile(filepath.Join(migrationsDir, name))
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}

	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", name)
	}

	if _, err := tx.Exec(string(ddl)); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "execute %s", name)
	}

	// The bootstrap migration creates the very table it is recorded in.
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "record %s", name)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", name)
	}
	return nil
}
