package temporal

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

// identifierPattern admits the identifiers that are safe to interpolate
// into DDL and DML. Everything else is rejected before any SQL is built.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateIdentifiers(table string, keyFields, attrFields []string) error {
	if !identifierPattern.MatchString(table) {
		return errors.NewConfigurationf("invalid table name %q", table)
	}
	for _, field := range keyFields {
		if !identifierPattern.MatchString(field) {
			return errors.NewConfigurationf("invalid key field %q for table %s", field, table)
		}
	}
	for _, field := range attrFields {
		if !identifierPattern.MatchString(field) {
			return errors.NewConfigurationf("invalid attribute field %q for table %s", field, table)
		}
	}
	return nil
}

// ensureTable creates the versioned table and its indexes if absent, and
// adds any attribute columns that appeared after the table was first
// created. Key columns are fixed at creation and never altered.
func (e *Engine) ensureTable(ctx context.Context, table string, keyFields, attrFields []string) error {
	var defs []string
	defs = append(defs, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	for _, field := range keyFields {
		defs = append(defs, field+" TEXT NOT NULL")
	}
	for _, field := range attrFields {
		defs = append(defs, field+" TEXT")
	}
	defs = append(defs,
		"valid_from TEXT NOT NULL",
		"valid_to TEXT NOT NULL",
		"is_current INTEGER NOT NULL",
		"row_hash TEXT NOT NULL")

	createTable := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", table, strings.Join(defs, ", "))
	if _, err := e.db.ExecContext(ctx, createTable); err != nil {
		return errors.WrapStorage(err, "failed to create table "+table)
	}

	keyIndex := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
		table, strings.Join(keyFields, "_"), table, strings.Join(keyFields, ", "))
	if _, err := e.db.ExecContext(ctx, keyIndex); err != nil {
		return errors.WrapStorage(err, "failed to create key index on "+table)
	}

	currentIndex := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_current ON %s (is_current)", table, table)
	if _, err := e.db.ExecContext(ctx, currentIndex); err != nil {
		return errors.WrapStorage(err, "failed to create current index on "+table)
	}

	existing, err := e.tableColumns(ctx, table)
	if err != nil {
		return err
	}

	for _, field := range attrFields {
		if _, ok := existing[field]; ok {
			continue
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", table, field)
		if _, err := e.db.ExecContext(ctx, alter); err != nil {
			return errors.WrapStorage(err, fmt.Sprintf("failed to add column %s to %s", field, table))
		}
		logger.Infow("Added attribute column",
			logger.FieldTable, table,
			"column", field)
	}

	return nil
}

// tableColumns reads the live schema of a table via PRAGMA table_info
func (e *Engine) tableColumns(ctx context.Context, table string) (map[string]struct{}, error) {
	rows, err := e.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to inspect table "+table)
	}
	defer rows.Close()

	columns := make(map[string]struct{})
	for rows.Next() {
		var (
			cid          int
			name         string
			colType      string
			notNull      int
			defaultValue sql.NullString
			pk           int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &defaultValue, &pk); err != nil {
			return nil, errors.WrapStorage(err, "failed to scan table info for "+table)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to read table info for "+table)
	}

	return columns, nil
}
