// Package temporal implements versioned upserts over dynamically created
// SQLite tables. Each logical entity keeps its full change history: the
// current version row carries is_current = 1 and a far-future valid_to,
// superseded versions are closed in place and never deleted.
package temporal

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

// SentinelValidTo marks a row as current. Chosen to sort after any real
// RFC 3339 timestamp.
const SentinelValidTo = "9999-12-31T00:00:00Z"

// Record is one logical entity state: key fields identify the entity,
// the remaining fields are its versioned attributes. A field absent from
// the map is stored as NULL and hashes as the empty string.
type Record map[string]string

// Engine applies versioned upserts and serves raw queries over one database
type Engine struct {
	db *sql.DB
}

// NewEngine creates a temporal upsert engine
func NewEngine(db *sql.DB) *Engine {
	return &Engine{db: db}
}

// Upsert applies a batch of records to a versioned table, creating or
// evolving the table as needed. Per record: an unseen key inserts a new
// current row; an identical content hash is a no-op; a changed hash closes
// the current row and inserts its successor. The whole batch shares one
// timestamp and one transaction. Returns the number of inserted rows.
func (e *Engine) Upsert(ctx context.Context, table string, records []Record, keyFields, attrFields []string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	if len(keyFields) == 0 {
		return 0, errors.NewConfigurationf("upsert into %s requires at least one key field", table)
	}

	if len(attrFields) == 0 {
		attrFields = defaultAttributeFields(records[0], keyFields)
	}

	if err := validateIdentifiers(table, keyFields, attrFields); err != nil {
		return 0, err
	}

	if err := e.ensureTable(ctx, table, keyFields, attrFields); err != nil {
		return 0, err
	}

	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.WrapStorage(err, "failed to begin upsert into "+table)
	}
	defer tx.Rollback()

	var predicates []string
	for _, field := range keyFields {
		predicates = append(predicates, field+" = ?")
	}
	currentQuery := fmt.Sprintf(
		"SELECT id, row_hash FROM %s WHERE %s AND is_current = 1 ORDER BY id DESC LIMIT 1",
		table, strings.Join(predicates, " AND "))

	// The is_current guard makes closing conditional: a row already closed
	// by a competing writer stays closed.
	closeQuery := fmt.Sprintf(
		"UPDATE %s SET valid_to = ?, is_current = 0 WHERE id = ? AND is_current = 1", table)

	columns := append(append([]string{}, keyFields...), attrFields...)
	insertQuery := fmt.Sprintf(
		"INSERT INTO %s (%s, valid_from, valid_to, is_current, row_hash) VALUES (%s, ?, ?, 1, ?)",
		table, strings.Join(columns, ", "), placeholders(len(columns)))

	inserted := 0
	for _, record := range records {
		keyValues := make([]interface{}, 0, len(keyFields))
		for _, field := range keyFields {
			value, ok := record[field]
			if !ok {
				return 0, errors.NewConfigurationf("record for table %s missing key field %q", table, field)
			}
			keyValues = append(keyValues, value)
		}

		hash := contentHash(record, attrFields)

		var currentID int64
		var currentHash string
		err := tx.QueryRowContext(ctx, currentQuery, keyValues...).Scan(&currentID, &currentHash)
		switch {
		case err == nil:
			if currentHash == hash {
				continue // Unchanged content, not counted
			}
			if _, err := tx.ExecContext(ctx, closeQuery, now, currentID); err != nil {
				return 0, errors.WrapStorage(err, "failed to close current row in "+table)
			}
		case errors.Is(err, sql.ErrNoRows):
			// First version for this key
		default:
			return 0, errors.WrapStorage(err, "failed to look up current row in "+table)
		}

		args := make([]interface{}, 0, len(columns)+3)
		for _, field := range keyFields {
			args = append(args, record[field])
		}
		for _, field := range attrFields {
			if value, ok := record[field]; ok {
				args = append(args, value)
			} else {
				args = append(args, nil)
			}
		}
		args = append(args, now, SentinelValidTo, hash)

		if _, err := tx.ExecContext(ctx, insertQuery, args...); err != nil {
			return 0, errors.WrapStorage(err, "failed to insert version into "+table)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.WrapStorage(err, "failed to commit upsert into "+table)
	}

	logger.Debugw("Temporal upsert applied",
		logger.FieldTable, table,
		"records", len(records),
		"inserted", inserted)

	return inserted, nil
}

// Query executes raw SQL. Statements with a result set return rows as
// column-keyed maps; statements without one execute and return an empty
// slice.
func (e *Engine) Query(ctx context.Context, query string, args ...interface{}) ([]map[string]interface{}, error) {
	rows, err := e.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapStorage(err, "query failed")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to read result columns")
	}

	results := []map[string]interface{}{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		targets := make([]interface{}, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, errors.WrapStorage(err, "failed to scan result row")
		}

		row := make(map[string]interface{}, len(columns))
		for i, column := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[column] = value
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to read result rows")
	}

	return results, nil
}

// contentHash digests the attribute values in declared field order. Absent
// fields contribute an empty string, so "absent" and "empty" hash alike.
func contentHash(record Record, attrFields []string) string {
	hasher := sha256.New()
	for _, field := range attrFields {
		hasher.Write([]byte(record[field]))
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// defaultAttributeFields derives attribute fields from the first record:
// every field that is not a key, in lexicographic order. Map iteration is
// unordered, so the sort keeps the content hash deterministic across runs.
func defaultAttributeFields(first Record, keyFields []string) []string {
	keys := make(map[string]bool, len(keyFields))
	for _, field := range keyFields {
		keys[field] = true
	}

	var attrs []string
	for field := range first {
		if !keys[field] {
			attrs = append(attrs, field)
		}
	}
	sort.Strings(attrs)
	return attrs
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}
