package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/logger"
)

const eventColumns = "id, job_name, event_type, status, started_at, ended_at, duration_ms, row_count, details"

// Ledger appends and reads ingestion_history rows. Rows are never updated
// or deleted.
type Ledger struct {
	db *sql.DB
}

// NewLedger creates a ledger over an opened database
func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

// Append writes one event and returns its row id. A zero StartedAt is
// stamped with the current time.
func (l *Ledger) Append(ctx context.Context, event Event) (int64, error) {
	startedAt := event.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	var endedAt interface{}
	if event.EndedAt != nil {
		endedAt = event.EndedAt.UTC().Format(time.RFC3339)
	}

	var details interface{}
	if len(event.Details) > 0 {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return 0, errors.WrapStorage(err, "failed to encode event details")
		}
		details = string(encoded)
	}

	result, err := l.db.ExecContext(ctx, `
		INSERT INTO ingestion_history (job_name, event_type, status, started_at, ended_at, duration_ms, row_count, details)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.JobName, event.EventType, event.Status,
		startedAt.UTC().Format(time.RFC3339), endedAt,
		event.DurationMs, event.RowCount, details)
	if err != nil {
		return 0, errors.WrapStorage(err, "failed to append history event")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, errors.WrapStorage(err, "failed to read history event id")
	}

	logger.Debugw("History event appended",
		logger.FieldJob, event.JobName,
		logger.FieldEvent, event.EventType,
		logger.FieldStatus, event.Status)

	return id, nil
}

// Recent returns the newest events first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Event, error) {
	return l.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM ingestion_history ORDER BY id DESC LIMIT ?", limit)
}

// RecentForJob returns the newest events for one job
func (l *Ledger) RecentForJob(ctx context.Context, jobName string, limit int) ([]Event, error) {
	return l.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM ingestion_history WHERE job_name = ? ORDER BY id DESC LIMIT ?",
		jobName, limit)
}

func (l *Ledger) queryEvents(ctx context.Context, query string, args ...interface{}) ([]Event, error) {
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to read history")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to read history rows")
	}

	return events, nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var event Event
	var status, startedAt, endedAt, details sql.NullString
	var durationMs, rowCount sql.NullInt64

	err := rows.Scan(&event.ID, &event.JobName, &event.EventType,
		&status, &startedAt, &endedAt, &durationMs, &rowCount, &details)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to scan history event")
	}

	event.Status = status.String
	if startedAt.Valid && startedAt.String != "" {
		t, err := time.Parse(time.RFC3339, startedAt.String)
		if err != nil {
			return nil, errors.WrapStorage(err, "corrupt started_at in history event")
		}
		event.StartedAt = t
	}
	if endedAt.Valid && endedAt.String != "" {
		t, err := time.Parse(time.RFC3339, endedAt.String)
		if err != nil {
			return nil, errors.WrapStorage(err, "corrupt ended_at in history event")
		}
		event.EndedAt = &t
	}
	if durationMs.Valid {
		event.DurationMs = &durationMs.Int64
	}
	if rowCount.Valid {
		event.RowCount = &rowCount.Int64
	}
	if details.Valid && details.String != "" {
		if err := json.Unmarshal([]byte(details.String), &event.Details); err != nil {
			return nil, errors.WrapStorage(err, "corrupt details in history event")
		}
	}

	return &event, nil
}
