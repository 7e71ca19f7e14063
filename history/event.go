// Package history records job execution in an append-only ledger. The
// daemon writes a start event and exactly one end or error event around
// every run; job bodies may add domain marker events in between.
package history

import "time"

// Event types. The daemon emits start, end and error; the rest are
// markers written by job bodies.
const (
	EventStart      = "start"
	EventEnd        = "end"
	EventError      = "error"
	EventDataLoad   = "data_load"
	EventSCD2Upsert = "scd2_upsert"
	EventAPIError   = "api_error"
	EventCSVSave    = "csv_save"
)

// Event statuses
const (
	StatusStarted   = "started"
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Event is one ledger row
type Event struct {
	ID         int64                  `json:"id"`
	JobName    string                 `json:"job_name"`
	EventType  string                 `json:"event_type"`
	Status     string                 `json:"status"`
	StartedAt  time.Time              `json:"started_at"`
	EndedAt    *time.Time             `json:"ended_at,omitempty"`
	DurationMs *int64                 `json:"duration_ms,omitempty"`
	RowCount   *int64                 `json:"row_count,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}
