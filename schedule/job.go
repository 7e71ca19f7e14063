package schedule

import (
	"strconv"
	"time"
)

// Job is one scheduled collection job: a named handler invocation with
// arguments and a recurrence policy. Persisted rows carry the run state
// (NextRunAt, LastRunAt); document-loaded jobs carry zero values there
// until the store syncs them.
type Job struct {
	Name        string
	Description string
	Args        map[string]interface{}
	Policy      Policy
	DependsOn   []string // Advisory ordering hints; never enforced at dispatch
	Position    int      // Declaration order in the schedule document
	NextRunAt   time.Time
	LastRunAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Due reports whether the job should run at the given instant
func (j *Job) Due(now time.Time) bool {
	return !now.Before(j.NextRunAt)
}

// StringArg returns a string argument by key, with a fallback default.
// Non-string values are ignored.
func (j *Job) StringArg(key, fallback string) string {
	if j.Args == nil {
		return fallback
	}
	if raw, ok := j.Args[key]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

// IntArg returns an integer argument by key, with a fallback default.
// Document-sourced args arrive as ints, store-loaded args as float64
// after the JSON round trip, and either may be quoted.
func (j *Job) IntArg(key string, fallback int) int {
	if j.Args == nil {
		return fallback
	}
	switch v := j.Args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
