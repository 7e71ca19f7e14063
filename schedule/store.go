package schedule

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/teranos/strata/errors"
)

// Store persists scheduled jobs in the scheduled_jobs table. Run state
// survives daemon restarts: next_run_at is computed when the document is
// synced and advanced when a job is claimed, never held only in memory.
type Store struct {
	db     *sql.DB
	parser CronParser
}

// NewStore creates a schedule store. The parser rehydrates cron policies
// from stored rows; pass nil if no cron jobs are configured.
func NewStore(db *sql.DB, parser CronParser) *Store {
	return &Store{db: db, parser: parser}
}

const jobColumns = `name, description, args, policy, depends_on, position,
       next_run_at, last_run_at, created_at, updated_at`

// Sync reconciles the scheduled_jobs table with a schedule document inside
// one transaction:
//   - new jobs are inserted with next_run_at computed from now
//   - jobs whose policy is unchanged keep their stored next_run_at
//   - jobs whose policy changed get next_run_at recomputed from now
//   - jobs absent from the document (or disabled) are removed
//
// Description, args, depends_on and position are refreshed in all cases.
func (s *Store) Sync(doc *Document, now time.Time) error {
	now = now.UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return errors.WrapStorage(err, "failed to begin schedule sync")
	}
	defer tx.Rollback()

	existing, err := readStoredPolicies(tx)
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(doc.Jobs))
	for _, job := range doc.Jobs {
		keep[job.Name] = true

		policyJSON, err := encodePolicy(job.Policy)
		if err != nil {
			return err
		}
		argsJSON, err := encodeJSON(job.Args, "args")
		if err != nil {
			return err
		}
		depsJSON, err := encodeJSON(job.DependsOn, "depends_on")
		if err != nil {
			return err
		}

		stored, found := existing[job.Name]
		switch {
		case !found:
			_, err = tx.Exec(`
				INSERT INTO scheduled_jobs
					(name, description, args, policy, depends_on, position,
					 next_run_at, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				job.Name, job.Description, argsJSON, policyJSON, depsJSON, job.Position,
				formatTime(job.Policy.NextRun(now)), formatTime(now), formatTime(now))
			if err != nil {
				return errors.WrapStorage(err, "failed to insert scheduled job "+job.Name)
			}

		case stored == policyJSON:
			// Policy unchanged: the stored next_run_at stands
			_, err = tx.Exec(`
				UPDATE scheduled_jobs
				SET description = ?, args = ?, depends_on = ?, position = ?, updated_at = ?
				WHERE name = ?`,
				job.Description, argsJSON, depsJSON, job.Position, formatTime(now), job.Name)
			if err != nil {
				return errors.WrapStorage(err, "failed to update scheduled job "+job.Name)
			}

		default:
			_, err = tx.Exec(`
				UPDATE scheduled_jobs
				SET description = ?, args = ?, policy = ?, depends_on = ?, position = ?,
				    next_run_at = ?, updated_at = ?
				WHERE name = ?`,
				job.Description, argsJSON, policyJSON, depsJSON, job.Position,
				formatTime(job.Policy.NextRun(now)), formatTime(now), job.Name)
			if err != nil {
				return errors.WrapStorage(err, "failed to reschedule job "+job.Name)
			}
		}
	}

	for name := range existing {
		if keep[name] {
			continue
		}
		if _, err := tx.Exec("DELETE FROM scheduled_jobs WHERE name = ?", name); err != nil {
			return errors.WrapStorage(err, "failed to remove scheduled job "+name)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapStorage(err, "failed to commit schedule sync")
	}
	return nil
}

// DueJobs returns the jobs due at the given instant, in document order, and
// claims them: within the same transaction each returned job's next_run_at
// is advanced by its policy and last_run_at is set to now. A job is
// therefore handed out exactly once per due instant no matter how fast the
// daemon polls.
func (s *Store) DueJobs(now time.Time) ([]*Job, error) {
	now = now.UTC()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to begin due-jobs claim")
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE next_run_at <= ?
		ORDER BY position ASC`,
		formatTime(now))
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to list due jobs")
	}

	var due []*Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		due = append(due, job)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.WrapStorage(err, "failed to read due jobs")
	}
	rows.Close()

	for _, job := range due {
		next := job.Policy.NextRun(now)
		_, err := tx.Exec(`
			UPDATE scheduled_jobs
			SET next_run_at = ?, last_run_at = ?, updated_at = ?
			WHERE name = ?`,
			formatTime(next), formatTime(now), formatTime(now), job.Name)
		if err != nil {
			return nil, errors.WrapStorage(err, "failed to claim job "+job.Name)
		}

		claimed := now
		job.NextRunAt = next
		job.LastRunAt = &claimed
		job.UpdatedAt = now
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.WrapStorage(err, "failed to commit due-jobs claim")
	}
	return due, nil
}

// GetJob retrieves a scheduled job by name
func (s *Store) GetJob(name string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT `+jobColumns+`
		FROM scheduled_jobs
		WHERE name = ?`, name)

	job, err := s.scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError("scheduled job not found: %s", name)
		}
		return nil, err
	}
	return job, nil
}

// ListJobs returns all scheduled jobs in document order
func (s *Store) ListJobs() ([]*Job, error) {
	rows, err := s.db.Query(`
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		ORDER BY position ASC`)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to list scheduled jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := s.scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to read scheduled jobs")
	}
	return jobs, nil
}

// NextScheduledJob returns the job with the soonest next_run_at, or nil if
// no jobs are scheduled.
func (s *Store) NextScheduledJob() (*Job, error) {
	row := s.db.QueryRow(`
		SELECT ` + jobColumns + `
		FROM scheduled_jobs
		ORDER BY next_run_at ASC
		LIMIT 1`)

	job, err := s.scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No jobs scheduled
		}
		return nil, err
	}
	return job, nil
}

// CountJobs returns the number of scheduled jobs
func (s *Store) CountJobs() (int, error) {
	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM scheduled_jobs").Scan(&count); err != nil {
		return 0, errors.WrapStorage(err, "failed to count scheduled jobs")
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanJob reads one scheduled_jobs row, decodes the JSON columns and
// rehydrates the recurrence policy.
func (s *Store) scanJob(row rowScanner) (*Job, error) {
	var job Job
	var argsJSON, policyJSON, depsJSON string
	var nextRunAt, createdAt, updatedAt string
	var lastRunAt sql.NullString

	err := row.Scan(
		&job.Name,
		&job.Description,
		&argsJSON,
		&policyJSON,
		&depsJSON,
		&job.Position,
		&nextRunAt,
		&lastRunAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.WrapStorage(err, "failed to scan scheduled job")
	}

	if err := json.Unmarshal([]byte(argsJSON), &job.Args); err != nil {
		return nil, errors.WrapStorage(err, "corrupt args for job "+job.Name)
	}
	if err := json.Unmarshal([]byte(depsJSON), &job.DependsOn); err != nil {
		return nil, errors.WrapStorage(err, "corrupt depends_on for job "+job.Name)
	}

	var spec PolicySpec
	if err := json.Unmarshal([]byte(policyJSON), &spec); err != nil {
		return nil, errors.WrapStorage(err, "corrupt policy for job "+job.Name)
	}
	job.Policy, err = ParsePolicy(spec, s.parser)
	if err != nil {
		return nil, errors.Wrapf(err, "stored policy for job %q", job.Name)
	}

	// Parse timestamps (failure indicates data corruption or schema mismatch)
	job.NextRunAt, err = time.Parse(time.RFC3339, nextRunAt)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to parse next_run_at for job "+job.Name)
	}
	job.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to parse created_at for job "+job.Name)
	}
	job.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to parse updated_at for job "+job.Name)
	}
	if lastRunAt.Valid {
		t, err := time.Parse(time.RFC3339, lastRunAt.String)
		if err != nil {
			return nil, errors.WrapStorage(err, "failed to parse last_run_at for job "+job.Name)
		}
		job.LastRunAt = &t
	}

	return &job, nil
}

// encodePolicy serializes a policy's normalized spec for storage. Equal
// policies always produce identical JSON, which is what Sync compares.
func encodePolicy(p Policy) (string, error) {
	data, err := json.Marshal(p.Spec())
	if err != nil {
		return "", errors.WrapStorage(err, "failed to encode policy")
	}
	return string(data), nil
}

func encodeJSON(v interface{}, what string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", errors.WrapStorage(err, "failed to encode "+what)
	}
	return string(data), nil
}

func readStoredPolicies(tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.Query("SELECT name, policy FROM scheduled_jobs")
	if err != nil {
		return nil, errors.WrapStorage(err, "failed to read stored jobs")
	}
	defer rows.Close()

	existing := make(map[string]string)
	for rows.Next() {
		var name, policy string
		if err := rows.Scan(&name, &policy); err != nil {
			return nil, errors.WrapStorage(err, "failed to scan stored job")
		}
		existing[name] = policy
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapStorage(err, "failed to read stored jobs")
	}
	return existing, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
