package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/strata/config"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/history"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/schedule"
)

// RunnerConfig contains configuration for the polling daemon
type RunnerConfig struct {
	PollInterval     time.Duration // How often to check for due jobs
	Mode             string        // sequential or concurrent dispatch
	Workers          int           // Fan-out bound in concurrent mode
	StatusEveryTicks int           // Status log cadence in poll ticks (0 = never)
}

// DefaultRunnerConfig returns sensible defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval:     5 * time.Second,
		Mode:             config.ModeSequential,
		Workers:          4,
		StatusEveryTicks: 12,
	}
}

// Runner polls the schedule store and dispatches due jobs to handlers.
// Handler failures are recorded and the daemon keeps going; configuration
// and storage failures terminate the loop.
type Runner struct {
	store    *schedule.Store
	ledger   *history.Ledger
	registry *Registry
	config   RunnerConfig
	log      *zap.SugaredLogger

	mu              sync.Mutex
	lastTickAt      time.Time
	ticksSinceStart int64
}

// NewRunner creates a daemon runner
func NewRunner(store *schedule.Store, ledger *history.Ledger, registry *Registry, cfg RunnerConfig, log *zap.SugaredLogger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Runner{
		store:    store,
		ledger:   ledger,
		registry: registry,
		config:   cfg,
		log:      log,
	}
}

// ValidateAgainst checks that every job in the document has a registered
// handler. Run this before the first cycle so a broken deployment fails
// fast instead of mid-schedule.
func (r *Runner) ValidateAgainst(doc *schedule.Document) error {
	for _, job := range doc.Jobs {
		if !r.registry.Has(job.Name) {
			return errors.NewConfigurationf("no handler registered for job %q", job.Name)
		}
	}
	return nil
}

// Run polls until the context is cancelled or a fatal error occurs.
// Context cancellation is a clean stop and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Infow("Daemon started",
		"poll_interval", r.config.PollInterval,
		"mode", r.config.Mode,
		"workers", r.config.Workers)

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Infow("Daemon stopped")
			return nil
		case tickTime := <-ticker.C:
			r.mu.Lock()
			r.lastTickAt = tickTime
			r.ticksSinceStart++
			ticks := r.ticksSinceStart
			r.mu.Unlock()

			if r.config.StatusEveryTicks > 0 && ticks%int64(r.config.StatusEveryTicks) == 0 {
				r.logStatus(tickTime)
			}

			if err := r.RunCycle(ctx, tickTime.UTC()); err != nil {
				if errors.IsFatal(err) {
					r.log.Errorw("Daemon halting", logger.FieldError, err, "tick", ticks)
					return err
				}
				r.log.Warnw("Cycle error", logger.FieldError, err, "tick", ticks)
			}
		}
	}
}

// RunCycle claims every due job and dispatches each one. Handlers are
// resolved for the whole batch before anything runs, so an unknown job
// name never produces a half-dispatched cycle.
func (r *Runner) RunCycle(ctx context.Context, now time.Time) error {
	due, err := r.store.DueJobs(now)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		r.log.Debugw("No jobs due", "checked_at", now.Format(time.RFC3339))
		return nil
	}

	handlers := make([]Handler, len(due))
	for i, job := range due {
		handler := r.registry.Get(job.Name)
		if handler == nil {
			return errors.NewConfigurationf("no handler registered for job %q", job.Name)
		}
		handlers[i] = handler
	}

	r.log.Infow("Dispatching due jobs", logger.FieldCount, len(due), "mode", r.config.Mode)

	if r.config.Mode == config.ModeConcurrent && r.config.Workers > 1 && len(due) > 1 {
		return r.runConcurrent(ctx, due, handlers)
	}
	return r.runSequential(ctx, due, handlers)
}

func (r *Runner) runSequential(ctx context.Context, due []*schedule.Job, handlers []Handler) error {
	for i, job := range due {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := r.runJob(ctx, job, handlers[i]); err != nil {
			return err
		}
	}
	return nil
}

// runConcurrent fans the cycle's jobs out to a bounded set of workers
// and waits for all of them before returning, so cycles never overlap.
func (r *Runner) runConcurrent(ctx context.Context, due []*schedule.Job, handlers []Handler) error {
	type task struct {
		job     *schedule.Job
		handler Handler
	}

	workers := r.config.Workers
	if workers > len(due) {
		workers = len(due)
	}

	tasks := make(chan task)
	errs := make(chan error, len(due))
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range tasks {
				if err := r.runJob(ctx, t.job, t.handler); err != nil {
					errs <- err
				}
			}
		}()
	}

	for i, job := range due {
		tasks <- task{job: job, handler: handlers[i]}
	}
	close(tasks)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// runJob wraps one handler invocation in ledger events. Handler errors
// are recorded as a failed run and swallowed; a ledger write failure is
// returned because an unrecordable run must stop the daemon.
func (r *Runner) runJob(ctx context.Context, job *schedule.Job, handler Handler) error {
	runID := uuid.NewString()
	startedAt := time.Now().UTC()

	log := r.log.With(logger.FieldJob, job.Name, logger.FieldRunID, runID)

	_, err := r.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: history.EventStart,
		Status:    history.StatusStarted,
		StartedAt: startedAt,
		Details:   map[string]interface{}{"args": job.Args, "run_id": runID},
	})
	if err != nil {
		return err
	}

	log.Infow("Job started")

	result, execErr := handler.Execute(ctx, job)

	endedAt := time.Now().UTC()
	durationMs := endedAt.Sub(startedAt).Milliseconds()

	if execErr != nil {
		log.Errorw("Job failed",
			logger.FieldError, execErr,
			logger.FieldDurationMS, durationMs)

		_, err := r.ledger.Append(ctx, history.Event{
			JobName:    job.Name,
			EventType:  history.EventError,
			Status:     history.StatusFailed,
			StartedAt:  startedAt,
			EndedAt:    &endedAt,
			DurationMs: &durationMs,
			Details:    map[string]interface{}{"error": execErr.Error(), "run_id": runID},
		})
		return err
	}

	event := history.Event{
		JobName:    job.Name,
		EventType:  history.EventEnd,
		Status:     history.StatusSuccess,
		StartedAt:  startedAt,
		EndedAt:    &endedAt,
		DurationMs: &durationMs,
	}
	if result != nil {
		event.RowCount = result.RowCount
		event.Details = result.Details
	}
	if _, err := r.ledger.Append(ctx, event); err != nil {
		return err
	}

	if result != nil && result.RowCount != nil {
		log.Infow("Job completed",
			logger.FieldDurationMS, durationMs,
			logger.FieldRowCount, *result.RowCount)
	} else {
		log.Infow("Job completed", logger.FieldDurationMS, durationMs)
	}
	return nil
}

// logStatus logs the next scheduled job and memory usage
func (r *Runner) logStatus(now time.Time) {
	next, err := r.store.NextScheduledJob()
	if err != nil {
		r.log.Warnw("Failed to look up next scheduled job", logger.FieldError, err)
		return
	}

	metrics := GetSystemMetrics()

	if next == nil {
		r.log.Infow(fmt.Sprintf("Daemon - no scheduled jobs │ Mem: %.1f/%.1fGB (%.0f%%)",
			metrics.MemoryUsedGB, metrics.MemoryTotalGB, metrics.MemoryPercent))
		return
	}

	until := next.NextRunAt.Sub(now)
	if until < 0 {
		until = 0
	}
	r.log.Infow(fmt.Sprintf("Daemon - next job '%s' in %s │ Mem: %.1f/%.1fGB (%.0f%%)",
		next.Name, until.Round(time.Second),
		metrics.MemoryUsedGB, metrics.MemoryTotalGB, metrics.MemoryPercent))
}

// Stats returns daemon loop statistics
func (r *Runner) Stats() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	return map[string]interface{}{
		"last_tick_at":      r.lastTickAt,
		"ticks_since_start": r.ticksSinceStart,
		"poll_interval":     r.config.PollInterval.String(),
		"mode":              r.config.Mode,
		"workers":           r.config.Workers,
	}
}
