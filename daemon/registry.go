// Package daemon polls the schedule store and dispatches due jobs to
// registered handlers, recording every run in the history ledger.
package daemon

import (
	"context"
	"sort"
	"sync"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/schedule"
)

// Result is what a handler reports back on success. RowCount feeds the
// end event's row_count column, Details land in the event details.
type Result struct {
	RowCount *int64
	Details  map[string]interface{}
}

// Handler executes one job type. Implementations decode what they need
// from job.Args and should honor context cancellation on long work.
type Handler interface {
	// Name returns the job name this handler serves
	Name() string

	// Execute runs the job. Returning an error records a failed run;
	// the daemon itself keeps going.
	Execute(ctx context.Context, job *schedule.Job) (*Result, error)
}

// Registry maps job names to handlers. The set is fixed at process
// start: registration happens before the daemon's first cycle, and an
// unknown name at dispatch time is a deployment error.
type Registry struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler under its name
func (r *Registry) Register(handler Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := handler.Name()
	if _, exists := r.handlers[name]; exists {
		return errors.NewConfigurationf("handler already registered for job %q", name)
	}
	r.handlers[name] = handler
	return nil
}

// Get retrieves the handler for a job name. Returns nil if none is
// registered.
func (r *Registry) Get(name string) Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[name]
}

// Has checks if a handler is registered for a job name
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[name]
	return exists
}

// Names returns all registered job names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
