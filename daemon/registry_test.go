package daemon

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/schedule"
)

// stubHandler records invocations and returns a fixed outcome
type stubHandler struct {
	name    string
	result  *Result
	err     error
	execute func(ctx context.Context, job *schedule.Job) (*Result, error)

	mu    sync.Mutex
	calls []string
}

func (h *stubHandler) Name() string { return h.name }

func (h *stubHandler) Execute(ctx context.Context, job *schedule.Job) (*Result, error) {
	h.mu.Lock()
	h.calls = append(h.calls, job.Name)
	h.mu.Unlock()

	if h.execute != nil {
		return h.execute(ctx, job)
	}
	return h.result, h.err
}

func (h *stubHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&stubHandler{name: "transactions"}))
	require.NoError(t, registry.Register(&stubHandler{name: "region_codes"}))

	err := registry.Register(&stubHandler{name: "transactions"})
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
	assert.Contains(t, err.Error(), "transactions")
}

func TestRegistry_GetAndHas(t *testing.T) {
	registry := NewRegistry()
	handler := &stubHandler{name: "trade"}
	require.NoError(t, registry.Register(handler))

	assert.Equal(t, handler, registry.Get("trade"))
	assert.Nil(t, registry.Get("missing"))
	assert.True(t, registry.Has("trade"))
	assert.False(t, registry.Has("missing"))
}

func TestRegistry_NamesSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"trade", "analyze", "region_codes"} {
		require.NoError(t, registry.Register(&stubHandler{name: name}))
	}

	assert.Equal(t, []string{"analyze", "region_codes", "trade"}, registry.Names())
}
