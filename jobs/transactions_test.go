package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/history"
)

func TestTransactions_Execute(t *testing.T) {
	deps := testDeps(t, nil)
	handler := NewTransactions(deps)
	ctx := context.Background()

	result, err := handler.Execute(ctx, testJob("transactions", map[string]interface{}{"limit": 7}))
	require.NoError(t, err)

	require.NotNil(t, result.RowCount)
	assert.EqualValues(t, 7, *result.RowCount, "a fresh batch inserts every record")
	assert.Equal(t, map[string]interface{}{"table": "transactions_scd"}, result.Details)

	rows, err := deps.Engine.Query(ctx, "SELECT COUNT(*) AS n FROM transactions_scd WHERE is_current = 1")
	require.NoError(t, err)
	assert.EqualValues(t, 7, rows[0]["n"])

	events, err := deps.Ledger.RecentForJob(ctx, "transactions", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, history.EventSCD2Upsert, events[0].EventType)
	assert.Equal(t, history.StatusSuccess, events[0].Status)
	require.NotNil(t, events[0].RowCount)
	assert.EqualValues(t, 7, *events[0].RowCount)
	assert.Equal(t, "transactions_scd", events[0].Details["table"])

	assert.Equal(t, history.EventDataLoad, events[1].EventType)
	require.NotNil(t, events[1].RowCount)
	assert.EqualValues(t, 7, *events[1].RowCount)
	assert.Equal(t, "mock", events[1].Details["source"])
}

func TestTransactions_DefaultLimit(t *testing.T) {
	deps := testDeps(t, nil)
	handler := NewTransactions(deps)

	result, err := handler.Execute(context.Background(), testJob("transactions", nil))
	require.NoError(t, err)

	require.NotNil(t, result.RowCount)
	assert.EqualValues(t, 5, *result.RowCount)
}

func TestTransactions_CustomTable(t *testing.T) {
	deps := testDeps(t, nil)
	handler := NewTransactions(deps)
	ctx := context.Background()

	result, err := handler.Execute(ctx, testJob("transactions", map[string]interface{}{
		"limit": 3,
		"table": "tx_archive",
	}))
	require.NoError(t, err)
	assert.Equal(t, "tx_archive", result.Details["table"])

	rows, err := deps.Engine.Query(ctx, "SELECT COUNT(*) AS n FROM tx_archive")
	require.NoError(t, err)
	assert.EqualValues(t, 3, rows[0]["n"])
}
