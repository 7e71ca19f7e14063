package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/errors"
	stratatest "github.com/teranos/strata/internal/testing"
)

func TestAppend_StampsZeroStartedAt(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()

	before := time.Now().UTC().Add(-time.Second)
	id, err := ledger.Append(ctx, Event{
		JobName:   "transactions",
		EventType: EventStart,
		Status:    StatusStarted,
	})
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	events, err := ledger.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].StartedAt.IsZero())
	assert.False(t, events[0].StartedAt.Before(before))
}

func TestAppend_FullEventRoundTrips(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()

	startedAt := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	endedAt := startedAt.Add(1500 * time.Millisecond)
	durationMs := int64(1500)
	rowCount := int64(42)

	id, err := ledger.Append(ctx, Event{
		JobName:    "region_codes",
		EventType:  EventEnd,
		Status:     StatusSuccess,
		StartedAt:  startedAt,
		EndedAt:    &endedAt,
		DurationMs: &durationMs,
		RowCount:   &rowCount,
		Details:    map[string]interface{}{"source": "opendata", "page": "3"},
	})
	require.NoError(t, err)

	events, err := ledger.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	event := events[0]
	assert.Equal(t, id, event.ID)
	assert.Equal(t, "region_codes", event.JobName)
	assert.Equal(t, EventEnd, event.EventType)
	assert.Equal(t, StatusSuccess, event.Status)
	assert.True(t, event.StartedAt.Equal(startedAt))
	require.NotNil(t, event.EndedAt)
	assert.True(t, event.EndedAt.Equal(endedAt.Truncate(time.Second)),
		"ended_at is stored at second precision")
	require.NotNil(t, event.DurationMs)
	assert.Equal(t, int64(1500), *event.DurationMs)
	require.NotNil(t, event.RowCount)
	assert.Equal(t, int64(42), *event.RowCount)
	assert.Equal(t, map[string]interface{}{"source": "opendata", "page": "3"}, event.Details)
}

func TestAppend_OptionalFieldsStayNull(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()

	_, err := ledger.Append(ctx, Event{JobName: "trade", EventType: EventStart, Status: StatusStarted})
	require.NoError(t, err)

	events, err := ledger.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Nil(t, events[0].EndedAt)
	assert.Nil(t, events[0].DurationMs)
	assert.Nil(t, events[0].RowCount)
	assert.Nil(t, events[0].Details)
}

func TestRecent_NewestFirst(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		id, err := ledger.Append(ctx, Event{
			JobName:   "transactions",
			EventType: EventStart,
			Status:    StatusStarted,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	events, err := ledger.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, ids[2], events[0].ID)
	assert.Equal(t, ids[1], events[1].ID)
}

func TestRecentForJob_Filters(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()

	for _, job := range []string{"transactions", "region_codes", "transactions"} {
		_, err := ledger.Append(ctx, Event{JobName: job, EventType: EventStart, Status: StatusStarted})
		require.NoError(t, err)
	}

	events, err := ledger.RecentForJob(ctx, "transactions", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, event := range events {
		assert.Equal(t, "transactions", event.JobName)
	}

	events, err = ledger.RecentForJob(ctx, "missing", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAppend_MarkerEvents(t *testing.T) {
	conn := stratatest.CreateTestDB(t)
	ledger := NewLedger(conn)
	ctx := context.Background()

	rowCount := int64(120)
	_, err := ledger.Append(ctx, Event{
		JobName:   "transactions",
		EventType: EventSCD2Upsert,
		Status:    StatusCompleted,
		RowCount:  &rowCount,
		Details:   map[string]interface{}{"table": "transactions_scd"},
	})
	require.NoError(t, err)

	events, err := ledger.RecentForJob(ctx, "transactions", 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventSCD2Upsert, events[0].EventType)
	assert.Equal(t, StatusCompleted, events[0].Status)
}

func TestAppend_StorageError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	mock.ExpectExec("INSERT INTO ingestion_history").WillReturnError(fmt.Errorf("database is locked"))

	ledger := NewLedger(mockDB)
	_, err = ledger.Append(context.Background(), Event{JobName: "transactions", EventType: EventStart})
	require.Error(t, err)
	assert.True(t, errors.IsStorage(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
