package jobs

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/client"
	"github.com/teranos/strata/history"
)

const regionItems = `
  <item>
    <region_cd>1111010100</region_cd>
    <sido_cd>11</sido_cd>
    <sgg_cd>110</sgg_cd>
    <umd_cd>101</umd_cd>
    <ri_cd>00</ri_cd>
    <locatadd_nm>Seoul Jongno-gu Cheongun-dong</locatadd_nm>
    <locallow_nm>Cheongun-dong</locallow_nm>
    <adpt_de>19880423</adpt_de>
  </item>
  <item>
    <region_cd>2611010100</region_cd>
    <sido_cd>26</sido_cd>
    <sgg_cd>110</sgg_cd>
    <umd_cd>101</umd_cd>
    <ri_cd>00</ri_cd>
    <locatadd_nm>Busan Jung-gu Jungang-dong</locatadd_nm>
    <locallow_nm>Jungang-dong</locallow_nm>
    <adpt_de>19880423</adpt_de>
  </item>`

func TestRegionCodes_Execute(t *testing.T) {
	portal := testPortal(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("type") != "xml" {
			t.Errorf("expected type=xml, got %q", r.URL.Query().Get("type"))
		}
		fmt.Fprint(w, envelopeResponse(2, regionItems))
	})
	deps := testDeps(t, portal)
	handler := NewRegionCodes(deps)
	ctx := context.Background()

	result, err := handler.Execute(ctx, testJob("region_codes", nil))
	require.NoError(t, err)

	require.NotNil(t, result.RowCount)
	assert.EqualValues(t, 2, *result.RowCount)
	assert.Equal(t, "region_codes", result.Details["table"])
	assert.Equal(t, 2, result.Details["total_fetched"])

	rows, err := deps.Engine.Query(ctx,
		"SELECT region_cd, locatadd_nm FROM region_codes WHERE is_current = 1 ORDER BY region_cd")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1111010100", rows[0]["region_cd"])
	assert.Equal(t, "Seoul Jongno-gu Cheongun-dong", rows[0]["locatadd_nm"])

	events, err := deps.Ledger.RecentForJob(ctx, "region_codes", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, history.EventSCD2Upsert, events[0].EventType)
	assert.Equal(t, "region_codes", events[0].Details["table"])
	assert.Equal(t, history.EventDataLoad, events[1].EventType)
	require.NotNil(t, events[1].RowCount)
	assert.EqualValues(t, 2, *events[1].RowCount)
	assert.Nil(t, events[1].Details, "the load marker carries no details")
}

func TestRegionCodes_UnchangedRegistryIsNoOp(t *testing.T) {
	portal := testPortal(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, envelopeResponse(2, regionItems))
	})
	deps := testDeps(t, portal)
	handler := NewRegionCodes(deps)
	ctx := context.Background()

	_, err := handler.Execute(ctx, testJob("region_codes", nil))
	require.NoError(t, err)

	result, err := handler.Execute(ctx, testJob("region_codes", nil))
	require.NoError(t, err)

	require.NotNil(t, result.RowCount)
	assert.EqualValues(t, 0, *result.RowCount, "identical registry content versions nothing")
	assert.Equal(t, 2, result.Details["total_fetched"])
}

func TestRegionCodes_APIError(t *testing.T) {
	portal := testPortal(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, errorEnvelope)
	})
	deps := testDeps(t, portal)
	handler := NewRegionCodes(deps)
	ctx := context.Background()

	_, err := handler.Execute(ctx, testJob("region_codes", nil))
	require.Error(t, err)
	assert.True(t, client.IsAPIError(err))

	events, err := deps.Ledger.RecentForJob(ctx, "region_codes", 10)
	require.NoError(t, err)
	require.Len(t, events, 1, "only the api_error marker is recorded")
	assert.Equal(t, history.EventAPIError, events[0].EventType)
	assert.Equal(t, history.StatusFailed, events[0].Status)
	assert.Contains(t, events[0].Details["error"], "API error [99]")
}
