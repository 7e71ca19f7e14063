package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/strata/history"
)

func validTradeRecord(umdNm string) map[string]string {
	return map[string]string{
		"dealAmount": "82,500",
		"dealYear":   "2024",
		"dealMonth":  "1",
		"umdNm":      umdNm,
		"jibun":      "1-1",
	}
}

func TestAnalyzeRecord(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(record map[string]string)
		wantOK     bool
		wantReason string
	}{
		{"valid record", func(record map[string]string) {}, true, ""},
		{"missing dealAmount", func(record map[string]string) {
			delete(record, "dealAmount")
		}, false, "missing required field: dealAmount"},
		{"blank umdNm", func(record map[string]string) {
			record["umdNm"] = "   "
		}, false, "missing required field: umdNm"},
		{"missing jibun", func(record map[string]string) {
			delete(record, "jibun")
		}, false, "missing required field: jibun"},
		{"price with thousands separators", func(record map[string]string) {
			record["dealAmount"] = "1,250,000"
		}, true, ""},
		{"zero price", func(record map[string]string) {
			record["dealAmount"] = "0"
		}, false, "invalid price: must be positive"},
		{"negative price", func(record map[string]string) {
			record["dealAmount"] = "-500"
		}, false, "invalid price: must be positive"},
		{"non-numeric price", func(record map[string]string) {
			record["dealAmount"] = "abc"
		}, false, `invalid price: "abc" is not numeric`},
		{"missing deal year", func(record map[string]string) {
			delete(record, "dealYear")
		}, false, "missing deal date"},
		{"missing deal month", func(record map[string]string) {
			record["dealMonth"] = ""
		}, false, "missing deal date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := validTradeRecord("Cheongun-dong")
			tt.mutate(record)

			ok, reason := analyzeRecord(record)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestAnalyze_Execute(t *testing.T) {
	deps := testDeps(t, nil)

	bad := validTradeRecord("Sajik-dong")
	bad["dealAmount"] = "abc"
	records := []map[string]string{
		validTradeRecord("Cheongun-dong"),
		bad,
		validTradeRecord("Samcheong-dong"),
	}
	inputPath, err := writeCSV(deps.ExportDir, "land_trade_all_20260801_120000.csv", records)
	require.NoError(t, err)

	handler := NewAnalyze(deps)
	handler.now = fixedClock()
	ctx := context.Background()

	result, err := handler.Execute(ctx, testJob("analyze", nil))
	require.NoError(t, err)

	require.NotNil(t, result.RowCount)
	assert.EqualValues(t, 3, *result.RowCount)
	assert.Equal(t, 2, result.Details["success_count"])
	assert.Equal(t, 1, result.Details["failed_count"])
	assert.Equal(t, inputPath, result.Details["input_file"])

	failedPath, ok := result.Details["failed_output_path"].(string)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(deps.ExportDir, "failed"), filepath.Dir(failedPath))
	assert.Equal(t, "failed_records_20260823_103000.csv", filepath.Base(failedPath))

	header, failedRecords, err := readCSV(failedPath)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"dealAmount", "dealMonth", "dealYear", "jibun", "umdNm",
		"_error_message", "_row_number", "_source_file",
	}, header)
	require.Len(t, failedRecords, 1)
	assert.Equal(t, "abc", failedRecords[0]["dealAmount"])
	assert.Equal(t, `invalid price: "abc" is not numeric`, failedRecords[0]["_error_message"])
	assert.Equal(t, "3", failedRecords[0]["_row_number"], "header is row 1, bad record is second data row")
	assert.Equal(t, inputPath, failedRecords[0]["_source_file"])

	events, err := deps.Ledger.RecentForJob(ctx, "analyze", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventFailedRecordsSaved, events[0].EventType)
	assert.Equal(t, failedPath, events[0].Details["output_path"])
	assert.Equal(t, eventAnalysisComplete, events[1].EventType)
	assert.Equal(t, history.StatusSuccess, events[1].Status)
	require.NotNil(t, events[1].RowCount)
	assert.EqualValues(t, 3, *events[1].RowCount)
	assert.EqualValues(t, 2, events[1].Details["success_count"])
	assert.EqualValues(t, 1, events[1].Details["failed_count"])
}

func TestAnalyze_AllValid(t *testing.T) {
	deps := testDeps(t, nil)
	_, err := writeCSV(deps.ExportDir, "land_trade_all_20260801_120000.csv",
		[]map[string]string{validTradeRecord("Cheongun-dong")})
	require.NoError(t, err)

	handler := NewAnalyze(deps)
	ctx := context.Background()

	result, err := handler.Execute(ctx, testJob("analyze", nil))
	require.NoError(t, err)

	assert.Equal(t, 1, result.Details["success_count"])
	assert.Equal(t, 0, result.Details["failed_count"])
	assert.NotContains(t, result.Details, "failed_output_path")

	_, err = os.Stat(filepath.Join(deps.ExportDir, "failed"))
	assert.True(t, os.IsNotExist(err), "no review file without failures")

	events, err := deps.Ledger.RecentForJob(ctx, "analyze", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventAnalysisComplete, events[0].EventType)
}

func TestAnalyze_NoInput(t *testing.T) {
	deps := testDeps(t, nil)
	handler := NewAnalyze(deps)
	ctx := context.Background()

	result, err := handler.Execute(ctx, testJob("analyze", nil))
	require.NoError(t, err)

	require.NotNil(t, result.RowCount)
	assert.EqualValues(t, 0, *result.RowCount)
	assert.Equal(t, "no_input", result.Details["status"])

	events, err := deps.Ledger.RecentForJob(ctx, "analyze", 10)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestAnalyze_PicksNewestExport(t *testing.T) {
	deps := testDeps(t, nil)

	stale := validTradeRecord("Old-dong")
	stale["dealAmount"] = "abc"
	_, err := writeCSV(deps.ExportDir, "land_trade_all_20260101_000000.csv",
		[]map[string]string{stale})
	require.NoError(t, err)

	newest, err := writeCSV(deps.ExportDir, "land_trade_all_20260102_000000.csv",
		[]map[string]string{validTradeRecord("New-dong")})
	require.NoError(t, err)

	handler := NewAnalyze(deps)

	result, err := handler.Execute(context.Background(), testJob("analyze", nil))
	require.NoError(t, err)

	assert.Equal(t, newest, result.Details["input_file"])
	assert.Equal(t, 0, result.Details["failed_count"], "the stale export is not read")
}

func TestAnalyze_ReadError(t *testing.T) {
	deps := testDeps(t, nil)

	inputPath := filepath.Join(deps.ExportDir, "land_trade_all_20260801_120000.csv")
	require.NoError(t, os.WriteFile(inputPath, []byte("dealAmount,umdNm\n\"82,500\n"), 0o644))

	handler := NewAnalyze(deps)
	ctx := context.Background()

	_, err := handler.Execute(ctx, testJob("analyze", nil))
	require.Error(t, err)

	events, err := deps.Ledger.RecentForJob(ctx, "analyze", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, eventReadError, events[0].EventType)
	assert.Equal(t, history.StatusFailed, events[0].Status)
	assert.Equal(t, inputPath, events[0].Details["input_file"])
	assert.NotEmpty(t, events[0].Details["error"])
}

func TestWriteCSV(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		dir := t.TempDir()
		path, err := writeCSV(dir, "out.csv", []map[string]string{
			{"b": "2", "a": "1"},
			{"a": "3", "c": "4"},
		})
		require.NoError(t, err)

		header, records, err := readCSV(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, header, "columns are the sorted union of keys")
		require.Len(t, records, 2)
		assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": ""}, records[0])
		assert.Equal(t, map[string]string{"a": "3", "b": "", "c": "4"}, records[1])
	})

	t.Run("empty batch writes a BOM-only file", func(t *testing.T) {
		dir := t.TempDir()
		path, err := writeCSV(dir, "empty.csv", nil)
		require.NoError(t, err)

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, utf8BOM, string(raw))
	})

	t.Run("creates nested export directories", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "deep", "exports")
		path, err := writeCSV(dir, "out.csv", []map[string]string{{"a": "1"}})
		require.NoError(t, err)
		assert.Equal(t, dir, filepath.Dir(path))
	})
}
