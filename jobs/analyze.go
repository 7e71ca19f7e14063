package jobs

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/strata/daemon"
	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/history"
	"github.com/teranos/strata/internal/util"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/schedule"
)

const (
	analyzeInputPattern = "land_trade_all_*.csv"
	failedRecordsDir    = "failed"
)

// Marker events specific to the analysis job.
const (
	eventAnalysisComplete   = "analysis_complete"
	eventFailedRecordsSaved = "failed_records_saved"
	eventReadError          = "read_error"
)

// requiredTradeFields must be present and non-empty on every record.
var requiredTradeFields = []string{"dealAmount", "umdNm", "jibun"}

// Analyze validates the newest combined land trade export and extracts
// failing records to a review file. Args: pattern.
type Analyze struct {
	ledger    *history.Ledger
	exportDir string
	log       *zap.SugaredLogger
	now       func() time.Time
}

// NewAnalyze creates the trade analysis handler.
func NewAnalyze(deps Deps) *Analyze {
	return &Analyze{
		ledger:    deps.Ledger,
		exportDir: deps.ExportDir,
		log:       deps.Logger,
		now:       time.Now,
	}
}

// Name returns the job name this handler serves
func (h *Analyze) Name() string { return "analyze" }

// Execute analyzes the newest export matching the input pattern.
func (h *Analyze) Execute(ctx context.Context, job *schedule.Job) (*daemon.Result, error) {
	pattern := job.StringArg("pattern", analyzeInputPattern)

	h.log.Infow("Starting trade data analysis", logger.FieldJob, job.Name)

	matches, err := filepath.Glob(filepath.Join(h.exportDir, pattern))
	if err != nil {
		return nil, errors.Wrap(err, "invalid input pattern")
	}
	if len(matches) == 0 {
		h.log.Warnw("No input files to analyze", logger.FieldPath, h.exportDir, "pattern", pattern)
		return &daemon.Result{
			RowCount: util.Ptr(int64(0)),
			Details:  map[string]interface{}{"status": "no_input"},
		}, nil
	}

	// Timestamped filenames sort chronologically, so the last match is
	// the newest export.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	inputFile := matches[0]

	h.log.Infow("Analyzing file", logger.FieldFile, inputFile)

	header, records, err := readCSV(inputFile)
	if err != nil {
		if _, appendErr := h.ledger.Append(ctx, history.Event{
			JobName:   job.Name,
			EventType: eventReadError,
			Status:    history.StatusFailed,
			Details:   map[string]interface{}{"error": err.Error(), "input_file": inputFile},
		}); appendErr != nil {
			return nil, appendErr
		}
		return nil, err
	}

	successCount := 0
	var failed []map[string]string
	for i, record := range records {
		ok, reason := analyzeRecord(record)
		if ok {
			successCount++
			continue
		}
		record["_error_message"] = reason
		record["_row_number"] = strconv.Itoa(i + 2) // header is row 1
		record["_source_file"] = inputFile
		failed = append(failed, record)
	}
	total := successCount + len(failed)

	if _, err := h.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: eventAnalysisComplete,
		Status:    history.StatusSuccess,
		RowCount:  util.Ptr(int64(total)),
		Details: map[string]interface{}{
			"success_count": successCount,
			"failed_count":  len(failed),
			"input_file":    inputFile,
		},
	}); err != nil {
		return nil, err
	}

	h.log.Infof("Analysis complete: %d total, %d passed, %d failed", total, successCount, len(failed))

	details := map[string]interface{}{
		"success_count": successCount,
		"failed_count":  len(failed),
		"input_file":    inputFile,
	}

	if len(failed) > 0 {
		fields := append(append([]string{}, header...), "_error_message", "_row_number", "_source_file")
		failedPath, err := writeCSVOrdered(
			filepath.Join(h.exportDir, failedRecordsDir),
			fmt.Sprintf("failed_records_%s.csv", h.now().Format("20060102_150405")),
			fields,
			failed,
		)
		if err != nil {
			return nil, err
		}

		if _, err := h.ledger.Append(ctx, history.Event{
			JobName:   job.Name,
			EventType: eventFailedRecordsSaved,
			Status:    history.StatusSuccess,
			RowCount:  util.Ptr(int64(len(failed))),
			Details:   map[string]interface{}{"output_path": failedPath},
		}); err != nil {
			return nil, err
		}

		h.log.Infow("Saved failed records", logger.FieldRowCount, len(failed), logger.FieldPath, failedPath)
		details["failed_output_path"] = failedPath
	}

	return &daemon.Result{
		RowCount: util.Ptr(int64(total)),
		Details:  details,
	}, nil
}

// analyzeRecord validates one trade record, returning false plus a
// reason when it fails review.
func analyzeRecord(record map[string]string) (bool, string) {
	for _, field := range requiredTradeFields {
		if strings.TrimSpace(record[field]) == "" {
			return false, fmt.Sprintf("missing required field: %s", field)
		}
	}

	price := strings.ReplaceAll(strings.TrimSpace(record["dealAmount"]), ",", "")
	amount, err := strconv.ParseInt(price, 10, 64)
	if err != nil {
		return false, fmt.Sprintf("invalid price: %q is not numeric", record["dealAmount"])
	}
	if amount <= 0 {
		return false, "invalid price: must be positive"
	}

	if strings.TrimSpace(record["dealYear"]) == "" || strings.TrimSpace(record["dealMonth"]) == "" {
		return false, "missing deal date"
	}

	return true, ""
}
