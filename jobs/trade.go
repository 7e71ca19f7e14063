package jobs

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/strata/client"
	"github.com/teranos/strata/daemon"
	"github.com/teranos/strata/history"
	"github.com/teranos/strata/internal/util"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/schedule"
	"github.com/teranos/strata/temporal"
)

// districtCodesQuery lists the unique 5-digit district codes currently
// in the region registry.
const districtCodesQuery = "SELECT DISTINCT substr(region_cd, 1, 5) AS code FROM region_codes WHERE is_current = 1 ORDER BY code"

// tradeProgressInterval is how many districts pass between traversal
// progress log lines.
const tradeProgressInterval = 10

// Trade downloads land trade records from the portal into CSV exports.
// With a region_cd arg it fetches one district and month; without one it
// traverses every current district in the region registry. Args:
// region_cd, deal_ymd, months.
type Trade struct {
	engine    *temporal.Engine
	ledger    *history.Ledger
	portal    *client.OpenData
	exportDir string
	log       *zap.SugaredLogger
	now       func() time.Time
}

// NewTrade creates the land trade download handler.
func NewTrade(deps Deps) *Trade {
	return &Trade{
		engine:    deps.Engine,
		ledger:    deps.Ledger,
		portal:    deps.OpenData,
		exportDir: deps.ExportDir,
		log:       deps.Logger,
		now:       time.Now,
	}
}

// Name returns the job name this handler serves
func (h *Trade) Name() string { return "trade" }

// Execute dispatches to single-district or full-traversal mode based on
// whether a region_cd arg is present.
func (h *Trade) Execute(ctx context.Context, job *schedule.Job) (*daemon.Result, error) {
	regionCd := job.StringArg("region_cd", "")
	dealYmd := job.StringArg("deal_ymd", monthYMD(h.now(), 0))

	if regionCd != "" {
		return h.runDistrict(ctx, job, regionCd, dealYmd)
	}
	return h.runTraversal(ctx, job)
}

// runDistrict fetches one district and month and exports it.
func (h *Trade) runDistrict(ctx context.Context, job *schedule.Job, regionCd, dealYmd string) (*daemon.Result, error) {
	h.log.Infow("Starting land trade fetch",
		logger.FieldJob, job.Name,
		"region_cd", regionCd,
		"deal_ymd", dealYmd,
	)

	records, err := h.portal.FetchLandTrade(ctx, regionCd, dealYmd, func(pageNo, pageCount, totalCount int) {
		h.log.Infof("Fetched page %d: %d records (total: %d)", pageNo, pageCount, totalCount)
	})
	if err != nil {
		h.log.Errorw("Land trade fetch failed", logger.FieldJob, job.Name, logger.FieldError, err)
		if _, appendErr := h.ledger.Append(ctx, history.Event{
			JobName:   job.Name,
			EventType: history.EventAPIError,
			Status:    history.StatusFailed,
			Details: map[string]interface{}{
				"error":     err.Error(),
				"region_cd": regionCd,
				"deal_ymd":  dealYmd,
			},
		}); appendErr != nil {
			return nil, appendErr
		}
		return nil, err
	}

	if _, err := h.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: history.EventDataLoad,
		Status:    history.StatusSuccess,
		RowCount:  util.Ptr(int64(len(records))),
		Details:   map[string]interface{}{"region_cd": regionCd, "deal_ymd": dealYmd},
	}); err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("land_trade_%s_%s_%s.csv", regionCd, dealYmd, h.timestamp())
	outputPath, err := writeCSV(h.exportDir, filename, records)
	if err != nil {
		return nil, err
	}

	if _, err := h.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: history.EventCSVSave,
		Status:    history.StatusSuccess,
		RowCount:  util.Ptr(int64(len(records))),
		Details:   map[string]interface{}{"output_path": outputPath},
	}); err != nil {
		return nil, err
	}

	h.log.Infow("Saved land trade records",
		logger.FieldJob, job.Name,
		logger.FieldRowCount, len(records),
		logger.FieldPath, outputPath,
	)

	return &daemon.Result{
		RowCount: util.Ptr(int64(len(records))),
		Details: map[string]interface{}{
			"output_path": outputPath,
			"region_cd":   regionCd,
			"deal_ymd":    dealYmd,
		},
	}, nil
}

// runTraversal fetches every registered district for the configured span
// of months and exports one combined CSV.
func (h *Trade) runTraversal(ctx context.Context, job *schedule.Job) (*daemon.Result, error) {
	months := job.IntArg("months", 1)
	if months < 1 {
		months = 1
	}

	h.log.Infow("Starting full land trade download", logger.FieldJob, job.Name, "months", months)

	codes, err := h.districtCodes(ctx)
	if err != nil {
		h.log.Warnw("Failed to read region codes from database", logger.FieldError, err)
	}
	if len(codes) == 0 {
		h.log.Warnw("No region codes in database; run the region_codes job first", logger.FieldJob, job.Name)
		return &daemon.Result{
			RowCount: util.Ptr(int64(0)),
			Details:  map[string]interface{}{"status": "no_region_codes"},
		}, nil
	}

	h.log.Infow("Found region codes", logger.FieldCount, len(codes))

	dealYmds := make([]string, months)
	for i := range dealYmds {
		dealYmds[i] = monthYMD(h.now(), i)
	}
	h.log.Infow("Fetching months", "deal_ymds", dealYmds)

	fetchedAt := h.now().UTC().Format(time.RFC3339)
	var all []map[string]string
	var failures []map[string]string

	for i, code := range codes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, dealYmd := range dealYmds {
			records, err := h.portal.FetchLandTrade(ctx, code, dealYmd, nil)
			if err != nil {
				h.log.Warnw("Failed to fetch district",
					"region_cd", code,
					"deal_ymd", dealYmd,
					logger.FieldError, err,
				)
				failures = append(failures, map[string]string{
					"region_cd": code,
					"deal_ymd":  dealYmd,
					"error":     err.Error(),
				})
				continue
			}
			for _, record := range records {
				record["_region_cd"] = code
				record["_deal_ymd"] = dealYmd
				record["_fetched_at"] = fetchedAt
			}
			all = append(all, records...)
		}

		if (i+1)%tradeProgressInterval == 0 {
			h.log.Infow("Download progress",
				"processed", i+1,
				"total", len(codes),
				logger.FieldRowCount, len(all),
			)
		}
	}

	if _, err := h.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: history.EventDataLoad,
		Status:    history.StatusSuccess,
		RowCount:  util.Ptr(int64(len(all))),
		Details: map[string]interface{}{
			"regions_processed": len(codes),
			"regions_failed":    len(failures),
			"months":            months,
		},
	}); err != nil {
		return nil, err
	}

	outputPath, err := writeCSV(h.exportDir, fmt.Sprintf("land_trade_all_%s.csv", h.timestamp()), all)
	if err != nil {
		return nil, err
	}

	if _, err := h.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: history.EventCSVSave,
		Status:    history.StatusSuccess,
		RowCount:  util.Ptr(int64(len(all))),
		Details:   map[string]interface{}{"output_path": outputPath},
	}); err != nil {
		return nil, err
	}

	h.log.Infow("Saved land trade records",
		logger.FieldJob, job.Name,
		logger.FieldRowCount, len(all),
		logger.FieldPath, outputPath,
	)

	details := map[string]interface{}{
		"output_path":       outputPath,
		"regions_processed": len(codes),
		"regions_failed":    len(failures),
	}
	if len(failures) > 0 {
		details["failures"] = failures
	}

	return &daemon.Result{
		RowCount: util.Ptr(int64(len(all))),
		Details:  details,
	}, nil
}

func (h *Trade) districtCodes(ctx context.Context) ([]string, error) {
	rows, err := h.engine.Query(ctx, districtCodesQuery)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		if code, ok := row["code"].(string); ok && code != "" {
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (h *Trade) timestamp() string {
	return h.now().Format("20060102_150405")
}

// monthYMD formats the month monthsAgo months before now as YYYYMM.
// Anchoring at the first of the month keeps end-of-month dates from
// normalizing into the wrong month.
func monthYMD(now time.Time, monthsAgo int) string {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, -monthsAgo, 0).Format("200601")
}
