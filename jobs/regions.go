package jobs

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/strata/client"
	"github.com/teranos/strata/daemon"
	"github.com/teranos/strata/history"
	"github.com/teranos/strata/internal/util"
	"github.com/teranos/strata/logger"
	"github.com/teranos/strata/schedule"
	"github.com/teranos/strata/temporal"
)

const regionTable = "region_codes"

// regionAttributes are the registry fields that may change over time;
// region_cd is the version key.
var regionAttributes = []string{
	"sido_cd",
	"sgg_cd",
	"umd_cd",
	"ri_cd",
	"locatjumin_cd",
	"locatjijuk_cd",
	"locatadd_nm",
	"locat_order",
	"locat_rm",
	"locathigh_cd",
	"locallow_nm",
	"adpt_de",
}

// RegionCodes refreshes the legal district code registry from the portal
// and versions it into the region_codes table. Args: table, locatadd_nm.
type RegionCodes struct {
	engine *temporal.Engine
	ledger *history.Ledger
	portal *client.OpenData
	log    *zap.SugaredLogger
}

// NewRegionCodes creates the region registry handler.
func NewRegionCodes(deps Deps) *RegionCodes {
	return &RegionCodes{
		engine: deps.Engine,
		ledger: deps.Ledger,
		portal: deps.OpenData,
		log:    deps.Logger,
	}
}

// Name returns the job name this handler serves
func (h *RegionCodes) Name() string { return "region_codes" }

// Execute fetches the full registry and versions it. A portal failure is
// recorded as an api_error event before the error surfaces.
func (h *RegionCodes) Execute(ctx context.Context, job *schedule.Job) (*daemon.Result, error) {
	table := job.StringArg("table", regionTable)
	filter := job.StringArg("locatadd_nm", "")

	h.log.Infow("Starting region code update", logger.FieldJob, job.Name)

	records, err := h.portal.FetchRegionCodes(ctx, filter, func(pageNo, pageCount, totalCount int) {
		h.log.Infof("Fetched page %d: %d records (total: %d)", pageNo, pageCount, totalCount)
	})
	if err != nil {
		h.log.Errorw("Region code fetch failed", logger.FieldJob, job.Name, logger.FieldError, err)
		if _, appendErr := h.ledger.Append(ctx, history.Event{
			JobName:   job.Name,
			EventType: history.EventAPIError,
			Status:    history.StatusFailed,
			Details:   map[string]interface{}{"error": err.Error()},
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
	}); err != nil {
		return nil, err
	}

	h.log.Infow("Fetched region codes", logger.FieldJob, job.Name, logger.FieldCount, len(records))

	inserted, err := h.engine.Upsert(ctx, table, toRecords(records), []string{"region_cd"}, regionAttributes)
	if err != nil {
		return nil, err
	}

	if _, err := h.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: history.EventSCD2Upsert,
		Status:    history.StatusSuccess,
		RowCount:  util.Ptr(int64(inserted)),
		Details:   map[string]interface{}{"table": table},
	}); err != nil {
		return nil, err
	}

	h.log.Infow("Updated region codes",
		logger.FieldJob, job.Name,
		logger.FieldTable, table,
		logger.FieldRowCount, inserted,
	)

	return &daemon.Result{
		RowCount: util.Ptr(int64(inserted)),
		Details: map[string]interface{}{
			"table":         table,
			"total_fetched": len(records),
		},
	}, nil
}
