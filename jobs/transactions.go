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

const transactionsTable = "transactions_scd"

var transactionAttributes = []string{"amount", "currency", "updated_at"}

// Transactions pulls a batch from the mock transaction feed and versions
// it into the transactions SCD table. Args: limit, table.
type Transactions struct {
	engine *temporal.Engine
	ledger *history.Ledger
	source *client.MockSource
	log    *zap.SugaredLogger
}

// NewTransactions creates the transactions handler.
func NewTransactions(deps Deps) *Transactions {
	return &Transactions{
		engine: deps.Engine,
		ledger: deps.Ledger,
		source: deps.Mock,
		log:    deps.Logger,
	}
}

// Name returns the job name this handler serves
func (h *Transactions) Name() string { return "transactions" }

// Execute pulls, records the load, then versions the batch.
func (h *Transactions) Execute(ctx context.Context, job *schedule.Job) (*daemon.Result, error) {
	limit := job.IntArg("limit", client.DefaultMockLimit)
	table := job.StringArg("table", transactionsTable)

	records := h.source.Transactions(limit)

	if _, err := h.ledger.Append(ctx, history.Event{
		JobName:   job.Name,
		EventType: history.EventDataLoad,
		Status:    history.StatusSuccess,
		RowCount:  util.Ptr(int64(len(records))),
		Details:   map[string]interface{}{"source": "mock"},
	}); err != nil {
		return nil, err
	}

	inserted, err := h.engine.Upsert(ctx, table, toRecords(records), []string{"tx_id"}, transactionAttributes)
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

	h.log.Infow("Versioned transaction batch",
		logger.FieldJob, job.Name,
		logger.FieldTable, table,
		logger.FieldRowCount, inserted,
	)

	return &daemon.Result{
		RowCount: util.Ptr(int64(inserted)),
		Details:  map[string]interface{}{"table": table},
	}, nil
}
