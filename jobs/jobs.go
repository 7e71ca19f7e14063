// Package jobs bundles the collection handlers the daemon dispatches:
// mock transaction ingestion, the legal district code registry, land
// trade downloads, and trade export analysis.
package jobs

import (
	"go.uber.org/zap"

	"github.com/teranos/strata/client"
	"github.com/teranos/strata/daemon"
	"github.com/teranos/strata/history"
	"github.com/teranos/strata/temporal"
)

// Deps carries the shared dependencies the bundled handlers draw on.
type Deps struct {
	Engine    *temporal.Engine
	Ledger    *history.Ledger
	OpenData  *client.OpenData
	Mock      *client.MockSource
	ExportDir string
	Logger    *zap.SugaredLogger
}

// NewRegistry builds a handler registry with every bundled job
// registered under its schedule name.
func NewRegistry(deps Deps) (*daemon.Registry, error) {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop().Sugar()
	}
	if deps.Mock == nil {
		deps.Mock = client.NewMockSource()
	}

	registry := daemon.NewRegistry()
	for _, handler := range []daemon.Handler{
		NewTransactions(deps),
		NewRegionCodes(deps),
		NewTrade(deps),
		NewAnalyze(deps),
	} {
		if err := registry.Register(handler); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// toRecords adapts raw client records to the upsert engine's record type.
func toRecords(records []map[string]string) []temporal.Record {
	out := make([]temporal.Record, len(records))
	for i, record := range records {
		out[i] = temporal.Record(record)
	}
	return out
}
