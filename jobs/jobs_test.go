package jobs

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/strata/client"
	"github.com/teranos/strata/history"
	stratatest "github.com/teranos/strata/internal/testing"
	"github.com/teranos/strata/schedule"
	"github.com/teranos/strata/temporal"
)

// testDeps wires handler dependencies against an in-memory database and
// a temp export dir. portal may be nil for handlers that never fetch.
func testDeps(t *testing.T, portal *client.OpenData) Deps {
	t.Helper()

	conn := stratatest.CreateTestDB(t)
	return Deps{
		Engine:    temporal.NewEngine(conn),
		Ledger:    history.NewLedger(conn),
		OpenData:  portal,
		Mock:      client.NewMockSource(),
		ExportDir: t.TempDir(),
		Logger:    zaptest.NewLogger(t).Sugar(),
	}
}

// testPortal builds an OpenData client against a local test server.
func testPortal(t *testing.T, handler http.HandlerFunc) *client.OpenData {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	portal := client.NewOpenData(client.Config{
		ServiceKey: "test-key",
		BaseURL:    server.URL,
	})
	portal.SetHTTPClient(server.Client())
	return portal
}

// envelopeResponse renders a success envelope holding the given item
// fragments.
func envelopeResponse(totalCount int, items string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<response>
  <header><resultCode>00</resultCode><resultMsg>NORMAL SERVICE.</resultMsg></header>
  <body><totalCount>%d</totalCount><items>%s</items></body>
</response>`, totalCount, items)
}

const errorEnvelope = `<response>
  <header><resultCode>99</resultCode><resultMsg>SERVICE ERROR.</resultMsg></header>
  <body><totalCount>0</totalCount></body>
</response>`

func testJob(name string, args map[string]interface{}) *schedule.Job {
	return &schedule.Job{Name: name, Args: args}
}

func TestNewRegistry(t *testing.T) {
	registry, err := NewRegistry(testDeps(t, nil))
	require.NoError(t, err)

	assert.Equal(t, []string{"analyze", "region_codes", "trade", "transactions"}, registry.Names())
	for _, name := range registry.Names() {
		handler := registry.Get(name)
		require.NotNil(t, handler)
		assert.Equal(t, name, handler.Name())
	}
}

func TestNewRegistry_DefaultsOptionalDeps(t *testing.T) {
	deps := testDeps(t, nil)
	deps.Logger = nil
	deps.Mock = nil

	registry, err := NewRegistry(deps)
	require.NoError(t, err)
	assert.True(t, registry.Has("transactions"))
}
