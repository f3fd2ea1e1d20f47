package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLedgerCall(t *testing.T) {
	m := New()

	m.RecordLedgerCall("buyCredits", "confirmed")
	m.RecordLedgerCall("buyCredits", "confirmed")
	m.RecordLedgerCall("buyCredits", "timeout")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ledgerCalls.WithLabelValues("buyCredits", "confirmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ledgerCalls.WithLabelValues("buyCredits", "timeout")))
}

func TestInFlightGauge(t *testing.T) {
	m := New()

	m.IncrementInFlight()
	m.IncrementInFlight()
	m.DecrementInFlight()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpInFlight))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.RecordHTTPRequest("npc", "GET", "/health", "200", 3*time.Millisecond)
	m.RecordReconcile("projection_drift", "asset")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, "npc_http_requests_total"))
	assert.True(t, strings.Contains(text, `npc_reconcile_records_total{entity="asset",kind="projection_drift"} 1`))
}
