package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/config"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/middleware"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Ledger.PollInterval = time.Millisecond
	cfg.Ledger.FinalityTimeout = time.Second
	cfg.Identity.Verified = "p1,admin1"
	cfg.RateLimit.RequestsPerSecond = 0
	return cfg
}

func request(t *testing.T, n *node, method, path, body, user, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}
	if role != "" {
		req.Header.Set(middleware.RoleHeader, role)
	}
	rr := httptest.NewRecorder()
	n.router.ServeHTTP(rr, req)
	return rr
}

func TestWireServesEveryService(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := wire(ctx, testConfig(), logging.NewDiscard("npcd"), metrics.New())
	require.NoError(t, err)
	require.Len(t, n.services, 6)
	require.NoError(t, n.start(ctx))
	defer n.stop()

	rr := request(t, n, "GET", "/health", "", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
	assert.NotEmpty(t, rr.Header().Get(middleware.TraceHeader))

	rr = request(t, n, "GET", "/info", "", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"projection_breaker"`)

	body := `{"role":"producer","tx_address":"0x` + strings.Repeat("cd", 20) + `"}`
	rr = request(t, n, "POST", "/accounts", body, "p1", "producer")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = request(t, n, "GET", "/verification/queue", "", "admin1", "admin")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"p1"`)

	rr = request(t, n, "GET", "/reconciliation/records", "", "admin1", "admin")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = request(t, n, "GET", "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "npc_")
}

func TestWireRejectsMissingPublicKey(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Enabled = true
	cfg.Auth.PublicKeyPath = "testdata/missing.pem"

	_, err := wire(context.Background(), cfg, logging.NewDiscard("npcd"), metrics.New())
	assert.Error(t, err)
}

func TestResilientConfigOverrides(t *testing.T) {
	cfg := config.Default().Projection
	cfg.MaxRetries = 1
	cfg.RetryDelay = 5 * time.Millisecond
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Second

	rc := resilientConfig(cfg)
	assert.Equal(t, 1, rc.Retry.MaxRetries)
	assert.Equal(t, 5*time.Millisecond, rc.Retry.InitialBackoff)
	assert.Equal(t, 2, rc.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Second, rc.CircuitBreaker.Timeout)
}
