package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NeptuneChain-Inc/NPC-Backend/internal/logging"
	"github.com/NeptuneChain-Inc/NPC-Backend/internal/metrics"
)

func TestCORS(t *testing.T) {
	h := NewCORSMiddleware([]string{"https://app.neptunechain.io/", " "}).Handler(echo)

	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Origin", "https://app.neptunechain.io")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.neptunechain.io", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), RoleHeader)

	req = httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Origin", "https://evil.neptunechain.io.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest("OPTIONS", "/api", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSAllowAll(t *testing.T) {
	h := NewCORSMiddleware([]string{"*"}).Handler(echo)
	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimiterPerCaller(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	h := rl.Handler(echo)

	call := func(user, remote string) int {
		req := httptest.NewRequest("GET", "/api", nil)
		req.RemoteAddr = remote
		if user != "" {
			req = req.WithContext(logging.WithUserID(req.Context(), user))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("u1", "10.0.0.1:1000"))
	assert.Equal(t, http.StatusOK, call("u1", "10.0.0.1:1000"))
	assert.Equal(t, http.StatusTooManyRequests, call("u1", "10.0.0.1:1000"))
	// another user from the same address has its own bucket
	assert.Equal(t, http.StatusOK, call("u2", "10.0.0.1:1000"))
	// anonymous callers are keyed by IP without the port
	assert.Equal(t, http.StatusOK, call("", "10.0.0.9:1"))
	assert.Equal(t, http.StatusOK, call("", "10.0.0.9:2"))
	assert.Equal(t, http.StatusTooManyRequests, call("", "10.0.0.9:3"))
	assert.Equal(t, 3, rl.Len())
}

func TestRateLimiterCleanup(t *testing.T) {
	rl := NewRateLimiter(5, 5, nil)
	base := time.Now()
	rl.now = func() time.Time { return base }
	rl.getLimiter("old")
	rl.now = func() time.Time { return base.Add(limiterIdle + time.Minute) }
	rl.getLimiter("fresh")

	require.NoError(t, rl.Cleanup(context.Background()))
	assert.Equal(t, 1, rl.Len())
}

func TestRateLimiterDisabled(t *testing.T) {
	h := NewRateLimiter(0, 0, nil).Handler(echo)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/api", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestTracingSetsTraceID(t *testing.T) {
	var seen string
	h := NewTracingMiddleware(nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set(TraceHeader, "trace-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "trace-123", seen)
	assert.Equal(t, "trace-123", rec.Header().Get(TraceHeader))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api", nil))
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
	assert.Equal(t, seen, rec.Header().Get(TraceHeader))
}

func TestMetricsMiddlewareRecordsRouteTemplate(t *testing.T) {
	m := metrics.New()
	r := mux.NewRouter()
	r.Use(MetricsMiddleware("npcd", m))
	r.HandleFunc("/certificates/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/certificates/42", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "path" && l.GetValue() == "/certificates/{id}" {
					found = true
				}
			}
		}
	}
	assert.True(t, found)
}
