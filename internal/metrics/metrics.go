// Package metrics exposes Prometheus collectors for the orchestration core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "npc"

// Metrics holds every collector on its own registry so tests can build
// independent instances. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	ledgerCalls   *prometheus.CounterVec
	ledgerWait    *prometheus.HistogramVec
	projWrites    *prometheus.CounterVec
	driftRecords  *prometheus.CounterVec
	ledgerEvents  *prometheus.CounterVec
	repairResults *prometheus.CounterVec
}

// New creates a Metrics instance and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"service", "method", "path"}),
		ledgerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Ledger calls by method and outcome.",
		}, []string{"method", "outcome"}),
		ledgerWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "finality_wait_seconds",
			Help:      "Time from submission to observed finality.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"method"}),
		projWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "projection",
			Name:      "writes_total",
			Help:      "Projection writes by operation and outcome.",
		}, []string{"op", "outcome"}),
		driftRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "records_total",
			Help:      "Reconciliation records reported by kind and entity.",
		}, []string{"kind", "entity"}),
		ledgerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriber",
			Name:      "events_total",
			Help:      "Ledger events observed by the subscriber.",
		}, []string{"event"}),
		repairResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "repairs_total",
			Help:      "Repair attempts by resulting status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.ledgerCalls,
		m.ledgerWait,
		m.projWrites,
		m.driftRecords,
		m.ledgerEvents,
		m.repairResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() {
	if m != nil {
		m.httpInFlight.Inc()
	}
}

func (m *Metrics) DecrementInFlight() {
	if m != nil {
		m.httpInFlight.Dec()
	}
}

// RecordHTTPRequest records a finished HTTP request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordLedgerCall records a ledger call outcome ("confirmed", "rejected", "timeout", "read", "read_error").
func (m *Metrics) RecordLedgerCall(method, outcome string) {
	if m == nil {
		return
	}
	m.ledgerCalls.WithLabelValues(method, outcome).Inc()
}

// ObserveFinality records the time spent waiting for finality.
func (m *Metrics) ObserveFinality(method string, d time.Duration) {
	if m == nil {
		return
	}
	m.ledgerWait.WithLabelValues(method).Observe(d.Seconds())
}

// RecordProjectionWrite records a projection write outcome ("ok" or "error").
func (m *Metrics) RecordProjectionWrite(op, outcome string) {
	if m == nil {
		return
	}
	m.projWrites.WithLabelValues(op, outcome).Inc()
}

// RecordReconcile records a reconciliation record handed to the reporter.
func (m *Metrics) RecordReconcile(kind, entity string) {
	if m == nil {
		return
	}
	m.driftRecords.WithLabelValues(kind, entity).Inc()
}

// RecordLedgerEvent records an event decoded by the subscriber.
func (m *Metrics) RecordLedgerEvent(event string) {
	if m == nil {
		return
	}
	m.ledgerEvents.WithLabelValues(event).Inc()
}

// RecordRepair records the status a repair attempt left a record in.
func (m *Metrics) RecordRepair(status string) {
	if m == nil {
		return
	}
	m.repairResults.WithLabelValues(status).Inc()
}
