// Package metrics provides Prometheus metrics collection for the ingestion
// and graph-projection core.
package metrics

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/chainledger/musicgraph/infrastructure/runtime"
)

// Metrics holds every collector the intake pipeline and graph projector
// update (spec §4.8/§4.9/§4.10).
type Metrics struct {
	// Intake metrics.
	EventsProcessedTotal *prometheus.CounterVec // by action_name
	EventsDuplicateTotal prometheus.Counter
	EventsFailedTotal    *prometheus.CounterVec // by error code
	IntakeDuration       *prometheus.HistogramVec

	// Governance accounting (spec §4.9 supplement): vote/finalize events
	// are stored but never projected; these counters are the only
	// observable trace of that path.
	VoteEventsTotal     prometheus.Counter
	FinalizeEventsTotal prometheus.Counter

	// Reconciliation sweep (spec §4.10 supplement).
	ReconcileSweepRetriesTotal prometheus.Counter

	// Graph projection / claim / merge engines.
	ProjectDuration prometheus.Histogram
	ClaimsTotal     *prometheus.CounterVec // by op: add|edit
	MergesTotal     prometheus.Counter

	// Graph store.
	GraphPoolOpen prometheus.Gauge

	// Service health.
	ServiceUptime prometheus.Gauge
	ServiceInfo   *prometheus.GaugeVec
}

// New creates a Metrics instance registered against the default registry.
func New(serviceName string) *Metrics {
	return NewWithRegistry(serviceName, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer,
// or unregistered (but still usable) if registerer is nil — the shape
// every test in this package uses via prometheus.NewRegistry().
func NewWithRegistry(serviceName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicgraph_events_processed_total",
				Help: "Anchored events successfully processed, by action name.",
			},
			[]string{"action_name"},
		),
		EventsDuplicateTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicgraph_events_duplicate_total",
			Help: "Anchored events rejected because their content hash was already processed.",
		}),
		EventsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicgraph_events_failed_total",
				Help: "Anchored events that failed processing, by error code.",
			},
			[]string{"code"},
		),
		IntakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "musicgraph_intake_duration_seconds",
				Help:    "Time from event dispatch to commit or rollback.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"action_name"},
		),

		VoteEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicgraph_vote_events_total",
			Help: "Governance vote anchored events stored (never projected).",
		}),
		FinalizeEventsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicgraph_finalize_events_total",
			Help: "Governance finalize anchored events stored (never projected).",
		}),

		ReconcileSweepRetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicgraph_reconcile_sweep_retries_total",
			Help: "Failed events successfully re-processed by intake during the reconciliation sweep.",
		}),

		ProjectDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "musicgraph_project_duration_seconds",
			Help:    "Time spent projecting one bundle into the graph store.",
			Buckets: prometheus.DefBuckets,
		}),
		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "musicgraph_claims_total",
				Help: "Claims written, by operation (add|edit).",
			},
			[]string{"op"},
		),
		MergesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "musicgraph_merges_total",
			Help: "Entities successfully merged.",
		}),

		GraphPoolOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "musicgraph_graph_pool_connections_open",
			Help: "Open connections in the graph store's driver pool.",
		}),

		ServiceUptime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "musicgraph_service_uptime_seconds",
			Help: "Service uptime in seconds.",
		}),
		ServiceInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "musicgraph_service_info",
				Help: "Service information.",
			},
			[]string{"service", "version", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.EventsProcessedTotal, m.EventsDuplicateTotal, m.EventsFailedTotal, m.IntakeDuration,
			m.VoteEventsTotal, m.FinalizeEventsTotal, m.ReconcileSweepRetriesTotal,
			m.ProjectDuration, m.ClaimsTotal, m.MergesTotal,
			m.GraphPoolOpen, m.ServiceUptime, m.ServiceInfo,
		)
	}

	m.ServiceInfo.WithLabelValues(serviceName, "1.0.0", string(runtime.Env())).Set(1)
	return m
}

// RecordEventProcessed records a successfully committed anchored event.
func (m *Metrics) RecordEventProcessed(actionName string, duration time.Duration) {
	m.EventsProcessedTotal.WithLabelValues(actionName).Inc()
	m.IntakeDuration.WithLabelValues(actionName).Observe(duration.Seconds())
}

// RecordEventFailed records a permanently failed anchored event.
func (m *Metrics) RecordEventFailed(code string) {
	m.EventsFailedTotal.WithLabelValues(code).Inc()
}

// RecordProjectDuration observes wall-clock time spent inside ProjectBundle.
func (m *Metrics) RecordProjectDuration(start time.Time) {
	m.ProjectDuration.Observe(time.Since(start).Seconds())
}

// RecordClaim records one ADD_CLAIM/EDIT_CLAIM operation.
func (m *Metrics) RecordClaim(op string) {
	m.ClaimsTotal.WithLabelValues(op).Inc()
}

// SetGraphPoolOpen sets the graph driver's current open-connection count.
func (m *Metrics) SetGraphPoolOpen(count int) {
	m.GraphPoolOpen.Set(float64(count))
}

// UpdateUptime updates the service uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.ServiceUptime.Set(time.Since(startTime).Seconds())
}

// Enabled returns whether Prometheus metrics should be exposed.
//
// Defaults:
// - production: disabled unless explicitly enabled via METRICS_ENABLED
// - non-production: enabled unless explicitly disabled via METRICS_ENABLED
func Enabled() bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv("METRICS_ENABLED")))
	if raw == "" {
		return !runtime.IsProduction()
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Global metrics instance
var (
	globalMetrics *Metrics
	globalMu      sync.Mutex
)

// Init initializes the global metrics instance.
func Init(serviceName string) *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New(serviceName)
	}
	return globalMetrics
}

// Global returns the global metrics instance.
func Global() *Metrics {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalMetrics == nil {
		globalMetrics = New("musicgraph")
	}
	return globalMetrics
}
