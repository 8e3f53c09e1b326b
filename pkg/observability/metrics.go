package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the sharing service
type Metrics struct {
	// Sharing operation metrics
	SharingOperationsTotal   *prometheus.CounterVec
	SharingOperationDuration *prometheus.HistogramVec
	SharingErrorsTotal       *prometheus.CounterVec

	// Access cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Reconciler metrics
	ReconcilerRunsTotal    *prometheus.CounterVec
	ReconcilerOrphansSwept prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		SharingOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharing_operations_total",
				Help: "Total number of sharing operations by operation and status",
			},
			[]string{"operation", "status"},
		),
		SharingOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sharing_operation_duration_seconds",
				Help:    "Duration of sharing operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		SharingErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharing_errors_total",
				Help: "Total number of sharing operation errors by kind",
			},
			[]string{"operation", "kind"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sharing_access_cache_hits_total",
				Help: "Total number of access-decision cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sharing_access_cache_misses_total",
				Help: "Total number of access-decision cache misses",
			},
		),
		ReconcilerRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sharing_reconciler_runs_total",
				Help: "Total number of reconciliation passes by status",
			},
			[]string{"status"},
		),
		ReconcilerOrphansSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sharing_reconciler_orphans_swept_total",
				Help: "Total number of orphaned sharing rows removed",
			},
		),
		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharing_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sharing_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.SharingOperationsTotal,
		m.SharingOperationDuration,
		m.SharingErrorsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReconcilerRunsTotal,
		m.ReconcilerOrphansSwept,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// ObserveOperation records one sharing operation outcome
func (m *Metrics) ObserveOperation(operation, status string, duration time.Duration) {
	m.SharingOperationsTotal.WithLabelValues(operation, status).Inc()
	m.SharingOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler returns an HTTP handler serving the metrics registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
