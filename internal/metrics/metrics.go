package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "yield_tracker"

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Ingestion metrics ──────────────────────────────────────────────────

var (
	IngestRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "runs_total",
		Help:      "Total number of ingestion runs per source.",
	}, []string{"source", "status"})

	IngestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Duration of one ingestion run per source in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	}, []string{"source"})

	IngestItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "items_total",
		Help:      "Items crawled (found) and persisted (written) per source.",
	}, []string{"source", "stage"})

	UpsertFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "upsert_failures_total",
		Help:      "Snapshots lost because the store rejected the write.",
	}, []string{"source"})

	IngestLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful run per source.",
	}, []string{"source"})

	ItemsSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "items_skipped_total",
		Help:      "Upstream calls skipped after a non-2xx status or timeout.",
	}, []string{"source"})

	RenderAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "render",
		Name:      "attempts_total",
		Help:      "Browser rendering attempts per source.",
	}, []string{"source", "status"})
)

// ── Scheduler metrics ──────────────────────────────────────────────────

var (
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Wall-clock duration of one fan-out tick.",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	TickSourcesFailed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "scheduler",
		Name:      "sources_failed",
		Help:      "Number of sources that failed in the last tick.",
	})
)

// ── Meta cache metrics ─────────────────────────────────────────────────

var (
	CacheRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Meta cache lookups by key and result (hit, miss, error).",
	}, []string{"key", "result"})
)
