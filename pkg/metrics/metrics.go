package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Document metrics
	ShadowsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shadowd_shadows_total",
			Help: "Total number of locally stored shadow documents by deleted state",
		},
		[]string{"deleted"},
	)

	DocumentSizeBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "shadowd_document_size_bytes",
			Help:    "Size in bytes of shadow documents written to the local store",
			Buckets: []float64{256, 1024, 2048, 4096, 8192, 16384, 30720},
		},
	)

	// Request handler metrics
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowd_requests_total",
			Help: "Total number of Get/Update/Delete requests by operation and status",
		},
		[]string{"operation", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shadowd_request_duration_seconds",
			Help:    "Request handler duration in seconds by operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shadowd_queue_depth",
			Help: "Number of distinct shadows with pending sync work",
		},
	)

	QueueMergesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shadowd_queue_merges_total",
			Help: "Total number of sync requests merged into an already-queued request",
		},
	)

	// Sync executor metrics
	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shadowd_sync_duration_seconds",
			Help:    "Time taken to execute a sync request in seconds, by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	SyncOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowd_sync_outcomes_total",
			Help: "Total number of sync requests by kind and outcome (success/retry/skip/conflict)",
		},
		[]string{"kind", "outcome"},
	)

	ConflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowd_conflicts_total",
			Help: "Total number of sync conflicts by resolution (full/overwrite_local/overwrite_cloud)",
		},
		[]string{"resolution"},
	)

	// Cloud client metrics
	CloudCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shadowd_cloud_calls_total",
			Help: "Total number of calls to the cloud shadow service by method and status",
		},
		[]string{"method", "status"},
	)

	CloudCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shadowd_cloud_call_duration_seconds",
			Help:    "Cloud shadow service call duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	CloudRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "shadowd_cloud_rate_limited_total",
			Help: "Total number of cloud calls delayed by the outbound rate limiter",
		},
	)

	CloudConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shadowd_cloud_connected",
			Help: "Whether the cloud transport is currently connected (1) or not (0)",
		},
	)
)

func init() {
	prometheus.MustRegister(ShadowsTotal)
	prometheus.MustRegister(DocumentSizeBytes)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueMergesTotal)
	prometheus.MustRegister(SyncDuration)
	prometheus.MustRegister(SyncOutcomesTotal)
	prometheus.MustRegister(ConflictsTotal)
	prometheus.MustRegister(CloudCallsTotal)
	prometheus.MustRegister(CloudCallDuration)
	prometheus.MustRegister(CloudRateLimited)
	prometheus.MustRegister(CloudConnected)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
