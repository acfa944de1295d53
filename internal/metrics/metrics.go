package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipilot_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipilot_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Checkpoint metrics
	checkpointsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipilot_checkpoints_created_total",
			Help: "Total number of checkpoints created",
		},
	)

	checkpointFiles = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipilot_checkpoint_files",
			Help:    "Number of files captured per checkpoint",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	checkpointRestoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipilot_checkpoint_restores_total",
			Help: "Total number of checkpoint restores by outcome",
		},
		[]string{"outcome"},
	)

	preRevertRestoresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipilot_prerevert_restores_total",
			Help: "Total number of pre-revert restores by outcome",
		},
		[]string{"outcome"},
	)

	preRevertFallbackErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipilot_prerevert_fallback_errors_total",
			Help: "Total number of durable fallback failures by operation",
		},
		[]string{"op"},
	)

	// Stream metrics
	streamWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipilot_stream_writes_total",
			Help: "Total number of durable stream progress writes by trigger",
		},
		[]string{"trigger"},
	)

	streamTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipilot_stream_transitions_total",
			Help: "Total number of stream status transitions",
		},
		[]string{"status"},
	)

	streamsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipilot_streams_swept_total",
			Help: "Total number of stream records removed by the retention sweep",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers all collectors with the default registry
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpRequestsTotal,
			httpRequestDuration,
			checkpointsCreatedTotal,
			checkpointFiles,
			checkpointRestoresTotal,
			preRevertRestoresTotal,
			preRevertFallbackErrorsTotal,
			streamWritesTotal,
			streamTransitionsTotal,
			streamsSweptTotal,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCheckpointCreated records a new checkpoint and its size
func RecordCheckpointCreated(files int) {
	checkpointsCreatedTotal.Inc()
	checkpointFiles.Observe(float64(files))
}

// RecordCheckpointRestore records a checkpoint restore outcome
func RecordCheckpointRestore(outcome string) {
	checkpointRestoresTotal.WithLabelValues(outcome).Inc()
}

// RecordPreRevertRestore records a pre-revert restore outcome
func RecordPreRevertRestore(outcome string) {
	preRevertRestoresTotal.WithLabelValues(outcome).Inc()
}

// RecordFallbackError records a failed durable fallback operation
func RecordFallbackError(op string) {
	preRevertFallbackErrorsTotal.WithLabelValues(op).Inc()
}

// RecordStreamWrite records a durable stream progress write
func RecordStreamWrite(trigger string) {
	streamWritesTotal.WithLabelValues(trigger).Inc()
}

// RecordStreamTransition records a stream status transition
func RecordStreamTransition(status string) {
	streamTransitionsTotal.WithLabelValues(status).Inc()
}

// RecordStreamsSwept records records removed by the retention sweep
func RecordStreamsSwept(count int) {
	streamsSweptTotal.Add(float64(count))
}
