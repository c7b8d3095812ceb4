// Package metrics provides Prometheus metrics for restore runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	remoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverecover_remote_requests_total",
			Help: "Total number of requests sent to the storage service",
		},
		[]string{"backend", "op", "outcome"},
	)

	remoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driverecover_remote_request_duration_seconds",
			Help:    "Storage service request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	restoreRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "driverecover_restore_retries_total",
			Help: "Total number of retried restore calls",
		},
	)

	itemsRestoredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "driverecover_items_restored_total",
			Help: "Total number of restored items",
		},
		[]string{"type"},
	)

	walkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "driverecover_walk_duration_seconds",
			Help:    "Duration of complete restore walks",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 3600, 14400},
		},
		[]string{"status"},
	)
)

// RecordRemoteCall records one request to the storage service.
func RecordRemoteCall(backend, op string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	remoteRequestsTotal.WithLabelValues(backend, op, outcome).Inc()
	remoteRequestDuration.WithLabelValues(backend, op).Observe(d.Seconds())
}

// RecordRetry records a restore call that is about to be retried.
func RecordRetry() {
	restoreRetriesTotal.Inc()
}

// RecordRestored records a restored file or folder.
func RecordRestored(kind string) {
	itemsRestoredTotal.WithLabelValues(kind).Inc()
}

// ObserveWalk records the duration of a finished walk.
func ObserveWalk(status string, d time.Duration) {
	walkDuration.WithLabelValues(status).Observe(d.Seconds())
}

// Handler returns the HTTP handler for the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
