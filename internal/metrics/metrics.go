// Package metrics exposes Prometheus collectors for the wiki service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	dbRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiki_db_requests_total",
			Help: "Database service requests handled on the bus, labeled by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	dbRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wiki_db_request_duration_seconds",
			Help:    "Time the database consumer spent on a request, labeled by action.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"action"},
	)

	throttledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiki_http_throttled_total",
			Help: "Write requests rejected by the per-client rate limiter, labeled by route.",
		},
		[]string{"route"},
	)

	backupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wiki_backups_total",
			Help: "Backup snapshots attempted, labeled by status.",
		},
		[]string{"status"},
	)

	backupPages = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wiki_backup_last_pages",
			Help: "Number of pages in the most recent successful backup.",
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveDBRequest records one request handled by the database consumer.
func ObserveDBRequest(action, outcome string, duration time.Duration) {
	if action == "" {
		action = "none"
	}
	dbRequestsTotal.WithLabelValues(action, outcome).Inc()
	dbRequestDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// ObserveBackup records a backup attempt. pages is ignored on failure.
func ObserveBackup(status string, pages int) {
	backupsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		backupPages.Set(float64(pages))
	}
}

// ObserveThrottled counts one rejected write.
func ObserveThrottled(route string) {
	throttledTotal.WithLabelValues(route).Inc()
}
