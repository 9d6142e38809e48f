package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_share_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_share_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_share_http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)
)

// Database metrics
var (
	DBQueryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_share_db_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"operation", "status"},
	)

	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_share_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"operation"},
	)

	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_share_db_connections_open",
			Help: "Number of open database connections",
		},
	)
)

// Upload pipeline metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_share_uploads_total",
			Help: "Total number of upload requests by outcome",
		},
		[]string{"status"}, // "accepted", "rejected", "failed"
	)

	UploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_share_upload_bytes_total",
			Help: "Total bytes accepted into content-addressed storage",
		},
	)

	UploadDuplicatesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_share_upload_duplicates_total",
			Help: "Uploads whose content hash matched an existing blob",
		},
	)

	ProbeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_share_probe_duration_seconds",
			Help:    "Media probe duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"category"}, // "image", "video"
	)
)

// Derivation metrics
var (
	DeriveJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_share_derive_jobs_total",
			Help: "Total number of derivation jobs by outcome",
		},
		[]string{"status"}, // "done", "retried", "failed"
	)

	DeriveJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_share_derive_job_duration_seconds",
			Help:    "Derivation job duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	DeriveJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_share_derive_jobs_in_flight",
			Help: "Number of derivation jobs currently running",
		},
	)
)

// Authentication metrics
var (
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_share_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"status"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_share_active_sessions",
			Help: "Number of active user sessions",
		},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_share_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}
