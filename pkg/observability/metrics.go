// Package observability provides metrics capabilities for the project
// manager service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics namespace for all project manager metrics.
const metricsNamespace = "mcp_project_manager"

// Session lifecycle metrics.
var (
	// SessionsCreatedTotal counts sessions established, by any path.
	SessionsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_created_total",
			Help:      "Total sessions created",
		},
	)

	// SessionsDeletedTotal counts sessions removed explicitly.
	SessionsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_deleted_total",
			Help:      "Total sessions deleted before expiry",
		},
	)

	// SessionsExpiredTotal counts sessions collected by expiry sweeps.
	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_expired_total",
			Help:      "Total sessions removed by expiry sweeps",
		},
	)

	// SessionsActive tracks the live session count as of the last count.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Live sessions at the last count",
		},
	)

	// SweepDuration measures expiry sweep duration in seconds.
	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "session_sweep_duration_seconds",
			Help:      "Duration of session expiry sweeps in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)
)

// Webhook metrics.
var (
	// WebhookEventsTotal counts webhook deliveries by event type and outcome.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "webhook_events_total",
			Help:      "Total webhook deliveries processed",
		},
		[]string{"event", "status"},
	)
)

// GitHub API metrics.
var (
	// GitHubRequestsTotal counts outbound GitHub API calls by operation and status.
	GitHubRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "github_requests_total",
			Help:      "Total GitHub API requests",
		},
		[]string{"operation", "status"},
	)

	// GitHubRequestDuration measures outbound GitHub API call duration in seconds.
	GitHubRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "github_request_duration_seconds",
			Help:      "Duration of GitHub API requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)
)

// HTTP metrics.
var (
	// HTTPRequestsTotal counts inbound HTTP requests by route, method and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests served",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration measures inbound HTTP request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"route", "method"},
	)
)

func init() {
	// Register all metrics with the default registry.
	prometheus.MustRegister(
		// Session metrics
		SessionsCreatedTotal,
		SessionsDeletedTotal,
		SessionsExpiredTotal,
		SessionsActive,
		SweepDuration,
		// Webhook metrics
		WebhookEventsTotal,
		// GitHub API metrics
		GitHubRequestsTotal,
		GitHubRequestDuration,
		// HTTP metrics
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}
