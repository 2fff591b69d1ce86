package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_auth_attempts_total",
			Help: "Total number of password login attempts",
		},
		[]string{"result"},
	)

	// TokenRefreshes records refresh attempts by result (success|failure).
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_token_refreshes_total",
			Help: "Total number of token refresh attempts",
		},
		[]string{"result"},
	)

	// RepositoryErrors counts storage faults by repository and normalized kind.
	RepositoryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "athena_repository_errors_total",
			Help: "Repository failures by normalized error kind",
		},
		[]string{"repository", "kind"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "athena_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
