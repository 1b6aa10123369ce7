// Package metrics exposes the process-level counters and gauges scraped
// off the API server's /metrics endpoint, following sdey02-AWS-Agent's
// internal/metrics/prometheus.go shape (package-level vectors registered
// once in Init, a fiber handler adapting promhttp.Handler).
package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProviderQueriesTotal counts every provideradapter.Adapter.Query
	// call, labeled by platform and outcome ("success"/"failure").
	ProviderQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citewatch_provider_queries_total",
			Help: "Total provider queries issued by the tracking engine.",
		},
		[]string{"platform", "outcome"},
	)

	// ProviderQueryDuration observes each provider query's response time.
	ProviderQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "citewatch_provider_query_duration_seconds",
			Help:    "Provider query duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"platform"},
	)

	// CitationsFoundTotal counts citations where the project's domain was
	// mentioned, labeled by platform.
	CitationsFoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citewatch_citations_found_total",
			Help: "Citations recorded with the tracked domain mentioned.",
		},
		[]string{"platform"},
	)

	// JobsEnqueuedTotal counts jobs the planner has enqueued, labeled by
	// platform.
	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "citewatch_jobs_enqueued_total",
			Help: "Tracking jobs enqueued by the planner.",
		},
		[]string{"platform"},
	)

	// CircuitBreakerOpen reports whether a provider's circuit breaker is
	// currently open (1) or closed/half-open (0).
	CircuitBreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "citewatch_circuit_breaker_open",
			Help: "1 if the provider's circuit breaker is open, 0 otherwise.",
		},
		[]string{"platform"},
	)
)

var initOnce sync.Once

// Init registers every collector with the default prometheus registry.
// Safe to call from multiple server instances in the same process (e.g.
// tests standing up several api.NewServer calls); registration happens
// exactly once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(ProviderQueriesTotal)
		prometheus.MustRegister(ProviderQueryDuration)
		prometheus.MustRegister(CitationsFoundTotal)
		prometheus.MustRegister(JobsEnqueuedTotal)
		prometheus.MustRegister(CircuitBreakerOpen)
	})
}

// Handler adapts promhttp.Handler into a fiber.Handler for mounting at
// /metrics.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
