// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Verification metrics
	VerificationRunsTotal *prometheus.CounterVec
	VerificationDuration  prometheus.Histogram
	CallOutcomes          *prometheus.CounterVec
	PendingCalls          prometheus.Gauge

	// Backfill metrics
	BackfillRunsTotal *prometheus.CounterVec
	BackfillItems     *prometheus.CounterVec

	// Provider metrics
	ProviderLatency  *prometheus.HistogramVec
	ProviderErrors   *prometheus.CounterVec
	ProviderCacheHit *prometheus.CounterVec

	// API metrics
	LeaderboardRequests prometheus.Counter
	EventSubscribers    prometheus.Gauge

	// Health metrics
	LastSuccessfulVerification prometheus.Gauge
}

// NewMetrics creates a new Metrics instance registered on reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "memecoin_calls"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		VerificationRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "runs_total",
			Help:      "Total number of verification runs by result",
		}, []string{"result"}),
		VerificationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "duration_seconds",
			Help:      "Verification run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		CallOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "call_outcomes_total",
			Help:      "Total number of processed calls by resulting status",
		}, []string{"status"}),
		PendingCalls: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "verification",
			Name:      "pending_calls",
			Help:      "Number of due PENDING calls loaded by the last run",
		}),

		BackfillRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "runs_total",
			Help:      "Total number of backfill runs by result",
		}, []string{"result"}),
		BackfillItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backfill",
			Name:      "items_total",
			Help:      "Total number of backfill items by result",
		}, []string{"result"}),

		ProviderLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_latency_seconds",
			Help:      "Price provider request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		ProviderErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Total number of failed price provider requests",
		}, []string{"endpoint", "kind"}),
		ProviderCacheHit: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "cache_lookups_total",
			Help:      "Price history cache lookups by result",
		}, []string{"result"}),

		LeaderboardRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "leaderboard_requests_total",
			Help:      "Total number of leaderboard pages computed",
		}),
		EventSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "event_subscribers",
			Help:      "Number of connected event stream clients",
		}),

		LastSuccessfulVerification: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_verification_timestamp",
			Help:      "Unix timestamp of last completed verification run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordVerificationRun records a finished verification run.
// result is one of "completed", "interrupted", "skipped", "failed".
func RecordVerificationRun(result string, d time.Duration) {
	DefaultMetrics.VerificationRunsTotal.WithLabelValues(result).Inc()
	if result == "skipped" {
		return
	}
	DefaultMetrics.VerificationDuration.Observe(d.Seconds())
	if result == "completed" {
		DefaultMetrics.LastSuccessfulVerification.SetToCurrentTime()
	}
}

// RecordCallOutcome increments the outcome counter for status.
func RecordCallOutcome(status string) {
	DefaultMetrics.CallOutcomes.WithLabelValues(status).Inc()
}

// SetPendingCalls updates the pending calls gauge.
func SetPendingCalls(n int) {
	DefaultMetrics.PendingCalls.Set(float64(n))
}

// RecordBackfillRun records a finished backfill run and its item counts.
func RecordBackfillRun(result string, processed, failed int) {
	DefaultMetrics.BackfillRunsTotal.WithLabelValues(result).Inc()
	DefaultMetrics.BackfillItems.WithLabelValues("processed").Add(float64(processed))
	DefaultMetrics.BackfillItems.WithLabelValues("failed").Add(float64(failed))
}

// RecordProviderRequest records a price provider request.
func RecordProviderRequest(endpoint string, d time.Duration, err error) {
	DefaultMetrics.ProviderLatency.WithLabelValues(endpoint).Observe(d.Seconds())
	if err != nil {
		kind := "error"
		var timeout interface{ Timeout() bool }
		if errors.As(err, &timeout) && timeout.Timeout() {
			kind = "timeout"
		}
		DefaultMetrics.ProviderErrors.WithLabelValues(endpoint, kind).Inc()
	}
}

// RecordCacheLookup records a price history cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.ProviderCacheHit.WithLabelValues(result).Inc()
}

// RecordLeaderboardRequest increments the leaderboard request counter.
func RecordLeaderboardRequest() {
	DefaultMetrics.LeaderboardRequests.Inc()
}

// SetEventSubscribers updates the connected event clients gauge.
func SetEventSubscribers(n int) {
	DefaultMetrics.EventSubscribers.Set(float64(n))
}
