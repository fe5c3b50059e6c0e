// Package telemetry registers Prometheus metrics for the tracker
// service and exposes the scrape handler.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datewatch_cycles_total",
			Help: "Total poll cycles executed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	oracleCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datewatch_oracle_calls_total",
			Help: "Total oracle invocations, labeled by result.",
		},
		[]string{"result"},
	)

	fetchDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datewatch_fetch_duration_seconds",
			Help:    "Histogram of source fetch latencies.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
	)

	entitiesPolling = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "datewatch_entities_polling",
			Help: "Number of entities with an active poll timer.",
		},
	)

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
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// ObserveCycle counts a finished poll cycle.
func ObserveCycle(outcome string) {
	cyclesTotal.WithLabelValues(outcome).Inc()
}

// ObserveOracleCall counts an oracle invocation.
func ObserveOracleCall(result string) {
	oracleCallsTotal.WithLabelValues(result).Inc()
}

// ObserveFetchDuration records one source fetch latency.
func ObserveFetchDuration(d time.Duration) {
	fetchDurationSeconds.Observe(d.Seconds())
}

// SetEntitiesPolling records the current number of active timers.
func SetEntitiesPolling(n int) {
	entitiesPolling.Set(float64(n))
}

// ObserveHTTPRequest records request metrics for the API middleware.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
