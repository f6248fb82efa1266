// Package metrics provides the Prometheus metrics of the run pollers and the engine client.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "flowwatch"

var (
	// pollTicksTotal is a counter of poll ticks by outcome.
	pollTicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Total number of poll ticks",
		},
		[]string{"outcome"}, // outcome: applied, skipped, stale, inactive, error
	)

	// fetchDuration is a histogram of snapshot fetch duration.
	fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Duration of instance snapshot fetches in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// runStatesTotal is a counter of derived run states by status.
	runStatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_states_total",
			Help:      "Total number of run states derived, by status",
		},
		[]string{"status"},
	)

	// pollersActive is a gauge of currently polling runs.
	pollersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pollers_active",
			Help:      "Number of runs currently being polled",
		},
	)

	// engineRequestsTotal is a counter of workflow engine calls.
	engineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_requests_total",
			Help:      "Total number of workflow engine API calls",
		},
		[]string{"operation", "status"}, // status: success, error, rejected
	)

	// breakerState is a gauge of the engine circuit breaker state (0 closed, 1 half-open, 2 open).
	breakerState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "engine_breaker_state",
			Help:      "State of the workflow engine circuit breaker",
		},
	)

	// sessionsActive is a gauge of sessions held by the monitor.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of monitor sessions",
		},
	)

	allMetrics = []prometheus.Collector{
		pollTicksTotal,
		fetchDuration,
		runStatesTotal,
		pollersActive,
		engineRequestsTotal,
		breakerState,
		sessionsActive,
	}

	defaultOnce     sync.Once
	defaultRegistry *prometheus.Registry
)

// NewRegistry returns a registry holding the flowwatch metrics and the Go runtime collectors
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	Register(reg)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Register adds the flowwatch metrics to reg, already registered collectors are ignored
func Register(reg prometheus.Registerer) {
	for _, c := range allMetrics {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				panic(err)
			}
		}
	}
}

// Default returns the process wide registry used by Handler
func Default() *prometheus.Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// Handler serves the metrics of reg, the default registry if reg is nil
func Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		reg = Default()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// RecordTick records the outcome of a poll tick.
func RecordTick(outcome string) {
	pollTicksTotal.WithLabelValues(outcome).Inc()
}

// RecordFetch records the duration of a snapshot fetch.
func RecordFetch(durationSeconds float64) {
	fetchDuration.Observe(durationSeconds)
}

// RecordRunState records a derived run state.
func RecordRunState(status string) {
	runStatesTotal.WithLabelValues(status).Inc()
}

// RecordPollerStart records a poller start.
func RecordPollerStart() {
	pollersActive.Inc()
}

// RecordPollerStop records a poller stop.
func RecordPollerStop() {
	pollersActive.Dec()
}

// RecordEngineRequest records a workflow engine call.
func RecordEngineRequest(operation, status string) {
	engineRequestsTotal.WithLabelValues(operation, status).Inc()
}

// RecordBreakerState records the engine circuit breaker state.
func RecordBreakerState(state int) {
	breakerState.Set(float64(state))
}

// SetSessions records the number of monitor sessions.
func SetSessions(n int) {
	sessionsActive.Set(float64(n))
}
