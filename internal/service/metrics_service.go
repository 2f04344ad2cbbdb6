package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API and the
// scheduling core.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	solveDuration   *prometheus.HistogramVec
	solveTotal      *prometheus.CounterVec
	solveNodes      prometheus.Histogram
	violationsFound *prometheus.CounterVec
	swapTransitions *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	sweepDuration   prometheus.Histogram
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	solveDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "solver_run_duration_seconds",
		Help:    "Wall time of solver runs",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
	}, []string{"algorithm", "status"})

	solveTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solver_runs_total",
		Help: "Solver runs by algorithm and outcome",
	}, []string{"algorithm", "status"})

	solveNodes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solver_nodes_explored",
		Help:    "Search nodes expanded per solver run",
		Buckets: prometheus.ExponentialBuckets(100, 10, 6),
	})

	violationsFound := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "compliance_violations_total",
		Help: "Violations surfaced by validation, by rule and severity",
	}, []string{"rule", "severity"})

	swapTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swap_transitions_total",
		Help: "Swap lifecycle transitions by target status",
	}, []string{"status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "compliance_sweep_duration_seconds",
		Help:    "Wall time of population compliance sweeps",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, solveDuration, solveTotal, solveNodes,
		violationsFound, swapTransitions, cacheHits, cacheMisses, sweepDuration, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		solveDuration:   solveDuration,
		solveTotal:      solveTotal,
		solveNodes:      solveNodes,
		violationsFound: violationsFound,
		swapTransitions: swapTransitions,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		sweepDuration:   sweepDuration,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveSolve records one solver run.
func (m *MetricsService) ObserveSolve(algorithm, status string, nodes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.solveDuration.WithLabelValues(algorithm, status).Observe(duration.Seconds())
	m.solveTotal.WithLabelValues(algorithm, status).Inc()
	m.solveNodes.Observe(float64(nodes))
}

// CountViolation tallies one surfaced violation.
func (m *MetricsService) CountViolation(rule, severity string) {
	if m == nil {
		return
	}
	m.violationsFound.WithLabelValues(rule, severity).Inc()
}

// CountSwapTransition tallies one swap lifecycle transition.
func (m *MetricsService) CountSwapTransition(status string) {
	if m == nil {
		return
	}
	m.swapTransitions.WithLabelValues(status).Inc()
}

// RecordCacheLookup tallies a cache hit or miss.
func (m *MetricsService) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// ObserveSweep records one population compliance sweep.
func (m *MetricsService) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}
