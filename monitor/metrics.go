// Package monitor exposes Prometheus metrics for HTTP traffic, test runs
// and capability calls.
package monitor

import (
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/qaforge/convotest/qa/model"
)

const namespace = "convotest"

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information, value is always 1",
		},
		[]string{"version", "go_version", "start_time"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by route and status code",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds; streaming runs last as long as the run",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 30, 120, 600},
		},
		[]string{"method", "path"},
	)

	runsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_active",
			Help:      "Number of test runs currently executing",
		},
	)

	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished test runs by status",
		},
		[]string{"status"},
	)

	runPairs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_pairs",
			Help:      "Scenario x persona pairs per run",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		},
	)

	pairsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pairs_total",
			Help:      "Finished conversation pairs by outcome (passed, failed, errored)",
		},
		[]string{"outcome"},
	)

	pairDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pair_duration_seconds",
			Help:      "Wall time of one conversation pair",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	capabilityRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capability_requests_total",
			Help:      "Planner and judge model calls by status",
		},
		[]string{"model", "status"},
	)

	capabilityRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capability_request_duration_seconds",
			Help:      "Planner and judge model call duration in seconds",
			Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	allMetrics = []prometheus.Collector{
		buildInfo,
		httpRequestsTotal,
		httpRequestDuration,
		runsActive,
		runsTotal,
		runPairs,
		pairsTotal,
		pairDuration,
		capabilityRequestsTotal,
		capabilityRequestDuration,
	}
)

// InitPrometheusMonitoring registers all collectors with reg. Registering
// twice is not an error.
func InitPrometheusMonitoring(reg prometheus.Registerer, version, goVersion string, startTime time.Time) error {
	for _, c := range allMetrics {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return errors.Wrap(err, "register prometheus collector")
		}
	}
	buildInfo.WithLabelValues(version, goVersion, startTime.Format(time.RFC3339)).Set(1)
	return nil
}

// RecordHTTPRequest records one finished request. path is the route
// template, never the raw URL.
func RecordHTTPRequest(method, path, status string, elapsed time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// RecordCapabilityRequest records one planner or judge call.
func RecordCapabilityRequest(model, status string, elapsed time.Duration) {
	capabilityRequestsTotal.WithLabelValues(model, status).Inc()
	capabilityRequestDuration.WithLabelValues(model).Observe(elapsed.Seconds())
}

// RunStarted marks a run as executing. Pair it with RunObserver.ObserveRun.
func RunStarted() {
	runsActive.Inc()
}

// RunObserver feeds run and pair outcomes into the collectors.
type RunObserver struct{}

func (RunObserver) ObservePair(_ string, passed bool, errored bool, elapsedMs int64) {
	outcome := "failed"
	switch {
	case errored:
		outcome = "errored"
	case passed:
		outcome = "passed"
	}
	pairsTotal.WithLabelValues(outcome).Inc()
	pairDuration.Observe(float64(elapsedMs) / 1000)
}

func (RunObserver) ObserveRun(status model.RunStatus, total int) {
	runsActive.Dec()
	runsTotal.WithLabelValues(string(status)).Inc()
	runPairs.Observe(float64(total))
}
