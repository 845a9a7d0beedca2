package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opda",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"service", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opda",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)
	trialsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opda",
			Subsystem: "ingest",
			Name:      "trials_total",
			Help:      "Trial results ingested into the store.",
		},
		[]string{"study", "source"},
	)
	ingestFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "opda",
			Subsystem: "ingest",
			Name:      "failures_total",
			Help:      "Result files that failed to ingest.",
		},
		[]string{"reason"},
	)
	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "opda",
			Subsystem: "analysis",
			Name:      "duration_seconds",
			Help:      "Tuning-curve analysis duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"study"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, trialsIngested, ingestFailures, analysisDuration)
	})
}

func RecordHTTPRequest(service, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(service, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(service, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordIngestedTrials(study, source string, count int) {
	RegisterMetrics()
	trialsIngested.WithLabelValues(study, source).Add(float64(count))
}

func RecordIngestFailure(reason string) {
	RegisterMetrics()
	ingestFailures.WithLabelValues(reason).Inc()
}

func RecordAnalysis(study string, duration time.Duration) {
	RegisterMetrics()
	analysisDuration.WithLabelValues(study).Observe(duration.Seconds())
}
