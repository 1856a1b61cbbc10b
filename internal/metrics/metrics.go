// Package metrics holds the Prometheus collectors shared by the API, the
// intake router and the background workers.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wafinance_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wafinance_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"method", "route"})

	routerOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wafinance_router_outcomes_total",
		Help: "Inbound messages by terminal state and branch",
	}, []string{"outcome", "branch"})

	classifierLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wafinance_classifier_duration_seconds",
		Help:    "Language classifier call latency",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"mode", "result"})

	mirrorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wafinance_mirror_failures_total",
		Help: "Failed best-effort mirror writes",
	}, []string{"mirror"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wafinance_queue_depth",
		Help: "Inbound events waiting for a worker",
	})
)

// ObserveHTTP records one served request.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpReqTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordOutcome counts a handled inbound message.
func RecordOutcome(outcome, branch string) {
	routerOutcomes.WithLabelValues(outcome, branch).Inc()
}

// ObserveClassifier records one classifier call. mode is transaction, intent or chat.
func ObserveClassifier(mode string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	classifierLatency.WithLabelValues(mode, result).Observe(elapsed.Seconds())
}

// RecordMirrorFailure counts a failed mirror write.
func RecordMirrorFailure(mirror string) {
	mirrorFailures.WithLabelValues(mirror).Inc()
}

// SetQueueDepth publishes the number of queued events.
func SetQueueDepth(n int) {
	queueDepth.Set(float64(n))
}
