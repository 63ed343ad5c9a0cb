// Package metrics exposes Prometheus instrumentation for the dispatcher
// core: in-flight work, fetch/execute latency, pending-correlation table
// sizes, chunked-reply traffic, and traffic-signal state.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DispatcherInFlight reports the current in-flight execution count per
	// dispatcher ("orchestrator" | "activity").
	DispatcherInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_in_flight",
			Help: "Number of work items currently executing, by dispatcher",
		},
		[]string{"dispatcher"},
	)

	// FetchDuration times each fetch() call, by dispatcher.
	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_fetch_duration_seconds",
			Help:    "Time spent in fetch() per dispatcher",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dispatcher"},
	)

	// ExecuteDuration times each execute() call, by dispatcher.
	ExecuteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatcher_execute_duration_seconds",
			Help:    "Time spent in execute() per dispatcher",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"dispatcher"},
	)

	// FetchErrorsTotal counts fetch failures, by dispatcher.
	FetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_fetch_errors_total",
			Help: "Total fetch() errors, by dispatcher",
		},
		[]string{"dispatcher"},
	)

	// AbandonedTotal counts work items abandoned after an execute() failure.
	AbandonedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_abandoned_total",
			Help: "Total work items abandoned, by dispatcher",
		},
		[]string{"dispatcher"},
	)

	// PendingCorrelations reports the current size of the pending
	// correlation tables, by kind ("orchestrator" | "activity").
	PendingCorrelations = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bridge_pending_correlations",
			Help: "Number of in-flight pending correlations awaiting a worker reply",
		},
		[]string{"kind"},
	)

	// PartialChunksInFlight reports orchestrator instances currently
	// accumulating partial chunks.
	PartialChunksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_partial_chunks_in_flight",
			Help: "Number of orchestrator instances currently accumulating partial chunks",
		},
	)

	// HistoryChunksSentTotal counts history chunks streamed to the worker.
	HistoryChunksSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_history_chunks_sent_total",
			Help: "Total number of history chunks streamed to the worker",
		},
	)

	// TrafficSignalSet reports whether a worker is currently connected
	// (1 = set, 0 = reset).
	TrafficSignalSet = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bridge_traffic_signal_set",
			Help: "Whether a worker is currently connected (1) or not (0)",
		},
	)

	// WorkItemsWrittenTotal counts work items written to the worker stream.
	WorkItemsWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_work_items_written_total",
			Help: "Total work items written to the worker stream, by kind",
		},
		[]string{"kind"},
	)

	// ConnectAttemptsRejectedTotal counts GetWorkItems calls rejected
	// because a worker was already connected.
	ConnectAttemptsRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bridge_connect_attempts_rejected_total",
			Help: "Total GetWorkItems calls rejected with ResourceExhausted",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DispatcherInFlight,
		FetchDuration,
		ExecuteDuration,
		FetchErrorsTotal,
		AbandonedTotal,
		PendingCorrelations,
		PartialChunksInFlight,
		HistoryChunksSentTotal,
		TrafficSignalSet,
		WorkItemsWrittenTotal,
		ConnectAttemptsRejectedTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
