package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	startRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Name:      "start_requests_total",
		Help:      "Start requests by outcome",
	}, []string{"outcome"})

	resets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "countdown",
		Name:      "resets_total",
		Help:      "Completed reset requests",
	})

	commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Name:      "commits_total",
		Help:      "Pre-countdown completions by result",
	}, []string{"result"})

	storeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Name:      "store_errors_total",
		Help:      "Timer store failures by operation",
	}, []string{"op"})

	signalsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Name:      "signals_total",
		Help:      "Signals fanned out to viewers by type",
	}, []string{"type"})

	signalsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "countdown",
		Name:      "signals_dropped_total",
		Help:      "Signals dropped by sink and reason",
	}, []string{"sink", "reason"})

	viewers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "countdown",
		Name:      "viewers_connected",
		Help:      "Currently connected WebSocket viewers",
	})
)

// IncStart records a start request outcome ("started", "already_running", "error").
func IncStart(outcome string) {
	startRequests.WithLabelValues(outcome).Inc()
}

// IncReset records a completed reset.
func IncReset() {
	resets.Inc()
}

// IncCommit records how a pre-countdown ended ("committed", "failed", "cancelled").
func IncCommit(result string) {
	commits.WithLabelValues(result).Inc()
}

// IncStoreError records a store failure for op.
func IncStoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}

// IncSignal records a signal handed to a sink.
func IncSignal(signalType string) {
	signalsSent.WithLabelValues(signalType).Inc()
}

// IncSignalDropped records a dropped signal.
func IncSignalDropped(sink, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	signalsDropped.WithLabelValues(sink, reason).Inc()
}

// SetViewers sets the connected viewer gauge.
func SetViewers(n int) {
	viewers.Set(float64(n))
}
