package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_beacon",
			Name:      "polls_total",
			Help:      "Total number of upstream polls, partitioned by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	pollDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "alert_beacon",
			Name:      "poll_seconds",
			Help:      "Upstream poll latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
		[]string{"backend"},
	)

	cycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "alert_beacon",
			Name:      "cycle_seconds",
			Help:      "Aggregation cycle latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		},
	)

	aggregateStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "alert_beacon",
			Name:      "aggregate_status",
			Help:      "Published aggregate flags (1 when raised).",
		},
		[]string{"flag"},
	)

	backendLabel = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "alert_beacon",
			Name:      "backend_label",
			Help:      "Published label per backend (1 for the current label).",
		},
		[]string{"backend", "label"},
	)

	sinkErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alert_beacon",
			Name:      "sink_errors_total",
			Help:      "Snapshot sink write failures.",
		},
		[]string{"sink"},
	)

	entityState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "alert_beacon",
			Name:      "entity_state",
			Help:      "Presentation state per entity (1 for the current state).",
		},
		[]string{"entity", "state"},
	)
)

// Register attaches alert-beacon collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		pollsTotal,
		pollDurationSeconds,
		cycleDurationSeconds,
		aggregateStatus,
		backendLabel,
		sinkErrorsTotal,
		entityState,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObservePoll records one upstream poll.
func ObservePoll(backend, outcome string, duration time.Duration) {
	pollsTotal.WithLabelValues(backend, outcome).Inc()
	if duration < 0 {
		duration = 0
	}
	pollDurationSeconds.WithLabelValues(backend).Observe(duration.Seconds())
}

// ObserveCycle records an aggregation cycle duration.
func ObserveCycle(duration time.Duration) {
	if duration < 0 {
		duration = 0
	}
	cycleDurationSeconds.Observe(duration.Seconds())
}

// SetAggregate publishes the aggregate flags.
func SetAggregate(hasActiveAlerts, internalError bool) {
	aggregateStatus.WithLabelValues("has_active_alerts").Set(boolToFloat(hasActiveAlerts))
	aggregateStatus.WithLabelValues("internal_error").Set(boolToFloat(internalError))
}

// SetBackendLabels replaces the per-backend label series.
func SetBackendLabels(labels map[string]string) {
	backendLabel.Reset()
	for backend, label := range labels {
		backendLabel.WithLabelValues(backend, label).Set(1)
	}
}

// IncSinkError counts a failed snapshot write.
func IncSinkError(sink string) {
	sinkErrorsTotal.WithLabelValues(sink).Inc()
}

// SetEntityState marks state as current for entity and clears the previous one.
func SetEntityState(entity, previous, current string) {
	if previous != "" && previous != current {
		entityState.DeleteLabelValues(entity, previous)
	}
	entityState.WithLabelValues(entity, current).Set(1)
}

// DeleteEntity drops every series for a torn down entity.
func DeleteEntity(entity string) {
	entityState.DeletePartialMatch(prometheus.Labels{"entity": entity})
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
