// Package telemetry provides logging setup and Prometheus instrumentation
// for the deployer. The metrics cover lifecycle transitions and step
// execution; when the process is embedded in a long-running service the
// default registry can be exposed as usual.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "deployer"

var (
	transitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Lifecycle transitions executed, by transition and outcome",
		},
		[]string{"transition", "status"},
	)

	transitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transition_duration_seconds",
			Help:      "Wall-clock duration of lifecycle transitions",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		},
		[]string{"transition"},
	)

	stepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Steps executed within transitions, by outcome",
		},
		[]string{"status"},
	)
)

// ObserveTransition records one finished transition attempt.
func ObserveTransition(transition, status string, d time.Duration) {
	transitionsTotal.WithLabelValues(transition, status).Inc()
	transitionDuration.WithLabelValues(transition).Observe(d.Seconds())
}

// ObserveStep records one finished step.
func ObserveStep(status string) {
	stepsTotal.WithLabelValues(status).Inc()
}
