// Package metrics declares every Prometheus collector the cognitive safety
// core exposes, following cmd/pulse-agent/main.go's package-level
// promauto.New... registration pattern rather than a metrics-registry struct
// threaded through every component.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisions counts every Trust Gate verdict by tier and decision.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_gate_decisions_total",
		Help: "Trust Gate decisions by risk tier and gate decision",
	}, []string{"tier", "gate_decision"})

	// TrustScore is the current EWMA trust score per category.
	TrustScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sentinel_trust_score",
		Help: "Current trust score for a category",
	}, []string{"category"})

	// Incidents counts Self-Healing incidents by anomaly type and the state
	// they transitioned into.
	Incidents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_incidents_total",
		Help: "Self-healing incidents by anomaly type and resulting state",
	}, []string{"anomaly_type", "state"})

	// LearningQueueDepth is the current number of pending items in the
	// real-time-learning detection queue.
	LearningQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_learning_queue_depth",
		Help: "Pending items in the real-time-learning detection queue",
	})

	// LearningQueueDrops counts items dropped due to queue overflow.
	LearningQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_learning_queue_drops_total",
		Help: "Detections dropped because the learning queue was full",
	})

	// PropagationLatency observes the time from failure detection to a
	// propagator recording its result, in seconds.
	PropagationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sentinel_propagation_latency_seconds",
		Help:    "Time from failure detection to propagation result, by target",
		Buckets: prometheus.DefBuckets,
	}, []string{"target"})
)
