package service

import (
	"github.com/Harshitk-cp/curio/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curio_events_committed_total",
		Help: "Curiosity events appended to the log, by event type.",
	}, []string{"event_type"})

	operationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curio_operations_total",
		Help: "Oracle operations processed, by operation type and outcome.",
	}, []string{"operation", "outcome"})

	turnRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curio_turn_rejections_total",
		Help: "Turns rejected because another turn was processing.",
	}, []string{"purpose"})

	stuckTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curio_stuck_turns_released_total",
		Help: "Turns force-released after exceeding the processing bound.",
	})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "curio_turn_duration_seconds",
		Help:    "Wall time spent processing one oracle batch.",
		Buckets: prometheus.DefBuckets,
	})

	cascadeDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "curio_cascade_affected",
		Help:    "Curiosities touched by a single cascade.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
	})

	synthesisRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curio_synthesis_requests_total",
		Help: "SynthesisRequested notifications emitted.",
	})

	decayRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curio_decay_runs_total",
		Help: "Decay passes over a subject, by outcome.",
	}, []string{"outcome"})
)

func recordEvent(t domain.EventType) {
	eventsCommitted.WithLabelValues(string(t)).Inc()
}
