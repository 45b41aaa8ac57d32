package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes orchestration counters. All metrics are labeled sparingly;
// cardinality stays bounded by plan shape, not task count.
type Metrics struct {
	TasksCompleted   prometheus.Counter
	TasksBlocked     prometheus.Counter
	BuilderAttempts  prometheus.Counter
	ValidatorFails   prometheus.Counter
	PhaseDuration    prometheus.Histogram
	GraphUpdateNodes prometheus.Counter
	GraphUpdateEdges prometheus.Counter
}

// NewMetrics creates and registers the orchestration metrics. A nil
// registerer keeps the metrics unregistered, which tests rely on.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeloom_tasks_completed_total",
			Help: "Tasks that reached COMPLETE.",
		}),
		TasksBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeloom_tasks_blocked_total",
			Help: "Tasks that exhausted their attempts and reached BLOCKED.",
		}),
		BuilderAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeloom_builder_attempts_total",
			Help: "Builder invocations, including retries.",
		}),
		ValidatorFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeloom_validator_fails_total",
			Help: "Validator FAIL verdicts.",
		}),
		PhaseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codeloom_phase_duration_seconds",
			Help:    "Wall-clock duration of one phase including its graph update.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		GraphUpdateNodes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeloom_graph_update_nodes_total",
			Help: "Nodes upserted by incremental graph updates.",
		}),
		GraphUpdateEdges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codeloom_graph_update_edges_total",
			Help: "Edges upserted by incremental graph updates.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.TasksCompleted,
			m.TasksBlocked,
			m.BuilderAttempts,
			m.ValidatorFails,
			m.PhaseDuration,
			m.GraphUpdateNodes,
			m.GraphUpdateEdges,
		)
	}
	return m
}
