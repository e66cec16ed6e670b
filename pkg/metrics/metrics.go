// Package metrics provides Prometheus instrumentation for taskflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for taskflow components.
type Registry struct {
	// Task Execution Metrics
	TasksSpawned    *prometheus.CounterVec
	TasksCompleted  *prometheus.CounterVec
	TasksFailed     *prometheus.CounterVec
	TasksCancelled  *prometheus.CounterVec
	TaskRunDuration *prometheus.HistogramVec

	// Pool Metrics
	PoolWorkers *prometheus.GaugeVec
	PoolQueued  *prometheus.GaugeVec

	// Scope Metrics
	ScopesOpened *prometheus.CounterVec
	ScopesClosed *prometheus.CounterVec

	// Timed Spawning Metrics
	TasksScheduled *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by taskflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		TasksSpawned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Subsystem: "pool",
				Name:      "tasks_spawned_total",
				Help:      "Total number of tasks spawned",
			},
			[]string{"pool_name"},
		),

		TasksCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Subsystem: "pool",
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks completed successfully",
			},
			[]string{"pool_name"},
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Subsystem: "pool",
				Name:      "tasks_failed_total",
				Help:      "Total number of tasks that failed or panicked",
			},
			[]string{"pool_name"},
		),

		TasksCancelled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Subsystem: "pool",
				Name:      "tasks_cancelled_total",
				Help:      "Total number of tasks cancelled before completion",
			},
			[]string{"pool_name"},
		),

		TaskRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "taskflow",
				Subsystem: "pool",
				Name:      "task_run_duration_seconds",
				Help:      "Time spent running tasks",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"pool_name"},
		),

		PoolWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "taskflow",
				Subsystem: "pool",
				Name:      "workers",
				Help:      "Number of workers in the pool",
			},
			[]string{"pool_name"},
		),

		PoolQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "taskflow",
				Subsystem: "pool",
				Name:      "queued_tasks",
				Help:      "Number of tasks waiting for execution",
			},
			[]string{"pool_name"},
		),

		ScopesOpened: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Subsystem: "scope",
				Name:      "opened_total",
				Help:      "Total number of scopes opened",
			},
			[]string{"pool_name"},
		),

		ScopesClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Subsystem: "scope",
				Name:      "closed_total",
				Help:      "Total number of scopes drained and closed",
			},
			[]string{"pool_name"},
		),

		TasksScheduled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "taskflow",
				Subsystem: "schedule",
				Name:      "tasks_scheduled_total",
				Help:      "Total number of timed tasks handed to a pool",
			},
			[]string{"scheduler_name"},
		),
	}
}
