package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	OutcomeSuccess   = "success"
	OutcomeFailed    = "failed"
	OutcomeNetwork   = "network"
	OutcomeCancelled = "cancelled"
)

var (
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_tasks_enqueued_total",
		Help: "Total number of tasks accepted by the scheduler",
	}, []string{"kind"})

	TasksAdmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_tasks_admitted_total",
		Help: "Total number of tasks moved from pending to running",
	}, []string{"kind"})

	TasksFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_tasks_finished_total",
		Help: "Total number of tasks that reached a terminal state",
	}, []string{"kind", "outcome"})

	TasksRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaqueue_tasks_running",
		Help: "Number of tasks currently running",
	})

	TasksPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mediaqueue_tasks_pending",
		Help: "Number of tasks waiting for admission",
	})

	TaskDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mediaqueue_task_duration_seconds",
		Help:    "Run time of finished tasks in seconds",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"})

	ResolvedPaths = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_resolved_paths_total",
		Help: "Output paths resolved, by the fallback layer that produced them",
	}, []string{"layer"})

	HistoryWriteErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mediaqueue_history_write_errors_total",
		Help: "Total number of failed history writes",
	}, []string{"sink"})
)
