package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Worker-side counters. Registered on the default registry; the API
// process exposes them on /metrics.
var (
	ScheduleExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdb_schedule_executions_total",
		Help: "Schedule executions by outcome.",
	}, []string{"status"})

	ExportsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdb_exports_generated_total",
		Help: "Export files generated by format and outcome.",
	}, []string{"format", "status"})

	ExportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reportdb_export_duration_seconds",
		Help:    "Wall time of export generation.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	ChannelDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdb_channel_deliveries_total",
		Help: "Distribution channel deliveries by channel and outcome.",
	}, []string{"channel", "status"})

	DeadLetteredTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdb_dead_lettered_tasks_total",
		Help: "Tasks that exhausted retries and were dead-lettered.",
	}, []string{"task"})

	TaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reportdb_task_retries_total",
		Help: "Task attempts that failed and were handed back for retry.",
	}, []string{"task"})
)
