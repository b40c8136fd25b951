package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/nutristat/internal/tasks"
)

var (
	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutristat_jobs_submitted_total",
			Help: "Total number of jobs accepted by Submit.",
		},
		[]string{"task_type"},
	)

	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutristat_jobs_completed_total",
			Help: "Total number of jobs that reached completed.",
		},
		[]string{"task_type"},
	)

	jobsFaulted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutristat_jobs_faulted_total",
			Help: "Total number of jobs whose computation or persistence failed; they stay in processing.",
		},
		[]string{"task_type"},
	)

	jobsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nutristat_jobs_rejected_total",
			Help: "Total number of submissions rejected because shutdown was requested.",
		},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutristat_job_duration_seconds",
			Help:    "Time from dequeue to completed, in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutristat_queue_depth",
			Help: "Number of pending jobs not yet dequeued.",
		},
	)

	busyWorkers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutristat_busy_workers",
			Help: "Number of workers currently running a job.",
		},
	)
)

func init() {
	prometheus.MustRegister(jobsSubmitted)
	prometheus.MustRegister(jobsCompleted)
	prometheus.MustRegister(jobsFaulted)
	prometheus.MustRegister(jobsRejected)
	prometheus.MustRegister(jobDuration)
	prometheus.MustRegister(queueDepth)
	prometheus.MustRegister(busyWorkers)

	// Pre-initialize label combinations so every task type shows up in
	// /metrics with value 0 from startup.
	for _, k := range tasks.Kinds() {
		jobsSubmitted.WithLabelValues(string(k))
		jobsCompleted.WithLabelValues(string(k))
		jobsFaulted.WithLabelValues(string(k))
	}
}
