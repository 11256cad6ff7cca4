// Package metrics exposes the orchestrator's Prometheus instrumentation:
// submission/completion counters, queue depth, GPU utilization, and
// counts of classified render-log lines.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchrender_jobs_submitted_total",
			Help: "Total number of render jobs submitted",
		},
		[]string{"renderer", "method"},
	)

	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchrender_jobs_completed_total",
			Help: "Total number of render jobs that reached a terminal state",
		},
		[]string{"renderer", "state", "error_kind"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batchrender_job_duration_seconds",
			Help:    "Wall-clock time from job submission to terminal state",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~4.5 hours
		},
		[]string{"renderer", "state"},
	)

	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchrender_fallback_attempts_total",
			Help: "Total number of method fallback-chain hops taken under method=auto",
		},
		[]string{"from_method", "to_method"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchrender_queue_depth",
			Help: "Current number of jobs waiting for an open concurrency slot",
		},
	)

	RunningJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batchrender_running_jobs",
			Help: "Current number of jobs with a live subprocess",
		},
	)

	GPUUtilization = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "batchrender_gpu_jobs_assigned",
			Help: "Current number of running jobs assigned to each GPU device id",
		},
		[]string{"gpu_id"},
	)

	RenderLogLines = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchrender_render_log_lines_total",
			Help: "Total number of classified stdout lines observed from render subprocesses",
		},
		[]string{"renderer", "kind"},
	)

	TempFilesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batchrender_temp_files_deleted_total",
			Help: "Total number of staged scene files removed by retention sweeps",
		},
		[]string{"reason"},
	)
)

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSubmission increments the submission counter for a newly
// admitted job.
func RecordSubmission(renderer, method string) {
	JobsSubmitted.WithLabelValues(renderer, method).Inc()
}

// RecordCompletion increments the completion counter and observes job
// duration once a job reaches a terminal state.
func RecordCompletion(renderer, state, errorKind string, durationSeconds float64) {
	JobsCompleted.WithLabelValues(renderer, state, errorKind).Inc()
	JobDuration.WithLabelValues(renderer, state).Observe(durationSeconds)
}

// RecordFallback increments the fallback-chain-hop counter.
func RecordFallback(fromMethod, toMethod string) {
	FallbackAttempts.WithLabelValues(fromMethod, toMethod).Inc()
}

// SetQueueDepth sets the current FIFO queue length.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

// SetRunningJobs sets the current count of live subprocesses.
func SetRunningJobs(n int) {
	RunningJobs.Set(float64(n))
}

// RecordLogLine increments the classified-log-line counter.
func RecordLogLine(renderer, kind string) {
	RenderLogLines.WithLabelValues(renderer, kind).Inc()
}

// RecordTempFileDeleted increments the retention-sweep deletion counter.
func RecordTempFileDeleted(reason string) {
	TempFilesDeleted.WithLabelValues(reason).Inc()
}
