package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const SchedulerSkipReasonLockHeld = "lock_held"

// SchedulerMetrics covers the cron sweeps: how often they fire, how long
// they take and how many rows each one moves.
type SchedulerMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	timeouts  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	skipped   *prometheus.CounterVec
	processed *prometheus.CounterVec
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
)

// Scheduler returns the process-wide collectors on the default registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig is Scheduler with service and env labels. Only the
// first call's config takes effect.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = NewSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return scheduler
}

// NewSchedulerMetrics registers an independent set of collectors, mostly for
// tests with their own registry.
func NewSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := promauto.With(registerer)
	labels := constLabelsFor(cfg)
	counter := func(name, help string, by ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "monstro", Subsystem: "scheduler", Name: name, Help: help, ConstLabels: labels,
		}, by)
	}

	return &SchedulerMetrics{
		runs:      counter("job_runs_total", "Sweep firings by job.", "job"),
		timeouts:  counter("job_timeouts_total", "Sweeps stopped by their deadline.", "job"),
		errors:    counter("job_errors_total", "Failed sweeps by reason.", "job", "reason"),
		skipped:   counter("job_skipped_total", "Firings that did no work.", "job", "reason"),
		processed: counter("batch_processed_total", "Rows handled by sweeps.", "job", "resource"),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "monstro", Subsystem: "scheduler", Name: "job_duration_seconds",
			Help:        "Sweep wall time.",
			Buckets:     prometheus.ExponentialBucketsRange(0.01, 300, 12),
			ConstLabels: labels,
		}, []string{"job"}),
	}
}

func constLabelsFor(cfg Config) prometheus.Labels {
	labels := prometheus.Labels{"service": "monstro", "env": "unknown"}
	if v := strings.TrimSpace(cfg.ServiceName); v != "" {
		labels["service"] = v
	}
	if v := strings.TrimSpace(cfg.Environment); v != "" {
		labels["env"] = v
	}
	return labels
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.runs.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.duration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.timeouts.WithLabelValues(job).Inc()
	}
}

// IncJobError counts a failed sweep under its classified reason.
func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.errors.WithLabelValues(job, ClassifyJobError(err).Reason).Inc()
	}
}

func (m *SchedulerMetrics) IncJobSkipped(job, reason string) {
	if m != nil {
		m.skipped.WithLabelValues(job, reason).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, n int) {
	if m != nil && n > 0 {
		m.processed.WithLabelValues(job, resource).Add(float64(n))
	}
}
