package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TaskOutcomeSuccess   = "success"
	TaskOutcomeRetry     = "retry"
	TaskOutcomeSkipRetry = "skip_retry"
)

// QueueMetrics tracks background job throughput per queue and task type.
type QueueMetrics struct {
	enqueued     *prometheus.CounterVec
	processed    *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	removed      *prometheus.CounterVec
	enqueueFails *prometheus.CounterVec
}

var (
	queueMetricsOnce sync.Once
	queueMetrics     *QueueMetrics
)

func Queue() *QueueMetrics {
	return QueueWithConfig(Config{})
}

func QueueWithConfig(cfg Config) *QueueMetrics {
	queueMetricsOnce.Do(func() {
		queueMetrics = newQueueMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return queueMetrics
}

func newQueueMetrics(registerer prometheus.Registerer, cfg Config) *QueueMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	m := &QueueMetrics{
		enqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "monstro_queue_tasks_enqueued_total",
			Help:        "Tasks accepted by the queue, including delayed tasks.",
			ConstLabels: constLabels,
		}, []string{"queue", "task_type"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "monstro_queue_tasks_processed_total",
			Help:        "Task executions by outcome.",
			ConstLabels: constLabels,
		}, []string{"queue", "task_type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "monstro_queue_task_duration_seconds",
			Help:        "Task handler latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			ConstLabels: constLabels,
		}, []string{"queue", "task_type"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "monstro_queue_tasks_removed_total",
			Help:        "Pending tasks removed before execution.",
			ConstLabels: constLabels,
		}, []string{"queue"}),
		enqueueFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "monstro_queue_enqueue_errors_total",
			Help:        "Enqueue attempts rejected by the broker.",
			ConstLabels: constLabels,
		}, []string{"queue", "task_type"}),
	}
	registerer.MustRegister(m.enqueued, m.processed, m.duration, m.removed, m.enqueueFails)
	return m
}

func (m *QueueMetrics) IncEnqueued(queue, taskType string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(queue, taskType).Inc()
}

func (m *QueueMetrics) IncEnqueueError(queue, taskType string) {
	if m == nil {
		return
	}
	m.enqueueFails.WithLabelValues(queue, taskType).Inc()
}

func (m *QueueMetrics) ObserveProcessed(queue, taskType, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(queue, taskType, outcome).Inc()
	m.duration.WithLabelValues(queue, taskType).Observe(duration.Seconds())
}

func (m *QueueMetrics) IncRemoved(queue string) {
	if m == nil {
		return
	}
	m.removed.WithLabelValues(queue).Inc()
}
