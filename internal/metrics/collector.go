package metrics

import (
	"time"

	"github.com/reelroom/reelroom/internal/queue"
)

// PrometheusCollector feeds dispatcher attempt observations into the
// Prometheus registry.
type PrometheusCollector struct{}

var _ queue.Collector = (*PrometheusCollector)(nil)

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{}
}

func (c *PrometheusCollector) JobStarted(queueName string) {
	WorkerActiveJobs.WithLabelValues(queueName).Inc()
}

func (c *PrometheusCollector) JobFinished(queueName, outcome string, elapsed time.Duration) {
	WorkerActiveJobs.WithLabelValues(queueName).Dec()
	JobsProcessedTotal.WithLabelValues(queueName, outcome).Inc()
	JobsProcessingDuration.WithLabelValues(queueName).Observe(elapsed.Seconds())
}
