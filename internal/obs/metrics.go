// Package obs provides observability functionality including metrics and HTTP endpoints
package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	QueueDepth              prometheus.Gauge
	MessagesConsumedTotal   prometheus.Counter
	EventsProcessedTotal    prometheus.Counter
	DLQMessagesTotal        *prometheus.CounterVec
	DLQPublishFailuresTotal prometheus.Counter
	RetryAttemptsTotal      prometheus.Counter
	PipelineDurationSeconds prometheus.Histogram
	ConsumerLag             prometheus.Gauge
}

// NewMetrics creates and registers the application metrics with reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(serviceName string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "queue_depth",
			Help:        "Current number of messages waiting in the partition lanes",
			ConstLabels: labels,
		}),
		MessagesConsumedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "messages_consumed_total",
			Help:        "Total number of messages fetched from the inbound topic",
			ConstLabels: labels,
		}),
		EventsProcessedTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "events_processed_total",
			Help:        "Total number of events persisted to the event store",
			ConstLabels: labels,
		}),
		DLQMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "dlq_messages_total",
			Help:        "Total number of messages routed to the dead-letter topic, by failure category",
			ConstLabels: labels,
		}, []string{"category"}),
		DLQPublishFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "dlq_publish_failures_total",
			Help:        "Total number of dead-letter records that could not be published and were dropped",
			ConstLabels: labels,
		}),
		RetryAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name:        "retry_attempts_total",
			Help:        "Total number of retried broker fetches",
			ConstLabels: labels,
		}),
		PipelineDurationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:        "pipeline_duration_seconds",
			Help:        "Time spent processing one message through the pipeline",
			Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			ConstLabels: labels,
		}),
		ConsumerLag: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "consumer_lag",
			Help:        "Total consumer group lag observed on the last lag query",
			ConstLabels: labels,
		}),
	}
}

// IncrementMessagesConsumed increments the consumed messages counter by 1
func (m *Metrics) IncrementMessagesConsumed() {
	if m == nil {
		return
	}
	m.MessagesConsumedTotal.Inc()
}

// IncrementEventsProcessed increments the events processed counter by 1
func (m *Metrics) IncrementEventsProcessed() {
	if m == nil {
		return
	}
	m.EventsProcessedTotal.Inc()
}

// IncrementQueueDepth increments the queue depth gauge metric by 1
func (m *Metrics) IncrementQueueDepth() {
	if m == nil {
		return
	}
	m.QueueDepth.Inc()
}

// DecrementQueueDepth decrements the queue depth gauge metric by 1
func (m *Metrics) DecrementQueueDepth() {
	if m == nil {
		return
	}
	m.QueueDepth.Dec()
}

// NullifyQueueDepth sets the queue depth gauge metric to 0
func (m *Metrics) NullifyQueueDepth() {
	if m == nil {
		return
	}
	m.QueueDepth.Set(0)
}

// IncrementRetryAttempts increments the retry attempts counter by 1
func (m *Metrics) IncrementRetryAttempts() {
	if m == nil {
		return
	}
	m.RetryAttemptsTotal.Inc()
}

// IncrementDLQMessages increments the DLQ messages counter for a failure category
func (m *Metrics) IncrementDLQMessages(category string) {
	if m == nil {
		return
	}
	m.DLQMessagesTotal.WithLabelValues(category).Inc()
}

// IncrementDLQPublishFailures increments the dropped dead-letter counter by 1
func (m *Metrics) IncrementDLQPublishFailures() {
	if m == nil {
		return
	}
	m.DLQPublishFailuresTotal.Inc()
}

// ObservePipelineDuration records how long a pipeline run took
func (m *Metrics) ObservePipelineDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PipelineDurationSeconds.Observe(d.Seconds())
}

// SetConsumerLag records the latest computed consumer lag
func (m *Metrics) SetConsumerLag(lag int64) {
	if m == nil {
		return
	}
	m.ConsumerLag.Set(float64(lag))
}
