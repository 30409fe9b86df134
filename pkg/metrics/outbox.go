package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish results.
const (
	OutboxPublished  = "published"
	OutboxRetry      = "retry"
	OutboxDeadLetter = "dead_letter"
)

// OutboxMetrics counts publisher decisions per event type and times sink
// round trips.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	publish prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "events_total",
			Help:      "Outbox events handled by the publisher, by event type and result.",
		}, []string{"event_type", "result"}),
		publish: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "publish_duration_seconds",
			Help:      "Time spent waiting on the sink per event.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.events, m.publish)
	return m
}

func (o *OutboxMetrics) ObserveEvent(eventType, result string) {
	if o == nil || o.events == nil {
		return
	}
	o.events.WithLabelValues(label(eventType), label(result)).Inc()
}

func (o *OutboxMetrics) ObservePublish(took time.Duration) {
	if o == nil || o.publish == nil {
		return
	}
	o.publish.Observe(took.Seconds())
}
