package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// WebhookMetrics counts processed payment webhooks by type and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Payment webhook events by type and outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// ObserveEvent records one delivery. outcome is the reconciliation result or
// an error class such as "error" or "invalid_signature".
func (w *WebhookMetrics) ObserveEvent(eventType, outcome string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(label(eventType), label(outcome)).Inc()
}

// CheckoutMetrics counts checkout attempts by kind and result.
type CheckoutMetrics struct {
	attempts *prometheus.CounterVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "checkout",
		Name:      "attempts_total",
		Help:      "Checkout attempts by kind and result code.",
	}, []string{"kind", "result"})
	reg.MustRegister(attempts)
	return &CheckoutMetrics{attempts: attempts}
}

// ObserveCheckout labels failures with their error code.
func (c *CheckoutMetrics) ObserveCheckout(kind string, err error) {
	if c == nil || c.attempts == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(pkgerrors.CodeInternal)
		if typed := pkgerrors.As(err); typed != nil {
			result = string(typed.Code())
		}
	}
	c.attempts.WithLabelValues(label(kind), result).Inc()
}

// HTTPMetrics tracks request latency per route pattern.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method, route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

func (h *HTTPMetrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	if h == nil || h.duration == nil {
		return
	}
	h.duration.WithLabelValues(method, label(route), strconv.Itoa(status)).Observe(duration.Seconds())
}
