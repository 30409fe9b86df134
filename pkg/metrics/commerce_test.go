package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func TestCheckoutMetricsLabelsErrorCodes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.ObserveCheckout("cart", nil)
	m.ObserveCheckout("cart", pkgerrors.New(pkgerrors.CodeOutOfStock, "sold out"))
	m.ObserveCheckout("cod", errors.New("plain"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	mf := findMetricFamily(mfs, "storefront_checkout_attempts_total")
	require.NotNil(t, mf)

	got := map[string]float64{}
	for _, metric := range mf.GetMetric() {
		var kind, result string
		for _, l := range metric.GetLabel() {
			switch l.GetName() {
			case "kind":
				kind = l.GetValue()
			case "result":
				result = l.GetValue()
			}
		}
		got[kind+"/"+result] = metric.GetCounter().GetValue()
	}
	require.Equal(t, map[string]float64{
		"cart/ok": 1,
		"cart/" + string(pkgerrors.CodeOutOfStock): 1,
		"cod/" + string(pkgerrors.CodeInternal):    1,
	}, got)
}

func TestWebhookMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWebhookMetrics(reg)
	m.ObserveEvent("charge.refunded", "applied")
	m.ObserveEvent("charge.refunded", "applied")
	m.ObserveEvent("", "invalid_signature")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	v, err := fetchCounterValue(mfs, "storefront_webhook_events_total", "outcome", "applied")
	require.NoError(t, err)
	require.Equal(t, float64(2), v)
	v, err = fetchCounterValue(mfs, "storefront_webhook_events_total", "type", "unknown")
	require.NoError(t, err)
	require.Equal(t, float64(1), v)
}

func TestHTTPMetricsObservesLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.ObserveRequest("POST", "/api/v1/checkout", 201, 120*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum, err := fetchHistogramSum(mfs, "storefront_http_request_duration_seconds", "route", "/api/v1/checkout")
	require.NoError(t, err)
	require.InDelta(t, 0.12, sum, 0.0001)
}
