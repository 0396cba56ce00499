package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		billingEventsTotal,
		webhookRequestsTotal,
		webhookDuration,
	)
}

var (
	billingEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_events_total",
			Help: "Billing events by provider type and outcome (processed, duplicate, ignored, failed).",
		},
		[]string{"type", "outcome"},
	)

	webhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_requests_total",
			Help: "Webhook HTTP requests by response class.",
		},
		[]string{"result"},
	)

	webhookDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "billing_webhook_duration_seconds",
			Help:    "Time spent handling a webhook request.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func IncBillingEvent(eventType, outcome string) {
	billingEventsTotal.WithLabelValues(norm(eventType), norm(outcome)).Inc()
}

func IncWebhookRequest(result string) {
	webhookRequestsTotal.WithLabelValues(norm(result)).Inc()
}

func ObserveWebhookDuration(d time.Duration) {
	webhookDuration.Observe(d.Seconds())
}
