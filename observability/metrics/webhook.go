package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics tracks receipt webhook deliveries.
type WebhookMetrics struct {
	deliveries *prometheus.CounterVec
	dropped    *prometheus.CounterVec
}

var (
	webhookOnce     sync.Once
	webhookRegistry *WebhookMetrics
)

// Webhooks returns the lazily registered webhook metrics.
func Webhooks() *WebhookMetrics {
	webhookOnce.Do(func() {
		webhookRegistry = &WebhookMetrics{
			deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lat",
				Subsystem: "webhook",
				Name:      "deliveries_total",
				Help:      "Webhook delivery attempts segmented by subscription and outcome.",
			}, []string{"subscription", "outcome"}),
			dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lat",
				Subsystem: "webhook",
				Name:      "dropped_total",
				Help:      "Receipts never queued for delivery, by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(webhookRegistry.deliveries, webhookRegistry.dropped)
	})
	return webhookRegistry
}

// RecordDelivery counts one attempt. outcome is success, retry, failed or throttled.
func (m *WebhookMetrics) RecordDelivery(subscription, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(subscription, outcome).Inc()
}

func (m *WebhookMetrics) RecordDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}
