package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaystackMetrics covers the subscription initiator and webhook receiver.
type PaystackMetrics struct {
	deliveries        *prometheus.CounterVec
	signatureFailures prometheus.Counter
	initializations   *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
}

var knownWebhookEvents = map[string]struct{}{
	"charge.success":         {},
	"subscription.create":    {},
	"subscription.disable":   {},
	"subscription.not_renew": {},
}

// NewPaystackMetrics registers the collectors on the provided registerer.
func NewPaystackMetrics(reg prometheus.Registerer) *PaystackMetrics {
	if reg == nil {
		return &PaystackMetrics{}
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "paystack_webhook_deliveries_total",
		Help: "Verified Paystack webhook deliveries by event and outcome.",
	}, []string{"event", "outcome"})
	signatureFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "paystack_webhook_signature_failures_total",
		Help: "Webhook deliveries rejected for a missing or invalid signature.",
	})
	initializations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subscription_initializations_total",
		Help: "Subscription checkout initializations by result.",
	}, []string{"result"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "paystack_request_duration_seconds",
		Help:    "Latency of outbound Paystack API calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(deliveries, signatureFailures, initializations, requestDuration)
	return &PaystackMetrics{
		deliveries:        deliveries,
		signatureFailures: signatureFailures,
		initializations:   initializations,
		requestDuration:   requestDuration,
	}
}

func (m *PaystackMetrics) IncDelivery(event, outcome string) {
	if m == nil || m.deliveries == nil {
		return
	}
	m.deliveries.WithLabelValues(eventLabel(event), normalizeLabel(outcome)).Inc()
}

func (m *PaystackMetrics) IncSignatureFailure() {
	if m == nil || m.signatureFailures == nil {
		return
	}
	m.signatureFailures.Inc()
}

func (m *PaystackMetrics) IncInitialization(result string) {
	if m == nil || m.initializations == nil {
		return
	}
	m.initializations.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObservePaystackRequest satisfies paystack.RequestObserver.
func (m *PaystackMetrics) ObservePaystackRequest(operation string, elapsed time.Duration, _ error) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.WithLabelValues(normalizeLabel(operation)).Observe(elapsed.Seconds())
}

// eventLabel folds unknown provider events into one series.
func eventLabel(event string) string {
	if _, ok := knownWebhookEvents[event]; ok {
		return event
	}
	return "other"
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
