package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics covers the checkout gateway calls and webhook reconciliation outcomes.
type PaymentMetrics struct {
	gatewayLatency *prometheus.HistogramVec
	gatewayErrors  *prometheus.CounterVec
	reconciliation *prometheus.CounterVec
	ordersCreated  prometheus.Counter
	oversold       prometheus.Counter
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	gatewayErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_gateway_errors_total",
		Help: "Payment gateway calls that failed after retries.",
	}, []string{"operation"})
	reconciliation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliation_notifications_total",
		Help: "Gateway notifications by reconciliation outcome.",
	}, []string{"outcome"})
	ordersCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders persisted by checkout.",
	})
	oversold := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seats_oversell_total",
		Help: "Enrollments granted after a class session ran out of seats.",
	})
	reg.MustRegister(latency, gatewayErrors, reconciliation, ordersCreated, oversold)
	return &PaymentMetrics{
		gatewayLatency: latency,
		gatewayErrors:  gatewayErrors,
		reconciliation: reconciliation,
		ordersCreated:  ordersCreated,
		oversold:       oversold,
	}
}

// ObserveGateway records one gateway call, counting it as an error when failed is true.
func (p *PaymentMetrics) ObserveGateway(operation string, duration time.Duration, failed bool) {
	if p == nil || p.gatewayLatency == nil {
		return
	}
	label := normalizeLabel(operation)
	p.gatewayLatency.WithLabelValues(label).Observe(duration.Seconds())
	if failed {
		p.gatewayErrors.WithLabelValues(label).Inc()
	}
}

// IncReconciliation counts a processed notification by outcome.
func (p *PaymentMetrics) IncReconciliation(outcome string) {
	if p == nil || p.reconciliation == nil {
		return
	}
	p.reconciliation.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncOrderCreated counts a persisted order.
func (p *PaymentMetrics) IncOrderCreated() {
	if p == nil || p.ordersCreated == nil {
		return
	}
	p.ordersCreated.Inc()
}

// IncOversell counts an enrollment that could not take a seat.
func (p *PaymentMetrics) IncOversell() {
	if p == nil || p.oversold == nil {
		return
	}
	p.oversold.Inc()
}
