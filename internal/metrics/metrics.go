package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for gateway calls and payment outcomes.
type Metrics struct {
	// Outbound gateway calls by gateway, operation and outcome
	GatewayRequests *prometheus.CounterVec

	GatewayLatency *prometheus.HistogramVec

	// Transactions reaching a status, by gateway
	Transactions *prometheus.CounterVec

	// Callback handling outcomes: applied, ignored, rejected, amount_mismatch
	Callbacks *prometheus.CounterVec
}

// New registers the payment metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		GatewayRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Outbound payment gateway calls by gateway, operation and outcome",
		}, []string{"gateway", "operation", "outcome"}),

		GatewayLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of outbound payment gateway calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		}, []string{"gateway", "operation"}),

		Transactions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_transactions_total",
			Help: "Payment transactions entering a status",
		}, []string{"gateway", "status"}),

		Callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Gateway callbacks by handling outcome",
		}, []string{"gateway", "outcome"}),
	}
}

// ObserveGatewayCall records one outbound gateway call.
func (m *Metrics) ObserveGatewayCall(gateway, operation, outcome string, elapsed time.Duration) {
	if m != nil {
		m.GatewayRequests.WithLabelValues(gateway, operation, outcome).Inc()
		m.GatewayLatency.WithLabelValues(gateway, operation).Observe(elapsed.Seconds())
	}
}

// IncTransaction records a transaction entering status.
func (m *Metrics) IncTransaction(gateway, status string) {
	if m != nil {
		m.Transactions.WithLabelValues(gateway, status).Inc()
	}
}

// IncCallback records how a callback was handled.
func (m *Metrics) IncCallback(gateway, outcome string) {
	if m != nil {
		m.Callbacks.WithLabelValues(gateway, outcome).Inc()
	}
}
