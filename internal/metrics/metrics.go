package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckoutMetrics counts checkout attempts by outcome and tracks end-to-end
// latency. Outcomes mirror the error taxonomy: committed, validation_error,
// insufficient_stock, payment_declined, payment_network_error, internal_error.
type CheckoutMetrics struct {
	Attempts  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "glowmart",
		Subsystem: "checkout",
		Name:      "attempts_total",
		Help:      "Total checkout attempts by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "glowmart",
		Subsystem: "checkout",
		Name:      "duration_ms",
		Help:      "Checkout latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"outcome"})

	reg.MustRegister(attempts, latency)
	return &CheckoutMetrics{Attempts: attempts, LatencyMS: latency}
}

func (m *CheckoutMetrics) Observe(outcome string, durationMS float64) {
	m.Attempts.WithLabelValues(outcome).Inc()
	m.LatencyMS.WithLabelValues(outcome).Observe(durationMS)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
