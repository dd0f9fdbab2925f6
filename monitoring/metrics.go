package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_outcomes_total",
			Help: "Checkout operations by outcome",
		},
		[]string{"operation", "outcome"},
	)

	gatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Duration of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"operation"},
	)

	capacityReleased = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "capacity_released_total",
			Help: "Capacity units returned to events",
		},
	)

	sessionsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_sessions_expired_total",
			Help: "Payment sessions failed by the reconciliation sweep",
		},
	)
)

// Monitor is nil-safe: a nil receiver records nothing, so services can take
// it as an optional dependency.
type Monitor struct{}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func (m *Monitor) TrackCheckout(operation, outcome string) {
	if m == nil {
		return
	}
	checkoutOutcomes.WithLabelValues(operation, outcome).Inc()
}

func (m *Monitor) TrackGatewayRequest(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	gatewayRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *Monitor) TrackCapacityReleased(units int) {
	if m == nil {
		return
	}
	capacityReleased.Add(float64(units))
}

func (m *Monitor) TrackSessionExpired() {
	if m == nil {
		return
	}
	sessionsExpired.Inc()
}
