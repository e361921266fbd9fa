package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for booking, lifecycle and payment flows.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	sessionsTotal    *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	webhookTotal     *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome", "service_type"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Status transition requests by result",
		}, []string{"from", "to", "result"}),
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "payments",
			Name:      "sessions_total",
			Help:      "Payment session requests by result",
		}, []string{"gateway", "result"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "appointments",
			Subsystem: "payments",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of payment gateway checkout calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"gateway", "status"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "appointments",
			Subsystem: "payments",
			Name:      "gateway_events_total",
			Help:      "Gateway status events by resulting status and whether they applied",
		}, []string{"status", "applied"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitionsTotal, m.sessionsTotal, m.gatewayLatency, m.webhookTotal)
	return m
}

func (m *BookingMetrics) ObserveBooking(outcome, serviceType string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome, serviceType).Inc()
}

func (m *BookingMetrics) ObserveTransition(from, to, result string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(from, to, result).Inc()
}

func (m *BookingMetrics) ObservePaymentSession(gateway, result string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(gateway, result).Inc()
}

func (m *BookingMetrics) ObserveGatewayLatency(gateway, status string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(gateway, status).Observe(seconds)
}

func (m *BookingMetrics) ObserveGatewayEvent(status string, applied bool) {
	if m == nil {
		return
	}
	label := "false"
	if applied {
		label = "true"
	}
	m.webhookTotal.WithLabelValues(status, label).Inc()
}
