package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsObserve(t *testing.T) {
	m := NewBookingMetrics(prometheus.NewRegistry())
	m.ObserveBooking("booked", "follow_up")
	m.ObserveBooking("booked", "follow_up")
	m.ObserveBooking("rejected", "follow_up")
	m.ObserveTransition("scheduled", "confirmed", "ok")
	m.ObservePaymentSession("stripe", "created")
	m.ObserveGatewayLatency("stripe", "ok", 0.25)
	m.ObserveGatewayEvent("paid", true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("booked", "follow_up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bookingsTotal.WithLabelValues("rejected", "follow_up")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookTotal.WithLabelValues("paid", "true")))
}

func TestBookingMetricsCustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObservePaymentSession("fake", "reused")

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveBooking("booked", "follow_up")
	m.ObserveTransition("a", "b", "ok")
	m.ObservePaymentSession("stripe", "created")
	m.ObserveGatewayLatency("stripe", "ok", 0.1)
	m.ObserveGatewayEvent("failed", false)
}
