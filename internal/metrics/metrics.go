package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	availabilityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_availability_checks_total",
			Help: "Availability checks by result",
		},
		[]string{"result"},
	)

	bookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking rows created or moved into a status",
		},
		[]string{"status", "source"},
	)

	seatsReserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_seats_reserved_total",
			Help: "Seats reserved per event",
		},
		[]string{"event_id"},
	)

	paymentSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_sessions_total",
			Help: "Payment sessions requested from the gateway",
		},
		[]string{"provider", "result"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_reconciliations_total",
			Help: "Payment outcomes reconciled by result",
		},
		[]string{"result"},
	)

	gatewayLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_duration_seconds",
			Help:    "Latency of payment gateway calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
		},
		[]string{"provider", "operation"},
	)

	expiredReservations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "booking_reservations_expired_total",
			Help: "Pending reservations cancelled after their deadline",
		},
	)
)

func TrackAvailability(result string) {
	availabilityChecks.WithLabelValues(result).Inc()
}

func TrackBooking(status, source string) {
	bookingTransitions.WithLabelValues(status, source).Inc()
}

func TrackSeats(eventID string, seats int) {
	seatsReserved.WithLabelValues(eventID).Add(float64(seats))
}

func TrackPaymentSession(provider, result string) {
	paymentSessions.WithLabelValues(provider, result).Inc()
}

func TrackReconciliation(result string) {
	reconciliations.WithLabelValues(result).Inc()
}

func ObserveGateway(provider, operation string, start time.Time) {
	gatewayLatency.WithLabelValues(provider, operation).Observe(time.Since(start).Seconds())
}

func TrackExpired(n int) {
	expiredReservations.Add(float64(n))
}
