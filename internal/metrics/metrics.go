package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nailbook",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by service type.",
		},
		[]string{"service_type"},
	)

	bookingConfirmed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nailbook",
			Name:      "booking_confirmed_total",
			Help:      "Count of bookings confirmed.",
		},
	)

	bookingCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nailbook",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled.",
		},
	)

	reschedules = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nailbook",
			Name:      "reschedule_total",
			Help:      "Count of reschedule operations by outcome.",
		},
		[]string{"outcome"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nailbook",
			Name:      "http_requests_total",
			Help:      "Count of HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	recoveryRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nailbook",
			Name:      "recovery_rows_total",
			Help:      "Count of recovery spreadsheet rows by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated, bookingConfirmed, bookingCancelled,
			reschedules, httpRequests, recoveryRows,
		)
	})
}

func IncBookingCreated(serviceType string) {
	bookingCreated.WithLabelValues(serviceType).Inc()
}

func IncBookingConfirmed() {
	bookingConfirmed.Inc()
}

func IncBookingCancelled() {
	bookingCancelled.Inc()
}

func IncReschedule(outcome string) {
	reschedules.WithLabelValues(outcome).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncRecoveryRow(outcome string) {
	recoveryRows.WithLabelValues(outcome).Inc()
}
