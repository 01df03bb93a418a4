package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "booking_engine"

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "Count of bookings created by initial status.",
		},
		[]string{"status"},
	)

	capacityRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_capacity_rejections_total",
			Help:      "Count of booking requests rejected for lack of capacity.",
		},
	)

	bookingsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_expired_total",
			Help:      "Count of pending bookings cancelled by the expiry sweeper.",
		},
	)

	checkouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Count of checkout attempts by provider and result.",
		},
		[]string{"provider", "result"},
	)

	settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Count of reconciled provider callbacks by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	notificationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Count of persisted notifications by event type.",
		},
		[]string{"event_type"},
	)

	emailsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Count of notification emails by result.",
		},
		[]string{"result"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingsCreated,
			capacityRejections,
			bookingsExpired,
			checkouts,
			settlements,
			notificationsCreated,
			emailsSent,
		)
	})
}

func IncBookingCreated(status string) {
	bookingsCreated.WithLabelValues(status).Inc()
}

func IncCapacityRejection() {
	capacityRejections.Inc()
}

func AddBookingsExpired(n int) {
	bookingsExpired.Add(float64(n))
}

func IncCheckout(provider, result string) {
	checkouts.WithLabelValues(provider, result).Inc()
}

func IncSettlement(provider, outcome string) {
	settlements.WithLabelValues(provider, outcome).Inc()
}

func IncNotificationCreated(eventType string) {
	notificationsCreated.WithLabelValues(eventType).Inc()
}

func IncEmailSent(result string) {
	emailsSent.WithLabelValues(result).Inc()
}
