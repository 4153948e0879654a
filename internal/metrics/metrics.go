package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rently",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rently",
			Name:      "bookings_created_total",
			Help:      "Booking holds successfully placed.",
		},
	)

	holdsReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rently",
			Name:      "holds_reaped_total",
			Help:      "Expired holds removed by the reaper.",
		},
	)

	dateConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rently",
			Name:      "date_conflicts_total",
			Help:      "Booking attempts rejected because dates were taken.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingsCreated, holdsReaped, dateConflicts)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncBookingsCreated() {
	bookingsCreated.Inc()
}

func AddHoldsReaped(n int) {
	holdsReaped.Add(float64(n))
}

func IncDateConflicts() {
	dateConflicts.Inc()
}
