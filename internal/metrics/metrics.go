package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termin",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	appointmentsBooked = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "termin",
			Name:      "appointments_booked_total",
			Help:      "Appointments created through the booking flow.",
		},
	)

	syncFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "termin",
			Name:      "external_sync_failures_total",
			Help:      "Failed best-effort calls to external providers.",
		},
		[]string{"adapter"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, appointmentsBooked, syncFailures)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncBooked counts one created appointment.
func IncBooked() {
	appointmentsBooked.Inc()
}

// IncSyncFailure counts one failed external call for an adapter label
// ("calendar" or "meeting").
func IncSyncFailure(adapter string) {
	syncFailures.WithLabelValues(adapter).Inc()
}
