package transport

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// requestsTotal counts requests by API method and HTTP status ("error"
	// when no response was received).
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "botwire_transport_requests_total",
			Help: "Total number of Bot API requests.",
		},
		[]string{"method", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "botwire_transport_request_duration_seconds",
			Help:    "Duration of Bot API requests in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration)
}

func observe(method, status string, start time.Time) {
	requestsTotal.WithLabelValues(method, status).Inc()
	requestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
