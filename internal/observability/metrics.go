package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carwash", Name: "cache_lookups_total", Help: "Cache lookups by result (hit, miss, stale)"},
		[]string{"result"},
	)
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carwash", Name: "read_retries_total", Help: "Retried remote reads"},
		[]string{"op"},
	)
	RemoteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carwash", Name: "remote_failures_total", Help: "Remote operations that failed after all attempts"},
		[]string{"op"},
	)
	LocationFallbacks = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carwash", Name: "location_fallbacks_total", Help: "Worker locations replaced by the default coordinate"})
	BookingsSubmitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "carwash", Name: "bookings_submitted_total", Help: "Bookings created through the wizard"})
	StatusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carwash", Name: "booking_transitions_total", Help: "Applied booking status transitions"},
		[]string{"to"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "carwash", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "carwash",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
