package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckpointsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_progress", Name: "checkpoints_accepted_total", Help: "Accepted checkpoints by source"},
		[]string{"source"},
	)
	CheckpointsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_progress", Name: "checkpoints_rejected_total", Help: "Rejected checkpoint requests by reason"},
		[]string{"reason"},
	)
	TripsCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_progress", Name: "trips_completed_total", Help: "Trips that reached completado"})
	TripsDelayed   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "trip_progress", Name: "trips_delayed_total", Help: "Trips flipped to retrasado by the delay sweep"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "trip_progress", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trip_progress",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
