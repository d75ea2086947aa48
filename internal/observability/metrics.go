package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicreport_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// reports created, labelled by category
	ReportsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_reports_created_total",
			Help: "Total reports created",
		},
		[]string{"category"},
	)

	// lifecycle transitions, labelled by resulting status
	TransitionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_transitions_total",
			Help: "Total lifecycle transitions applied",
		},
		[]string{"to"},
	)

	// priority escalations triggered by user rejections
	EscalationCount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civicreport_escalations_total",
			Help: "Total priority escalations from rejected resolutions",
		},
	)

	// geocoding provider requests labelled by outcome
	GeocodeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicreport_geocode_requests_total",
			Help: "Total reverse-geocode provider requests",
		},
		[]string{"outcome"},
	)

	// latency of reverse-geocode provider calls
	GeocodeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "civicreport_geocode_duration_seconds",
			Help:    "Duration of reverse-geocode requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// synthesized fallback addresses served
	GeocodeFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civicreport_geocode_fallbacks_total",
			Help: "Total fallback addresses synthesized",
		},
	)

	// proximity validation rejections
	ProximityRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civicreport_proximity_rejections_total",
			Help: "Total location corrections rejected as too far",
		},
	)

	// lifecycle event publish failures (best-effort queue)
	EventPublishErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "civicreport_event_publish_errors_total",
			Help: "Total lifecycle event publish failures",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		ReportsCreated,
		TransitionCount,
		EscalationCount,
		GeocodeRequests,
		GeocodeLatency,
		GeocodeFallbacks,
		ProximityRejections,
		EventPublishErrors,
	)
}
