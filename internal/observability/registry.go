package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// This replaces direct access to global Prometheus metrics with dependency injection.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Report lifecycle metrics
	IncrementReportsCreated(category string)
	IncrementTransitions(to string)
	IncrementEscalations()
	IncrementProximityRejections()

	// Geocoding provider metrics
	IncrementGeocodeRequests(outcome string)
	RecordGeocodeLatency(duration time.Duration)
	IncrementGeocodeFallbacks()

	// Event queue metrics
	IncrementEventPublishErrors()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics.
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Report lifecycle metrics
func (r *PrometheusRegistry) IncrementReportsCreated(category string) {
	ReportsCreated.WithLabelValues(category).Inc()
}

func (r *PrometheusRegistry) IncrementTransitions(to string) {
	TransitionCount.WithLabelValues(to).Inc()
}

func (r *PrometheusRegistry) IncrementEscalations() {
	EscalationCount.Inc()
}

func (r *PrometheusRegistry) IncrementProximityRejections() {
	ProximityRejections.Inc()
}

// Geocoding provider metrics
func (r *PrometheusRegistry) IncrementGeocodeRequests(outcome string) {
	GeocodeRequests.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordGeocodeLatency(duration time.Duration) {
	GeocodeLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementGeocodeFallbacks() {
	GeocodeFallbacks.Inc()
}

// Event queue metrics
func (r *PrometheusRegistry) IncrementEventPublishErrors() {
	EventPublishErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementReportsCreated(category string)                              {}
func (r *NoOpRegistry) IncrementTransitions(to string)                                       {}
func (r *NoOpRegistry) IncrementEscalations()                                                {}
func (r *NoOpRegistry) IncrementProximityRejections()                                        {}
func (r *NoOpRegistry) IncrementGeocodeRequests(outcome string)                              {}
func (r *NoOpRegistry) RecordGeocodeLatency(duration time.Duration)                          {}
func (r *NoOpRegistry) IncrementGeocodeFallbacks()                                           {}
func (r *NoOpRegistry) IncrementEventPublishErrors()                                         {}
