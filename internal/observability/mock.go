package observability

import (
	"sync"
	"time"
)

// MockMetricsRegistry records counter increments for test assertions.
type MockMetricsRegistry struct {
	mu sync.Mutex

	RequestsByStatus    map[string]int
	CreatedByCategory   map[string]int
	TransitionsTo       map[string]int
	Escalations         int
	ProximityRejected   int
	GeocodeByOutcome    map[string]int
	GeocodeFallbackHits int
	PublishErrors       int
}

// NewMockMetricsRegistry creates a MockMetricsRegistry with initialized maps.
func NewMockMetricsRegistry() *MockMetricsRegistry {
	return &MockMetricsRegistry{
		RequestsByStatus:  make(map[string]int),
		CreatedByCategory: make(map[string]int),
		TransitionsTo:     make(map[string]int),
		GeocodeByOutcome:  make(map[string]int),
	}
}

func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestsByStatus[status]++
}

func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
}

func (m *MockMetricsRegistry) IncrementReportsCreated(category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreatedByCategory[category]++
}

func (m *MockMetricsRegistry) IncrementTransitions(to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TransitionsTo[to]++
}

func (m *MockMetricsRegistry) IncrementEscalations() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Escalations++
}

func (m *MockMetricsRegistry) IncrementProximityRejections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ProximityRejected++
}

func (m *MockMetricsRegistry) IncrementGeocodeRequests(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GeocodeByOutcome[outcome]++
}

func (m *MockMetricsRegistry) RecordGeocodeLatency(duration time.Duration) {}

func (m *MockMetricsRegistry) IncrementGeocodeFallbacks() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GeocodeFallbackHits++
}

func (m *MockMetricsRegistry) IncrementEventPublishErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishErrors++
}
