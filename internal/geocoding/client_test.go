package geocoding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/observability"
)

func providerOK(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse-geocode" {
			t.Errorf("expected path /reverse-geocode, got %s", r.URL.Path)
		}
		if r.URL.Query().Get("latlng") == "" {
			t.Error("missing latlng parameter")
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("missing or wrong api_key: %q", r.URL.Query().Get("api_key"))
		}
		if !strings.HasPrefix(r.Header.Get("X-Request-Id"), "namma-ooru-") {
			t.Errorf("unexpected request id %q", r.Header.Get("X-Request-Id"))
		}

		resp := providerResponse{Results: []providerResult{{
			FormattedAddress: "12, MG Road, Shivaji Nagar, Bengaluru, Karnataka 560001, India",
			PlaceID:          "ola-platform:abc123",
			AddressComponents: []providerComponent{
				{LongName: "MG Road", Types: []string{"route"}},
				{LongName: "Shivaji Nagar", Types: []string{"sublocality"}},
				{LongName: "Bengaluru", Types: []string{"locality"}},
				{LongName: "Karnataka", Types: []string{"administrative_area_level_1"}},
				{LongName: "India", Types: []string{"country"}},
				{LongName: "560001", Types: []string{"postal_code"}},
			},
		}}}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}
}

func testClient(baseURL string, cache Cache) *Client {
	return NewClient(Options{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Timeout:    time.Second,
		Retries:    2,
		RetryDelay: time.Millisecond,
		Fallback:   Fallback{City: "Bengaluru", State: "Karnataka", Country: "India"},
		Cache:      cache,
	}, zap.NewNop(), observability.NewNoOpRegistry())
}

func TestReverseGeocode_ParsesProviderResponse(t *testing.T) {
	server := httptest.NewServer(providerOK(t))
	defer server.Close()

	addr := testClient(server.URL, nil).ReverseGeocode(context.Background(), 12.9716, 77.5946)

	if addr.IsFallback {
		t.Fatalf("unexpected fallback: %s", addr.Error)
	}
	if addr.Street != "MG Road" {
		t.Errorf("street = %q", addr.Street)
	}
	if addr.Neighborhood != "Shivaji Nagar" {
		t.Errorf("neighborhood = %q", addr.Neighborhood)
	}
	if addr.City != "Bengaluru" {
		t.Errorf("city = %q", addr.City)
	}
	if addr.State != "Karnataka" {
		t.Errorf("state = %q", addr.State)
	}
	if addr.PostalCode != "560001" {
		t.Errorf("postal code = %q", addr.PostalCode)
	}
	if addr.PlaceID != "ola-platform:abc123" {
		t.Errorf("place id = %q", addr.PlaceID)
	}
}

func TestReverseGeocode_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	ok := providerOK(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		ok(w, r)
	}))
	defer server.Close()

	addr := testClient(server.URL, nil).ReverseGeocode(context.Background(), 12.9716, 77.5946)

	if got := calls.Load(); got != 3 {
		t.Errorf("provider called %d times, want 3", got)
	}
	if addr.IsFallback {
		t.Fatalf("expected success on final attempt, got fallback: %s", addr.Error)
	}
}

func TestReverseGeocode_ExhaustedRetriesFallBack(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	addr := testClient(server.URL, nil).ReverseGeocode(context.Background(), 12.97160, 77.59460)

	if got := calls.Load(); got != 3 {
		t.Errorf("provider called %d times, want 1 initial + 2 retries", got)
	}
	if !addr.IsFallback {
		t.Fatal("expected fallback address")
	}
	if addr.FormattedAddress != "Location: 12.97160°N, 77.59460°E" {
		t.Errorf("formatted = %q", addr.FormattedAddress)
	}
	if addr.City != "Bengaluru" || addr.State != "Karnataka" || addr.Country != "India" {
		t.Errorf("fallback region wrong: %+v", addr)
	}
	if addr.Error == "" {
		t.Error("fallback should record the last provider error")
	}
}

func TestReverseGeocode_EmptyResultsFallBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	addr := testClient(server.URL, nil).ReverseGeocode(context.Background(), 12.9716, 77.5946)
	if !addr.IsFallback {
		t.Fatal("expected fallback for empty result set")
	}
}

// memoryCache is a test double for the redis-backed address cache.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]Address
	sets    int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]Address)}
}

func (c *memoryCache) GetAddress(ctx context.Context, key string) (Address, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr, ok := c.entries[key]
	return addr, ok
}

func (c *memoryCache) SetAddress(ctx context.Context, key string, addr Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = addr
	c.sets++
}

func TestReverseGeocode_UsesCache(t *testing.T) {
	var calls atomic.Int32
	ok := providerOK(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		ok(w, r)
	}))
	defer server.Close()

	cache := newMemoryCache()
	client := testClient(server.URL, cache)

	first := client.ReverseGeocode(context.Background(), 12.9716, 77.5946)
	second := client.ReverseGeocode(context.Background(), 12.9716, 77.5946)

	if got := calls.Load(); got != 1 {
		t.Errorf("provider called %d times, want 1 (second hit cached)", got)
	}
	if first != second {
		t.Error("cached address differs from provider address")
	}
	if cache.sets != 1 {
		t.Errorf("cache sets = %d, want 1", cache.sets)
	}
}

func TestReverseGeocode_NearbyPointsShareCacheKey(t *testing.T) {
	// 5-decimal rounding keys points within ~1 m to the same cache entry.
	if cacheKey(12.971601, 77.594601) != cacheKey(12.971599, 77.594599) {
		t.Error("points within rounding distance should share a key")
	}
	if cacheKey(12.9716, 77.5946) == cacheKey(12.9717, 77.5947) {
		t.Error("distinct points must not share a key")
	}
}

func TestFallbackAddress_DefaultError(t *testing.T) {
	client := testClient("http://unused", nil)
	addr := client.FallbackAddress(12.9716, 77.5946, "")
	if addr.Error != "geocoding unavailable" {
		t.Errorf("error = %q", addr.Error)
	}
	if !addr.IsFallback {
		t.Error("IsFallback must be set")
	}
}
