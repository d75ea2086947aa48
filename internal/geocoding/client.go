// Package geocoding calls the external reverse-geocoding provider with retry
// and a deterministic fallback. Geocoding is best-effort enrichment: ReverseGeocode
// never returns an error, so a failing provider can never fail report creation.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/nammaooru/civicreport/internal/observability"
)

// Address is the structured result of a reverse-geocode lookup. Missing
// fields default to empty strings. IsFallback marks a synthesized address
// produced after exhausted retries or a malformed response.
type Address struct {
	FormattedAddress string `json:"formatted_address"`
	Street           string `json:"street"`
	Neighborhood     string `json:"neighborhood"`
	City             string `json:"city"`
	State            string `json:"state"`
	Country          string `json:"country"`
	PostalCode       string `json:"postal_code"`
	PlaceID          string `json:"place_id,omitempty"`
	IsFallback       bool   `json:"is_fallback,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Cache stores resolved addresses keyed by rounded coordinates. Implementations
// must be safe for concurrent use. A nil Cache disables caching.
type Cache interface {
	GetAddress(ctx context.Context, key string) (Address, bool)
	SetAddress(ctx context.Context, key string, addr Address)
}

// Fallback defaults when the provider cannot name a location.
type Fallback struct {
	City    string
	State   string
	Country string
}

// Client talks to the reverse-geocoding provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retries    int
	retryDelay time.Duration
	fallback   Fallback
	cache      Cache
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// Options configures a Client. Zero values fall back to the provider contract
// defaults: 2 retries, 500ms delay, 5s per-attempt timeout.
type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Fallback   Fallback
	Cache      Cache
}

// NewClient constructs a geocoding client.
func NewClient(opts Options, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Retries <= 0 {
		opts.Retries = 2
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.Fallback == (Fallback{}) {
		opts.Fallback = Fallback{City: "Bengaluru", State: "Karnataka", Country: "India"}
	}
	return &Client{
		baseURL:    opts.BaseURL,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		fallback:   opts.Fallback,
		cache:      opts.Cache,
		logger:     logger,
		metrics:    metrics,
	}
}

// providerResponse mirrors the provider's wire shape.
type providerResponse struct {
	Results []providerResult `json:"results"`
}

type providerResult struct {
	FormattedAddress  string              `json:"formatted_address"`
	PlaceID           string              `json:"place_id"`
	AddressComponents []providerComponent `json:"address_components"`
}

type providerComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("geocode:%.5f:%.5f", lat, lng)
}

// ReverseGeocode resolves lat/lng into a structured address. The provider is
// attempted up to 1+retries times with a delay before each retry; every
// failure path degrades to FallbackAddress instead of an error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lng float64) Address {
	key := cacheKey(lat, lng)
	if c.cache != nil {
		if addr, ok := c.cache.GetAddress(ctx, key); ok {
			return addr
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				c.metrics.IncrementGeocodeFallbacks()
				return c.FallbackAddress(lat, lng, ctx.Err().Error())
			}
		}

		addr, err := c.callProvider(ctx, lat, lng)
		if err != nil {
			lastErr = err
			c.logger.Warn("reverse geocode attempt failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		if c.cache != nil {
			c.cache.SetAddress(ctx, key, addr)
		}
		return addr
	}

	c.metrics.IncrementGeocodeFallbacks()
	return c.FallbackAddress(lat, lng, lastErr.Error())
}

// callProvider performs a single provider round trip.
func (c *Client) callProvider(ctx context.Context, lat, lng float64) (Address, error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		c.metrics.RecordGeocodeLatency(time.Since(start))
		c.metrics.IncrementGeocodeRequests(outcome)
	}()

	q := url.Values{}
	q.Set("latlng", fmt.Sprintf("%f,%f", lat, lng))
	q.Set("api_key", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse-geocode?"+q.Encode(), nil)
	if err != nil {
		outcome = "failure"
		return Address{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-Request-Id", "namma-ooru-"+uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		outcome = "failure"
		return Address{}, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && c.logger != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		outcome = "failure"
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Address{}, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var pr providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&pr); err != nil {
		outcome = "failure"
		return Address{}, fmt.Errorf("decode response: %w", err)
	}
	if len(pr.Results) == 0 {
		outcome = "failure"
		return Address{}, fmt.Errorf("empty result set")
	}

	return parseAddress(pr.Results[0], c.fallback.Country), nil
}

// parseAddress selects the first matching component per semantic field.
func parseAddress(res providerResult, defaultCountry string) Address {
	get := func(types ...string) string {
		for _, t := range types {
			for _, comp := range res.AddressComponents {
				for _, ct := range comp.Types {
					if ct == t {
						return comp.LongName
					}
				}
			}
		}
		return ""
	}

	formatted := res.FormattedAddress
	if formatted == "" {
		formatted = "Address not found"
	}
	country := get("country")
	if country == "" {
		country = defaultCountry
	}

	return Address{
		FormattedAddress: formatted,
		Street:           get("route", "street_address"),
		Neighborhood:     get("sublocality", "neighborhood"),
		City:             get("locality", "administrative_area_level_2"),
		State:            get("administrative_area_level_1"),
		Country:          country,
		PostalCode:       get("postal_code"),
		PlaceID:          res.PlaceID,
	}
}

// FallbackAddress synthesizes a deterministic low-confidence address from raw
// coordinates when the provider is unavailable.
func (c *Client) FallbackAddress(lat, lng float64, errMsg string) Address {
	if errMsg == "" {
		errMsg = "geocoding unavailable"
	}
	return Address{
		FormattedAddress: fmt.Sprintf("Location: %.5f°N, %.5f°E", lat, lng),
		Street:           "Unknown",
		City:             c.fallback.City,
		State:            c.fallback.State,
		Country:          c.fallback.Country,
		IsFallback:       true,
		Error:            errMsg,
	}
}
