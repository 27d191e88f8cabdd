package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/observability"
	"github.com/Mathew005/aura-agent/internal/resilience"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"

	// Finer than region level.
	placeTypes = "address,poi,neighborhood,locality,place"
)

// Client resolves incident locations with the Mapbox Geocoding API.
// It implements domain.Geocoder.
type Client struct {
	token        string
	httpClient   *http.Client
	baseURL      string
	proximity    *domain.Coordinate
	minRelevance float64
	metrics      *observability.Metrics
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithProximity biases results toward c, usually the map center.
func WithProximity(c domain.Coordinate) Option {
	return func(cl *Client) { cl.proximity = &c }
}

// WithMinRelevance drops matches Mapbox scores below r (0.0-1.0).
func WithMinRelevance(r float64) Option {
	return func(cl *Client) { cl.minRelevance = r }
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
		metrics:    metrics,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ForwardGeocode resolves a free-text place such as "5th and Elm, Los Angeles"
// to coordinates. An empty result with a nil error means nothing matched.
func (c *Client) ForwardGeocode(ctx context.Context, query string) (domain.GeocodingResult, error) {
	start := time.Now()
	result, err := c.lookup(ctx, query)
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	switch {
	case err != nil:
		outcome = "error"
		c.logger.Debug("geocode failed", "query", query, "error", err)
	case !result.Found():
		outcome = "empty"
	}
	c.metrics.GeocodeRequests.WithLabelValues(outcome).Inc()
	return result, err
}

func (c *Client) lookup(ctx context.Context, query string) (domain.GeocodingResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.placesURL(query), nil)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("geocode %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := fmt.Errorf("mapbox status %d: %s", resp.StatusCode, body)
		if rl := resilience.FromResponse(resp, time.Now(), apiErr); rl != nil {
			return domain.GeocodingResult{}, rl
		}
		return domain.GeocodingResult{}, apiErr
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.GeocodingResult{}, fmt.Errorf("decode mapbox response: %w", err)
	}
	return c.bestMatch(body.Features), nil
}

func (c *Client) placesURL(query string) string {
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {placeTypes},
		"autocomplete": {"false"},
	}
	if c.proximity != nil {
		// Mapbox takes lon,lat.
		params.Set("proximity", strconv.FormatFloat(c.proximity.Lon, 'f', 6, 64)+","+
			strconv.FormatFloat(c.proximity.Lat, 'f', 6, 64))
	}
	return fmt.Sprintf("%s/%s.json?%s", c.baseURL, url.PathEscape(query), params.Encode())
}

func (c *Client) bestMatch(features []feature) domain.GeocodingResult {
	for _, f := range features {
		if len(f.Center) != 2 || f.Relevance < c.minRelevance {
			continue
		}
		return domain.GeocodingResult{
			Lat:              f.Center[1],
			Lon:              f.Center[0],
			FormattedAddress: f.PlaceName,
			PlaceName:        f.Text,
			Confidence:       f.Relevance,
		}
	}
	return domain.GeocodingResult{}
}

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	Center    []float64 `json:"center"` // [lon, lat]
	PlaceName string    `json:"place_name"`
	Text      string    `json:"text"`
	Relevance float64   `json:"relevance"`
}
