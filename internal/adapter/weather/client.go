// Package weather looks up current conditions from the OpenWeather API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Mathew005/aura-agent/internal/domain"
	"github.com/Mathew005/aura-agent/internal/resilience"
	"github.com/Mathew005/aura-agent/internal/verify"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"

// Client implements verify.WeatherLookup.
type Client struct {
	apiKey     string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates an OpenWeather client.
func NewClient(apiKey string, timeout time.Duration) *Client {
	return &Client{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    defaultBaseURL,
	}
}

// Lookup returns current conditions in metric units.
func (c *Client) Lookup(ctx context.Context, at domain.Coordinate) (*verify.Weather, error) {
	params := url.Values{
		"lat":   {strconv.FormatFloat(at.Lat, 'f', 6, 64)},
		"lon":   {strconv.FormatFloat(at.Lon, 'f', 6, 64)},
		"appid": {c.apiKey},
		"units": {"metric"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		apiErr := fmt.Errorf("openweather API error: status %d: %s", resp.StatusCode, body)
		if rl := resilience.FromResponse(resp, time.Now(), apiErr); rl != nil {
			return nil, rl
		}
		return nil, apiErr
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	w := &verify.Weather{
		Description:  "Unknown",
		TemperatureC: decoded.Main.Temp,
		WindSpeedMS:  decoded.Wind.Speed,
	}
	if len(decoded.Weather) > 0 && decoded.Weather[0].Description != "" {
		w.Description = decoded.Weather[0].Description
	}
	for _, a := range decoded.Alerts {
		w.Alerts = append(w.Alerts, a.Event)
	}
	return w, nil
}

type response struct {
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	// Present only on the One Call endpoint; decoded when a deployment points
	// baseURL there.
	Alerts []struct {
		Event string `json:"event"`
	} `json:"alerts"`
}
