package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the public OpenWeatherMap API endpoint.
const DefaultBaseURL = "https://api.openweathermap.org"

const defaultTimeout = 10 * time.Second

// OpenWeatherMap reads current conditions for a named place.
type OpenWeatherMap struct {
	client   *http.Client
	baseURL  string
	apiKey   string
	location string
}

// NewOpenWeatherMap creates a source for location (e.g. "Paris,FR").
// An empty baseURL selects DefaultBaseURL; a zero timeout selects 10s.
func NewOpenWeatherMap(baseURL, apiKey, location string, timeout time.Duration) *OpenWeatherMap {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenWeatherMap{
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		apiKey:   apiKey,
		location: location,
	}
}

// currentWeather is the subset of the /data/2.5/weather response we use.
type currentWeather struct {
	Main *struct {
		Temp float64 `json:"temp"`
	} `json:"main"`
}

// Fetch returns the current temperature at the configured location.
func (o *OpenWeatherMap) Fetch(ctx context.Context) (float64, error) {
	q := url.Values{}
	q.Set("q", o.location)
	q.Set("appid", o.apiKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/data/2.5/weather?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%w: %q", ErrNotFound, o.location)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("%w: status %d", ErrTransient, resp.StatusCode)
	}

	var cw currentWeather
	if err := json.NewDecoder(resp.Body).Decode(&cw); err != nil {
		return 0, fmt.Errorf("%w: decode response: %v", ErrTransient, err)
	}
	if cw.Main == nil {
		return 0, fmt.Errorf("%w: response has no temperature", ErrTransient)
	}
	return cw.Main.Temp, nil
}
