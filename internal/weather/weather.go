// Package weather is a thin pass-through to the weather provider: one call,
// no aggregation, no caching.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const httpTimeout = 10 * time.Second

// Report is the normalized current-weather payload.
type Report struct {
	City        string  `json:"city"`
	Country     string  `json:"country"`
	Temperature float64 `json:"temperature"`
	Weather     string  `json:"weather"`
}

// StatusError reports a non-200 response from the weather provider.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather provider returned status %d", e.StatusCode)
}

// Client fetches current conditions for a city.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient constructs a Client with the given endpoint and API key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, http: &http.Client{Timeout: httpTimeout}}
}

type providerResponse struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC     float64 `json:"temp_c"`
		Condition struct {
			Text string `json:"text"`
		} `json:"condition"`
	} `json:"current"`
}

// Fetch retrieves current weather for the given city.
func (c *Client) Fetch(ctx context.Context, city string) (*Report, error) {
	params := url.Values{
		"key": {c.apiKey},
		"q":   {city},
		"aqi": {"no"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching weather for %s: %w", city, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	var raw providerResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding weather for %s: %w", city, err)
	}

	return &Report{
		City:        raw.Location.Name,
		Country:     raw.Location.Country,
		Temperature: raw.Current.TempC,
		Weather:     raw.Current.Condition.Text,
	}, nil
}
