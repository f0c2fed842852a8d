// Package config loads service configuration from an optional YAML file
// with environment-variable overrides for anything secret or deploy-specific.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	JWTSecret   string `yaml:"jwt_secret"`

	Providers Providers `yaml:"providers"`
}

// Providers carries the upstream endpoints and the shared API-key header
// pair. All travel endpoints are served off the same provider account, so
// one key pair covers hotels, attractions, and flights.
type Providers struct {
	APIKey  string `yaml:"api_key"`
	APIHost string `yaml:"api_host"`

	ExchangeRateURL string `yaml:"exchange_rate_url"`

	WeatherURL string `yaml:"weather_url"`
	WeatherKey string `yaml:"weather_key"`

	Hotels struct {
		AutocompleteURL string `yaml:"autocomplete_url"`
		SearchURL       string `yaml:"search_url"`
		ReviewScoresURL string `yaml:"review_scores_url"`
		DetailsURL      string `yaml:"details_url"`
		PhotosURL       string `yaml:"photos_url"`
	} `yaml:"hotels"`

	Attractions struct {
		AutocompleteURL string `yaml:"autocomplete_url"`
		SearchURL       string `yaml:"search_url"`
		CalendarURL     string `yaml:"calendar_url"`
		AvailabilityURL string `yaml:"availability_url"`
		DetailURL       string `yaml:"detail_url"`
	} `yaml:"attractions"`

	Flights struct {
		AutocompleteURL string `yaml:"autocomplete_url"`
		RoundTripURL    string `yaml:"roundtrip_url"`
		PriceDetailURL  string `yaml:"price_detail_url"`
	} `yaml:"flights"`
}

// Headers returns the API-key header pair sent on every travel-provider call.
func (p Providers) Headers() map[string]string {
	return map[string]string{
		"x-rapidapi-key":  p.APIKey,
		"x-rapidapi-host": p.APIHost,
	}
}

// Load reads the YAML file at path (skipped when path is empty or missing)
// and applies environment overrides on top.
func Load(path string) (*Config, error) {
	cfg := &Config{Port: "8080"}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	overrideString(&cfg.Port, "PORT")
	overrideString(&cfg.DatabaseURL, "DATABASE_URL")
	overrideString(&cfg.RedisURL, "REDIS_URL")
	overrideString(&cfg.JWTSecret, "JWT_SECRET")
	overrideString(&cfg.Providers.APIKey, "RAPID_API_KEY")
	overrideString(&cfg.Providers.APIHost, "RAPID_API_HOST")
	overrideString(&cfg.Providers.WeatherKey, "WEATHER_API_KEY")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL not configured")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL not configured")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT secret not configured")
	}

	return cfg, nil
}

func overrideString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
