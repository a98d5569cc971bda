// Package config provides configuration structures and loading for fuelwatch.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Source is one upstream retailer feed.
type Source struct {
	Name    string
	URL     string
	Enabled bool
}

// Config holds all configuration for the fuel price aggregator.
type Config struct {
	// Store backend (s3, postgres, memory)
	StoreBackend string
	// PostgreSQL connection string (postgres backend)
	PostgresDSN string
	// S3-compatible object store settings (s3 backend)
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	// Redis address for the geocode cache; empty disables caching
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// Base URL of the postcode geocoding service
	GeocoderURL string
	// Log level (debug, info, warn, error)
	LogLevel string
	// Log format (json, console)
	LogFormat string
	// HTTP server address
	HTTPAddr string
	// Interval between scheduled ingest cycles
	IngestInterval time.Duration
	// Fetch orchestration
	FetchBatchSize  int
	FetchBatchDelay time.Duration
	FetchTimeout    time.Duration
	FetchRetries    int
	FetchRetryDelay time.Duration
	// Upstream retailer feeds
	Sources []Source
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		StoreBackend:    "memory",
		GeocoderURL:     "https://api.postcodes.io",
		LogLevel:        "info",
		LogFormat:       "json",
		HTTPAddr:        ":8080",
		IngestInterval:  30 * time.Minute,
		FetchBatchSize:  3,
		FetchBatchDelay: 2 * time.Second,
		FetchTimeout:    30 * time.Second,
		FetchRetries:    3,
		FetchRetryDelay: 2 * time.Second,
		Sources: []Source{
			{Name: "asda", URL: "https://storelocator.asda.com/fuel_prices_data.json", Enabled: true},
			{Name: "tesco", URL: "https://www.tesco.com/fuel_prices/fuel_prices_data.json", Enabled: true},
			{Name: "sainsburys", URL: "https://api.sainsburys.co.uk/v1/exports/latest/fuel_prices_data.json", Enabled: true},
			{Name: "morrisons", URL: "https://www.morrisons.com/fuel-prices/fuel.json", Enabled: true},
			{Name: "bp", URL: "https://www.bp.com/en_gb/united-kingdom/home/fuelprices/fuel_prices_data.json", Enabled: true},
			{Name: "esso", URL: "https://fuelprices.esso.co.uk/latestdata.json", Enabled: true},
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.StoreBackend = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.S3Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.S3AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.S3SecretKey = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.S3Bucket = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			c.RedisDB = i
		}
	}
	if v := os.Getenv("GEOCODER_URL"); v != "" {
		c.GeocoderURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv("INGEST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.IngestInterval = d
		}
	}
	if v := os.Getenv("FETCH_BATCH_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			c.FetchBatchSize = i
		}
	}
	if v := os.Getenv("FETCH_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.FetchTimeout = d
		}
	}
	if v := os.Getenv("FUEL_SOURCES"); v != "" {
		if sources := ParseSources(v); len(sources) > 0 {
			c.Sources = sources
		}
	}
}

// ParseSources parses a comma-separated list of name=url entries. A name
// prefixed with "!" marks the source as disabled but keeps it configured.
func ParseSources(raw string) []Source {
	var sources []Source
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, url, ok := strings.Cut(entry, "=")
		if !ok || name == "" || url == "" {
			continue
		}
		enabled := true
		if strings.HasPrefix(name, "!") {
			enabled = false
			name = strings.TrimPrefix(name, "!")
		}
		sources = append(sources, Source{Name: name, URL: url, Enabled: enabled})
	}
	return sources
}

// EnabledSources returns the sources with Enabled set, in configured order.
func (c *Config) EnabledSources() []Source {
	enabled := make([]Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}
