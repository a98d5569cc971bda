// Package main provides the entry point for the fuelwatch CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fuelwatch/fuelwatch/internal/archive"
	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/fuelwatch/fuelwatch/internal/fetcher"
	"github.com/fuelwatch/fuelwatch/internal/geo"
	"github.com/fuelwatch/fuelwatch/internal/ingest"
	"github.com/fuelwatch/fuelwatch/internal/metrics"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

var (
	// Version is set at build time.
	Version = "dev"
	// Commit is set at build time.
	Commit = "none"
	// BuildDate is set at build time.
	BuildDate = "unknown"
)

var cfg *config.Config

func main() {
	if os.Getenv("APP_ENV") != "production" {
		_ = godotenv.Load()
	}

	cfg = config.DefaultConfig()
	cfg.LoadFromEnv()

	var sourcesFlag string

	rootCmd := &cobra.Command{
		Use:   "fuelwatch",
		Short: "FuelWatch - aggregate UK fuel price feeds into one queryable dataset",
		Long: `FuelWatch aggregates live fuel-price feeds from independent UK retailers,
serves geospatial and price-based ranking queries over the combined dataset,
and persists snapshots with a change-driven archival policy.

Features:
  - Bounded-concurrency feed ingestion with per-source failure isolation
  - Postcode and coordinate based distance queries (haversine, miles)
  - Per-fuel-type price statistics over the filtered view
  - Revision-guarded snapshot persistence with append-only archives
  - Prometheus metrics and a status endpoint`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if sourcesFlag != "" {
				if sources := config.ParseSources(sourcesFlag); len(sources) > 0 {
					cfg.Sources = sources
				}
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.StoreBackend, "store-backend", cfg.StoreBackend, "Snapshot store backend (s3, postgres, memory)")
	rootCmd.PersistentFlags().StringVar(&cfg.PostgresDSN, "postgres-dsn", cfg.PostgresDSN, "PostgreSQL connection string (postgres backend)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (json, console)")
	rootCmd.PersistentFlags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP server address")
	rootCmd.PersistentFlags().StringVar(&cfg.GeocoderURL, "geocoder-url", cfg.GeocoderURL, "Base URL of the postcode geocoding service")
	rootCmd.PersistentFlags().StringVar(&sourcesFlag, "sources", "", "Comma-separated name=url retailer feeds (prefix name with ! to disable)")

	// Add subcommands
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(ingestCmd())
	rootCmd.AddCommand(queryCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger() zerolog.Logger {
	var logger zerolog.Logger

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	return logger
}

func buildStore(ctx context.Context, logger zerolog.Logger) (store.Store, error) {
	switch cfg.StoreBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required for the s3 backend")
		}
		return store.NewS3Store(ctx, cfg.S3Endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Bucket, logger)
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("--postgres-dsn is required for the postgres backend")
		}
		return store.NewPostgresStore(cfg.PostgresDSN, logger)
	case "memory":
		logger.Warn().Msg("using in-memory snapshot store, data is not persisted")
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildGeocoder(logger zerolog.Logger) geo.Geocoder {
	var geocoder geo.Geocoder = geo.NewPostcodeClient(cfg.GeocoderURL, logger)
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		geocoder = geo.NewCachedGeocoder(geocoder, client, 30*24*time.Hour, logger)
	}
	return geocoder
}

func buildIngestService(st store.Store, m *metrics.Set, logger zerolog.Logger) *ingest.Service {
	f := fetcher.New(fetcher.Options{
		BatchSize:  cfg.FetchBatchSize,
		BatchDelay: cfg.FetchBatchDelay,
		Timeout:    cfg.FetchTimeout,
		Retries:    cfg.FetchRetries,
		RetryDelay: cfg.FetchRetryDelay,
	}, m, logger)
	ingestor := archive.NewIngestor(st, m, logger)
	return ingest.New(f, ingestor, cfg.Sources, m, logger)
}
