package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fuelwatch/fuelwatch/internal/http"
	"github.com/fuelwatch/fuelwatch/internal/metrics"
	"github.com/fuelwatch/fuelwatch/internal/query"
	"github.com/fuelwatch/fuelwatch/internal/scheduler"
)

func runCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the continuous aggregation service",
		Long:  "Starts the fuel price aggregator with an internal scheduler that ingests all feeds at a fixed interval, plus the HTTP query API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()

			if interval > 0 {
				cfg.IngestInterval = interval
			}

			logger.Info().
				Str("version", Version).
				Str("commit", Commit).
				Str("buildDate", BuildDate).
				Str("httpAddr", cfg.HTTPAddr).
				Str("storeBackend", cfg.StoreBackend).
				Dur("ingestInterval", cfg.IngestInterval).
				Int("sources", len(cfg.Sources)).
				Msg("starting fuelwatch")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			st, err := buildStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("building store: %w", err)
			}

			m := metrics.New()
			svc := buildIngestService(st, m, logger)
			pipeline := query.New(buildGeocoder(logger), logger)
			sched := scheduler.New(svc, cfg.IngestInterval, logger)
			httpServer := http.NewServer(cfg.HTTPAddr, cfg, st, pipeline, svc, sched, m, logger)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			go func() {
				if err := httpServer.Start(); err != nil {
					logger.Error().Err(err).Msg("HTTP server error")
					cancel()
				}
			}()

			go func() {
				if err := sched.Start(ctx); err != nil && err != context.Canceled {
					logger.Error().Err(err).Msg("scheduler error")
					cancel()
				}
			}()

			select {
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("received signal, shutting down")
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer shutdownCancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("HTTP server shutdown error")
			}

			logger.Info().Msg("shutdown complete")
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Ingest interval (overrides INGEST_INTERVAL)")

	return cmd
}
