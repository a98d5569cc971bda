package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuelwatch/fuelwatch/internal/metrics"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run a one-time ingest cycle",
		Long:  "Fetches, normalizes and persists all enabled retailer feeds once, then prints the per-retailer results.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			ctx := context.Background()

			st, err := buildStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("building store: %w", err)
			}

			svc := buildIngestService(st, metrics.New(), logger)
			cycle := svc.RunCycle(ctx)

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(cycle); err != nil {
				return fmt.Errorf("encoding cycle result: %w", err)
			}

			if cycle.Succeeded == 0 && cycle.Failed > 0 {
				return fmt.Errorf("all %d sources failed", cycle.Failed)
			}
			return nil
		},
	}

	return cmd
}
