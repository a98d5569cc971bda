package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fuelwatch/fuelwatch/internal/aggregate"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/query"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

func queryCmd() *cobra.Command {
	var (
		fuelType    string
		retailer    string
		postcode    string
		lat, lng    float64
		maxDistance float64
		sortBy      string
		limit       int
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query the aggregated dataset",
		Long:  "Runs one station query against the persisted snapshots and prints the ranked records as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			ctx := context.Background()

			st, err := buildStore(ctx, logger)
			if err != nil {
				return fmt.Errorf("building store: %w", err)
			}

			snapshots := make([]models.RetailerSnapshot, 0, len(cfg.Sources))
			for _, src := range cfg.Sources {
				obj, err := st.Get(ctx, store.CurrentKey(src.Name))
				if err != nil {
					if !errors.Is(err, store.ErrNotFound) {
						logger.Warn().Err(err).Str("retailer", src.Name).Msg("failed to read snapshot")
					}
					continue
				}
				var snap models.RetailerSnapshot
				if err := json.Unmarshal(obj.Data, &snap); err != nil {
					logger.Warn().Err(err).Str("retailer", src.Name).Msg("stored snapshot is unreadable")
					continue
				}
				snapshots = append(snapshots, snap)
			}

			records, lastUpdated := aggregate.Aggregate(snapshots)

			criteria := query.Criteria{
				FuelType:    fuelType,
				Retailer:    retailer,
				Postcode:    postcode,
				MaxDistance: maxDistance,
				SortBy:      sortBy,
				Limit:       limit,
			}
			if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
				criteria.Lat = &lat
				criteria.Lng = &lng
			}

			pipeline := query.New(buildGeocoder(logger), logger)
			result, err := pipeline.Run(ctx, records, criteria)
			if err != nil {
				return fmt.Errorf("running query: %w", err)
			}

			out := struct {
				Records     []models.AggregatedRecord   `json:"records"`
				LastUpdated *time.Time                  `json:"last_updated"`
				PriceStats  map[string]models.PriceStat `json:"price_stats"`
				Degraded    bool                        `json:"degraded,omitempty"`
			}{result.Records, lastUpdated, result.PriceStats, result.Degraded}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&fuelType, "fuel-type", "", "Fuel type code (e.g. E10, E5, B7, SDV)")
	cmd.Flags().StringVar(&retailer, "retailer", "", "Retailer name substring filter")
	cmd.Flags().StringVar(&postcode, "postcode", "", "UK postcode to search around")
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude to search around")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude to search around")
	cmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "Maximum distance in miles (0 = default radius)")
	cmd.Flags().StringVar(&sortBy, "sort-by", "", "Sort order (distance, price, retailer)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum records to return (0 = unlimited)")

	return cmd
}
