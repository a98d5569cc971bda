// Package aggregate merges per-retailer snapshots into one tagged collection.
package aggregate

import (
	"strings"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// Aggregate concatenates all snapshots' stations, tagging each record with
// its owning retailer. Record order follows the input snapshot sequence and
// is stable within a retailer. The returned timestamp is the maximum
// last-updated across the inputs, nil when no snapshot is available.
func Aggregate(snapshots []models.RetailerSnapshot) ([]models.AggregatedRecord, *time.Time) {
	total := 0
	for _, s := range snapshots {
		total += len(s.Stations)
	}

	records := make([]models.AggregatedRecord, 0, total)
	var lastUpdated *time.Time
	for _, snap := range snapshots {
		for _, st := range snap.Stations {
			records = append(records, models.AggregatedRecord{
				Station:  st,
				Retailer: snap.Retailer,
			})
		}
		if lastUpdated == nil || snap.LastUpdated.After(*lastUpdated) {
			t := snap.LastUpdated
			lastUpdated = &t
		}
	}

	return records, lastUpdated
}

// FilterRetailer keeps records whose retailer name contains q,
// case-insensitively. The filter is idempotent and order-preserving, so it
// may run before or after aggregation with identical results. An empty q
// keeps everything.
func FilterRetailer(records []models.AggregatedRecord, q string) []models.AggregatedRecord {
	if q == "" {
		return records
	}
	needle := strings.ToLower(q)
	out := make([]models.AggregatedRecord, 0, len(records))
	for _, r := range records {
		if strings.Contains(strings.ToLower(r.Retailer), needle) {
			out = append(out, r)
		}
	}
	return out
}
