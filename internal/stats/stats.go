// Package stats computes per-fuel price statistics over filtered records.
package stats

import (
	"math"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// Compute returns min/max/avg/count per fuel type over the given record set.
// Statistics reflect what the caller will actually see, so they must run
// over the post-filter records, never the whole corpus. Fuel types with no
// qualifying record are omitted entirely.
func Compute(records []models.AggregatedRecord, fuelTypes []string) map[string]models.PriceStat {
	out := make(map[string]models.PriceStat, len(fuelTypes))

	for _, ft := range fuelTypes {
		var sum, min, max float64
		count := 0
		for _, r := range records {
			p, ok := r.PriceFor(ft)
			if !ok {
				continue
			}
			if count == 0 || p < min {
				min = p
			}
			if count == 0 || p > max {
				max = p
			}
			sum += p
			count++
		}
		if count == 0 {
			continue
		}
		out[ft] = models.PriceStat{
			Min:   min,
			Max:   max,
			Avg:   math.Round(sum/float64(count)*10) / 10,
			Count: count,
		}
	}

	return out
}
