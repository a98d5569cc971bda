// Package query implements the station filter and ranking pipeline.
//
// Stages run in a fixed order and each stage only sees records surviving
// the previous one: fuel-type filter, location resolution, distance
// computation, distance filter, price-range filter, stable sort, limit.
// Every query builds and discards its own view; records passed in are
// never mutated.
package query

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/aggregate"
	"github.com/fuelwatch/fuelwatch/internal/geo"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/stats"
)

// ErrInvalidCriteria marks malformed caller input. It is the only error the
// read path ever returns; everything else degrades.
var ErrInvalidCriteria = errors.New("invalid criteria")

// Sort orders.
const (
	SortByDistance = "distance"
	SortByPrice    = "price"
	SortByRetailer = "retailer"
)

// Default search radii in miles.
const (
	DefaultRadiusPostcode = 15.0
	DefaultRadiusCoords   = 30.0
)

// Criteria describes one station query. All fields are optional, subject to
// Validate.
type Criteria struct {
	FuelType string
	Retailer string
	Postcode string
	Lat      *float64
	Lng      *float64
	// MaxDistance in miles; zero picks the default for the location kind.
	MaxDistance float64
	MinPrice    *float64
	MaxPrice    *float64
	SortBy      string
	Limit       int
}

// Validate fails fast on malformed criteria.
func (c Criteria) Validate() error {
	if (c.Lat == nil) != (c.Lng == nil) {
		return fmt.Errorf("%w: lat and lng must be given together", ErrInvalidCriteria)
	}
	if (c.MinPrice != nil || c.MaxPrice != nil) && c.FuelType == "" {
		return fmt.Errorf("%w: price range requires a fuel type", ErrInvalidCriteria)
	}
	if c.SortBy == SortByPrice && c.FuelType == "" {
		return fmt.Errorf("%w: price sort requires a fuel type", ErrInvalidCriteria)
	}
	switch c.SortBy {
	case "", SortByDistance, SortByPrice, SortByRetailer:
	default:
		return fmt.Errorf("%w: unknown sort order %q", ErrInvalidCriteria, c.SortBy)
	}
	if c.MaxDistance < 0 {
		return fmt.Errorf("%w: negative max distance", ErrInvalidCriteria)
	}
	if c.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidCriteria)
	}
	return nil
}

// Result is the ranked view of one query.
type Result struct {
	Records    []models.AggregatedRecord
	PriceStats map[string]models.PriceStat
	// Degraded is set when geocoding failed and the pipeline fell back to
	// postcode prefix matching.
	Degraded bool
}

// Pipeline runs station queries against an aggregated record set.
type Pipeline struct {
	geocoder geo.Geocoder
	logger   zerolog.Logger
}

// New creates a query pipeline.
func New(geocoder geo.Geocoder, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		geocoder: geocoder,
		logger:   logger.With().Str("component", "query").Logger(),
	}
}

// Run executes the pipeline over records.
func (p *Pipeline) Run(ctx context.Context, records []models.AggregatedRecord, c Criteria) (Result, error) {
	if err := c.Validate(); err != nil {
		return Result{}, err
	}

	recs := make([]models.AggregatedRecord, len(records))
	copy(recs, records)

	recs = aggregate.FilterRetailer(recs, c.Retailer)

	if c.FuelType != "" {
		recs = filterFuelType(recs, c.FuelType)
	}

	origin, prefixFallback, degraded := p.resolveLocation(ctx, c)

	switch {
	case origin != nil:
		maxDist := c.MaxDistance
		if maxDist == 0 {
			if c.Lat != nil {
				maxDist = DefaultRadiusCoords
			} else {
				maxDist = DefaultRadiusPostcode
			}
		}
		recs = filterByDistance(recs, *origin, maxDist)
	case prefixFallback != "":
		recs = filterByPostcodePrefix(recs, prefixFallback)
	}

	if c.MinPrice != nil || c.MaxPrice != nil {
		recs = filterPriceRange(recs, c.FuelType, c.MinPrice, c.MaxPrice)
	}

	switch c.SortBy {
	case SortByDistance:
		// Without a resolved location there are no distances to sort by;
		// the contract makes this a no-op rather than an error.
		if origin != nil {
			sort.SliceStable(recs, func(i, j int) bool {
				return *recs[i].Distance < *recs[j].Distance
			})
		}
	case SortByPrice:
		sort.SliceStable(recs, func(i, j int) bool {
			pi, _ := recs[i].PriceFor(c.FuelType)
			pj, _ := recs[j].PriceFor(c.FuelType)
			return pi < pj
		})
	case SortByRetailer:
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Retailer < recs[j].Retailer
		})
	}

	if c.Limit > 0 && len(recs) > c.Limit {
		recs = recs[:c.Limit]
	}

	statKeys := models.KnownFuelTypes
	if c.FuelType != "" {
		statKeys = []string{c.FuelType}
	}

	return Result{
		Records:    recs,
		PriceStats: stats.Compute(recs, statKeys),
		Degraded:   degraded,
	}, nil
}

// resolveLocation turns the criteria into either an origin for distance
// filtering or a postcode prefix for the degraded fallback.
func (p *Pipeline) resolveLocation(ctx context.Context, c Criteria) (origin *geo.Coordinates, prefix string, degraded bool) {
	if c.Lat != nil && c.Lng != nil {
		return &geo.Coordinates{Latitude: *c.Lat, Longitude: *c.Lng}, "", false
	}
	if c.Postcode == "" {
		return nil, "", false
	}

	coords, err := p.geocoder.Geocode(ctx, c.Postcode)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("postcode", c.Postcode).
			Msg("geocoding failed, falling back to postcode prefix match")
		return nil, geo.NormalizePostcode(c.Postcode), true
	}
	return &coords, "", false
}

func filterFuelType(records []models.AggregatedRecord, fuelType string) []models.AggregatedRecord {
	out := records[:0]
	for _, r := range records {
		if _, ok := r.PriceFor(fuelType); ok {
			out = append(out, r)
		}
	}
	return out
}

// filterByDistance keeps records within maxDist miles of origin. Records
// lacking valid coordinates are excluded whenever distance filtering is in
// play.
func filterByDistance(records []models.AggregatedRecord, origin geo.Coordinates, maxDist float64) []models.AggregatedRecord {
	out := records[:0]
	for _, r := range records {
		if !r.Location.Valid() {
			continue
		}
		d := geo.DistanceMiles(origin.Latitude, origin.Longitude, r.Location.Latitude, r.Location.Longitude)
		if d > maxDist {
			continue
		}
		dist := d
		r.Distance = &dist
		out = append(out, r)
	}
	return out
}

func filterByPostcodePrefix(records []models.AggregatedRecord, prefix string) []models.AggregatedRecord {
	out := records[:0]
	for _, r := range records {
		if strings.HasPrefix(geo.NormalizePostcode(r.Postcode), prefix) {
			out = append(out, r)
		}
	}
	return out
}

func filterPriceRange(records []models.AggregatedRecord, fuelType string, minPrice, maxPrice *float64) []models.AggregatedRecord {
	out := records[:0]
	for _, r := range records {
		p, ok := r.PriceFor(fuelType)
		if !ok {
			continue
		}
		if minPrice != nil && p < *minPrice {
			continue
		}
		if maxPrice != nil && p > *maxPrice {
			continue
		}
		out = append(out, r)
	}
	return out
}
