package query_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/geo"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/query"
)

type fixedGeocoder struct {
	coords geo.Coordinates
}

func (g fixedGeocoder) Geocode(context.Context, string) (geo.Coordinates, error) {
	return g.coords, nil
}

type failingGeocoder struct{}

func (failingGeocoder) Geocode(context.Context, string) (geo.Coordinates, error) {
	return geo.Coordinates{}, geo.ErrGeocodeUnavailable
}

func station(retailer, siteID, postcode string, lat, lng float64, prices map[string]float64) models.AggregatedRecord {
	return models.AggregatedRecord{
		Station: models.Station{
			SiteID:   siteID,
			Postcode: postcode,
			Location: models.Location{Latitude: lat, Longitude: lng},
			Prices:   prices,
		},
		Retailer: retailer,
	}
}

func TestSortByPriceAscending(t *testing.T) {
	records := []models.AggregatedRecord{
		station("asda", "A", "", 0, 0, map[string]float64{"E10": 140.9}),
		station("tesco", "B", "", 0, 0, map[string]float64{"E10": 135.0}),
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{
		FuelType: "E10",
		SortBy:   query.SortByPrice,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(result.Records))
	}
	if result.Records[0].SiteID != "B" || result.Records[1].SiteID != "A" {
		t.Errorf("expected [B, A], got [%s, %s]", result.Records[0].SiteID, result.Records[1].SiteID)
	}
	for i := 1; i < len(result.Records); i++ {
		pi, _ := result.Records[i-1].PriceFor("E10")
		pj, _ := result.Records[i].PriceFor("E10")
		if pi > pj {
			t.Errorf("price order violated at %d: %v > %v", i, pi, pj)
		}
	}
}

func TestFuelTypeFilterIsIdempotent(t *testing.T) {
	records := []models.AggregatedRecord{
		station("asda", "A", "", 0, 0, map[string]float64{"E10": 140.9}),
		station("asda", "B", "", 0, 0, map[string]float64{"E5": 150.0}),
		station("asda", "C", "", 0, 0, map[string]float64{"E10": 0}),
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	once, err := p.Run(context.Background(), records, query.Criteria{FuelType: "E10"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	twice, err := p.Run(context.Background(), once.Records, query.Criteria{FuelType: "E10"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(once.Records) != 1 || len(twice.Records) != 1 {
		t.Fatalf("expected 1 record after each pass, got %d and %d", len(once.Records), len(twice.Records))
	}
	if once.Records[0].SiteID != twice.Records[0].SiteID {
		t.Error("filter is not idempotent")
	}
}

func TestGeocodeFailureFallsBackToPrefixMatch(t *testing.T) {
	records := []models.AggregatedRecord{
		station("asda", "A", "SW1A 1AA", 0, 0, map[string]float64{"E10": 140.9}),
		station("asda", "B", "EC1A 1BB", 0, 0, map[string]float64{"E10": 135.0}),
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{Postcode: "sw1a"})
	if err != nil {
		t.Fatalf("geocode failure must degrade, not error: %v", err)
	}

	if !result.Degraded {
		t.Error("expected degraded flag")
	}
	if len(result.Records) != 1 || result.Records[0].SiteID != "A" {
		t.Fatalf("expected only station A, got %+v", result.Records)
	}
}

func TestDistanceFilterExcludesInvalidCoordinates(t *testing.T) {
	records := []models.AggregatedRecord{
		station("asda", "near", "", 51.51, -0.13, map[string]float64{"E10": 140}),
		station("asda", "nowhere", "", 0, 0, map[string]float64{"E10": 130}),
		station("asda", "far", "", 55.95, -3.19, map[string]float64{"E10": 120}),
	}

	p := query.New(fixedGeocoder{geo.Coordinates{Latitude: 51.5074, Longitude: -0.1278}}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{
		Postcode: "SW1A 1AA",
		SortBy:   query.SortByDistance,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Degraded {
		t.Error("geocode succeeded, result must not be degraded")
	}
	if len(result.Records) != 1 || result.Records[0].SiteID != "near" {
		t.Fatalf("expected only the near station, got %+v", result.Records)
	}
	if result.Records[0].Distance == nil {
		t.Fatal("expected distance to be populated")
	}
	if *result.Records[0].Distance > query.DefaultRadiusPostcode {
		t.Errorf("distance %v exceeds default radius", *result.Records[0].Distance)
	}
}

func TestExplicitCoordinatesUseWiderDefaultRadius(t *testing.T) {
	// Around 20 miles north of the origin: inside 30, outside 15.
	records := []models.AggregatedRecord{
		station("asda", "mid", "", 51.79, -0.1278, map[string]float64{"E10": 140}),
	}

	lat, lng := 51.5074, -0.1278
	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{Lat: &lat, Lng: &lng})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 1 {
		t.Fatalf("expected the station inside the 30 mile default, got %d records", len(result.Records))
	}
}

func TestSortByDistanceWithoutLocationIsNoOp(t *testing.T) {
	records := []models.AggregatedRecord{
		station("tesco", "B", "", 0, 0, map[string]float64{"E10": 135.0}),
		station("asda", "A", "", 0, 0, map[string]float64{"E10": 140.9}),
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{SortBy: query.SortByDistance})
	if err != nil {
		t.Fatalf("sortBy=distance without location must not fail: %v", err)
	}
	if result.Records[0].SiteID != "B" || result.Records[1].SiteID != "A" {
		t.Error("expected aggregation order to be preserved")
	}
}

func TestPriceRangeFilter(t *testing.T) {
	records := []models.AggregatedRecord{
		station("asda", "cheap", "", 0, 0, map[string]float64{"E10": 130}),
		station("asda", "mid", "", 0, 0, map[string]float64{"E10": 140}),
		station("asda", "dear", "", 0, 0, map[string]float64{"E10": 150}),
	}

	minP, maxP := 135.0, 145.0
	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{
		FuelType: "E10",
		MinPrice: &minP,
		MaxPrice: &maxP,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 1 || result.Records[0].SiteID != "mid" {
		t.Fatalf("expected only the mid station, got %+v", result.Records)
	}
}

func TestLimitTruncates(t *testing.T) {
	records := []models.AggregatedRecord{
		station("asda", "A", "", 0, 0, map[string]float64{"E10": 140}),
		station("asda", "B", "", 0, 0, map[string]float64{"E10": 141}),
		station("asda", "C", "", 0, 0, map[string]float64{"E10": 142}),
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Records) != 2 {
		t.Errorf("expected 2 records, got %d", len(result.Records))
	}
}

func TestRetailerSortIsStable(t *testing.T) {
	records := []models.AggregatedRecord{
		station("tesco", "t1", "", 0, 0, map[string]float64{"E10": 140}),
		station("asda", "a1", "", 0, 0, map[string]float64{"E10": 141}),
		station("asda", "a2", "", 0, 0, map[string]float64{"E10": 142}),
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{SortBy: query.SortByRetailer})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"a1", "a2", "t1"}
	for i, id := range want {
		if result.Records[i].SiteID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, result.Records[i].SiteID)
		}
	}
}

func TestInvalidCriteria(t *testing.T) {
	lat := 51.5
	minP := 100.0
	tests := []struct {
		name     string
		criteria query.Criteria
	}{
		{"lat without lng", query.Criteria{Lat: &lat}},
		{"price range without fuel type", query.Criteria{MinPrice: &minP}},
		{"price sort without fuel type", query.Criteria{SortBy: query.SortByPrice}},
		{"unknown sort order", query.Criteria{SortBy: "brand"}},
		{"negative limit", query.Criteria{Limit: -1}},
		{"negative max distance", query.Criteria{MaxDistance: -3}},
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Run(context.Background(), nil, tt.criteria)
			if !errors.Is(err, query.ErrInvalidCriteria) {
				t.Errorf("expected ErrInvalidCriteria, got %v", err)
			}
		})
	}
}

func TestStatsReflectFilteredView(t *testing.T) {
	records := []models.AggregatedRecord{
		station("asda", "A", "", 0, 0, map[string]float64{"E10": 140.0}),
		station("tesco", "B", "", 0, 0, map[string]float64{"E10": 130.0}),
	}

	p := query.New(failingGeocoder{}, zerolog.Nop())
	result, err := p.Run(context.Background(), records, query.Criteria{
		FuelType: "E10",
		Retailer: "asda",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stat := result.PriceStats["E10"]
	if stat.Count != 1 || stat.Avg != 140.0 {
		t.Errorf("stats must cover the post-filter set only, got %+v", stat)
	}
}
