// Package feed normalizes raw retailer payloads into canonical snapshots.
package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

// ErrInvalidFormat marks a payload that does not match the expected feed
// shape. For aggregation purposes it is equivalent to the source being
// unavailable: the source simply contributes zero records.
var ErrInvalidFormat = errors.New("invalid feed format")

// Upstream feeds are not required to self-timestamp and the ones that do are
// inconsistent about the format.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

type wireStation struct {
	SiteID   string             `json:"site_id"`
	Brand    string             `json:"brand"`
	Address  string             `json:"address"`
	Postcode string             `json:"postcode"`
	Location models.Location    `json:"location"`
	Prices   map[string]float64 `json:"prices"`
}

type wirePayload struct {
	LastUpdated string         `json:"last_updated"`
	Stations    *[]wireStation `json:"stations"`
}

// Normalize validates and converts one raw upstream payload into a
// RetailerSnapshot. Prices pass through without semantic validation;
// out-of-range values are handled downstream as "not for sale". When the
// payload carries no usable timestamp the snapshot is stamped with now.
func Normalize(retailer string, payload []byte, now time.Time) (models.RetailerSnapshot, error) {
	var wire wirePayload
	if err := json.Unmarshal(payload, &wire); err != nil {
		return models.RetailerSnapshot{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if wire.Stations == nil {
		return models.RetailerSnapshot{}, fmt.Errorf("%w: missing stations array", ErrInvalidFormat)
	}

	stations := make([]models.Station, 0, len(*wire.Stations))
	for i, ws := range *wire.Stations {
		if ws.SiteID == "" {
			return models.RetailerSnapshot{}, fmt.Errorf("%w: station %d missing site_id", ErrInvalidFormat, i)
		}
		if ws.Prices == nil {
			return models.RetailerSnapshot{}, fmt.Errorf("%w: station %q missing prices", ErrInvalidFormat, ws.SiteID)
		}
		stations = append(stations, models.Station{
			SiteID:   ws.SiteID,
			Brand:    ws.Brand,
			Address:  ws.Address,
			Postcode: ws.Postcode,
			Location: ws.Location,
			Prices:   ws.Prices,
		})
	}

	lastUpdated := now
	if wire.LastUpdated != "" {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, wire.LastUpdated); err == nil {
				lastUpdated = t
				break
			}
		}
	}

	return models.RetailerSnapshot{
		Retailer:    retailer,
		LastUpdated: lastUpdated,
		Stations:    stations,
	}, nil
}
