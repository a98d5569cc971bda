// Package models provides shared data types for the fuel price aggregator.
package models

import (
	"math"
	"time"
)

// KnownFuelTypes lists the conventional UK forecourt fuel codes. The price
// map stays an open set; this list only seeds default statistics keys and is
// never used as a validation whitelist.
var KnownFuelTypes = []string{"E10", "E5", "B7", "SDV"}

// Location is a WGS84 coordinate pair. A zero value means "unknown".
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the location carries usable coordinates.
func (l Location) Valid() bool {
	if l.Latitude == 0 && l.Longitude == 0 {
		return false
	}
	if math.IsNaN(l.Latitude) || math.IsInf(l.Latitude, 0) {
		return false
	}
	if math.IsNaN(l.Longitude) || math.IsInf(l.Longitude, 0) {
		return false
	}
	return true
}

// Station is one forecourt as reported by a retailer feed.
type Station struct {
	SiteID   string   `json:"site_id"`
	Brand    string   `json:"brand"`
	Address  string   `json:"address"`
	Postcode string   `json:"postcode"`
	Location Location `json:"location"`
	// Prices maps fuel-type code to price in minor currency units (pence).
	Prices map[string]float64 `json:"prices"`
}

// PriceFor returns the station's price for a fuel type. Zero, negative and
// missing prices all mean the fuel is not sold here.
func (s Station) PriceFor(fuelType string) (float64, bool) {
	p, ok := s.Prices[fuelType]
	if !ok || p <= 0 {
		return 0, false
	}
	return p, true
}

// RetailerSnapshot is one retailer's complete station list as of one fetch.
// Snapshots are immutable after creation.
type RetailerSnapshot struct {
	Retailer    string    `json:"retailer"`
	LastUpdated time.Time `json:"last_updated"`
	Stations    []Station `json:"stations"`
}

// AggregatedRecord is a station tagged with its owning retailer. Identity
// within one aggregation pass is (site_id, retailer); the same site id from
// two retailers stays two records. Distance is populated only during geo
// queries, in miles.
type AggregatedRecord struct {
	Station
	Retailer string   `json:"retailer"`
	Distance *float64 `json:"distance,omitempty"`
}

// PriceStat summarises one fuel type over a filtered record set.
// Avg is rounded to one decimal.
type PriceStat struct {
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
}

// FetchResult reports the outcome of one source in one ingest cycle. A
// source failure becomes a value here, never a fatal error for the cycle.
type FetchResult struct {
	Retailer     string `json:"retailer"`
	Success      bool   `json:"success"`
	StationCount int    `json:"station_count,omitempty"`
	Error        string `json:"error,omitempty"`
	Archived     bool   `json:"archived,omitempty"`
}

// Archive decision reasons.
const (
	ReasonFirstWrite = "first-write"
	ReasonStale      = "stale>24h"
	ReasonChanged    = "changed>5%"
)

// ArchiveDecision is the outcome of comparing an incoming snapshot to the
// currently persisted one for a retailer.
type ArchiveDecision struct {
	Archive bool   `json:"archive"`
	Reason  string `json:"reason,omitempty"`
}

// RetailerStatus holds the last observed state of one source for /status.
type RetailerStatus struct {
	Enabled      bool   `json:"enabled"`
	LastSuccess  bool   `json:"last_success"`
	StationCount int    `json:"station_count"`
	LastError    string `json:"last_error,omitempty"`
	Archived     bool   `json:"archived"`
}

// StatusResponse is the response for the /status endpoint.
type StatusResponse struct {
	Status           string                    `json:"status"`
	UptimeSeconds    int64                     `json:"uptime_seconds"`
	SchedulerRunning bool                      `json:"scheduler_running"`
	NextCycleAt      *time.Time                `json:"next_cycle_at,omitempty"`
	LastCycleAt      *time.Time                `json:"last_cycle_at,omitempty"`
	LastCycleID      string                    `json:"last_cycle_id,omitempty"`
	Retailers        map[string]RetailerStatus `json:"retailers"`
	Store            StoreStatus               `json:"store"`
}

// StoreStatus holds the snapshot store connection status.
type StoreStatus struct {
	Backend   string `json:"backend"`
	Connected bool   `json:"connected"`
}
