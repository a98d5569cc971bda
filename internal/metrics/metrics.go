// Package metrics holds the Prometheus metrics for the fuel price aggregator.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set holds all Prometheus metrics. A nil *Set is valid and records nothing,
// so tests can run components without touching the global registry.
type Set struct {
	// Fetch metrics
	FetchRequestsTotal *prometheus.CounterVec
	FetchDuration      *prometheus.HistogramVec

	// Ingest metrics
	IngestCyclesTotal  *prometheus.CounterVec
	StationsLastCycle  *prometheus.GaugeVec
	ArchiveWritesTotal *prometheus.CounterVec
	StoreConflicts     prometheus.Counter

	// Query metrics
	QueryDuration prometheus.Histogram
}

// New creates and registers the Prometheus metrics.
func New() *Set {
	return &Set{
		FetchRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelwatch_fetch_requests_total",
				Help: "Total number of feed fetches by retailer and status",
			},
			[]string{"retailer", "status"},
		),
		FetchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fuelwatch_fetch_duration_seconds",
				Help:    "Feed fetch duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"retailer"},
		),
		IngestCyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelwatch_ingest_cycles_total",
				Help: "Total number of ingest cycles by outcome",
			},
			[]string{"status"},
		),
		StationsLastCycle: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fuelwatch_stations_last_cycle",
				Help: "Stations ingested per retailer in the last cycle",
			},
			[]string{"retailer"},
		),
		ArchiveWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fuelwatch_archive_writes_total",
				Help: "Total number of archive snapshots written by retailer and reason",
			},
			[]string{"retailer", "reason"},
		),
		StoreConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fuelwatch_store_conflicts_total",
				Help: "Total number of snapshot store revision conflicts",
			},
		),
		QueryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fuelwatch_query_duration_seconds",
				Help:    "Station query duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

// RecordFetch records one feed fetch attempt outcome.
func (s *Set) RecordFetch(retailer, status string, seconds float64) {
	if s == nil {
		return
	}
	s.FetchRequestsTotal.WithLabelValues(retailer, status).Inc()
	s.FetchDuration.WithLabelValues(retailer).Observe(seconds)
}

// RecordCycle records the outcome of one ingest cycle.
func (s *Set) RecordCycle(status string) {
	if s == nil {
		return
	}
	s.IngestCyclesTotal.WithLabelValues(status).Inc()
}

// RecordStations records the station count ingested for a retailer.
func (s *Set) RecordStations(retailer string, count int) {
	if s == nil {
		return
	}
	s.StationsLastCycle.WithLabelValues(retailer).Set(float64(count))
}

// RecordArchive records one archive snapshot write.
func (s *Set) RecordArchive(retailer, reason string) {
	if s == nil {
		return
	}
	s.ArchiveWritesTotal.WithLabelValues(retailer, reason).Inc()
}

// RecordConflict records one revision conflict on the snapshot store.
func (s *Set) RecordConflict() {
	if s == nil {
		return
	}
	s.StoreConflicts.Inc()
}

// RecordQuery records one station query duration.
func (s *Set) RecordQuery(seconds float64) {
	if s == nil {
		return
	}
	s.QueryDuration.Observe(seconds)
}
