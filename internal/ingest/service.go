// Package ingest runs full fetch-normalize-persist cycles across all
// configured retailers.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/archive"
	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/fuelwatch/fuelwatch/internal/feed"
	"github.com/fuelwatch/fuelwatch/internal/fetcher"
	"github.com/fuelwatch/fuelwatch/internal/metrics"
	"github.com/fuelwatch/fuelwatch/internal/models"
)

// CycleResult summarises one ingest cycle: one FetchResult per enabled
// source plus overall counts.
type CycleResult struct {
	CycleID   string               `json:"cycle_id"`
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	Results   []models.FetchResult `json:"results"`
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	// Degraded is set when more than half of the enabled sources failed.
	Degraded bool `json:"degraded"`
}

// Service orchestrates ingest cycles. One retailer's failure at any stage
// never aborts the others; it becomes a failed FetchResult. Cycles are
// serialized with a mutex because archive-decision freshness comparisons
// assume single-writer-at-a-time semantics.
type Service struct {
	fetcher  *fetcher.Fetcher
	ingestor *archive.Ingestor
	sources  []config.Source
	logger   zerolog.Logger
	metrics  *metrics.Set

	// runMu serializes cycles; mu guards lastCycle so /status never
	// blocks behind a running cycle.
	runMu     sync.Mutex
	mu        sync.RWMutex
	lastCycle *CycleResult
}

// New creates an ingest Service over the configured sources.
func New(f *fetcher.Fetcher, ing *archive.Ingestor, sources []config.Source, m *metrics.Set, logger zerolog.Logger) *Service {
	return &Service{
		fetcher:  f,
		ingestor: ing,
		sources:  sources,
		logger:   logger.With().Str("component", "ingest").Logger(),
		metrics:  m,
	}
}

// Sources returns the configured source list.
func (s *Service) Sources() []config.Source {
	return s.sources
}

// RunCycle fetches, normalizes and persists every enabled source once.
func (s *Service) RunCycle(ctx context.Context) CycleResult {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	cycleID := uuid.NewString()
	started := time.Now()
	logger := s.logger.With().Str("cycle_id", cycleID).Logger()

	enabled := make([]config.Source, 0, len(s.sources))
	for _, src := range s.sources {
		if src.Enabled {
			enabled = append(enabled, src)
		}
	}

	logger.Info().Int("sources", len(enabled)).Msg("starting ingest cycle")

	raw, _ := s.fetcher.FetchAll(ctx, enabled)

	results := make([]models.FetchResult, 0, len(raw))
	for _, r := range raw {
		results = append(results, s.ingestSource(ctx, r, logger))
	}

	cycle := CycleResult{
		CycleID:   cycleID,
		StartedAt: started,
		Duration:  time.Since(started),
		Results:   results,
	}
	for _, fr := range results {
		if fr.Success {
			cycle.Succeeded++
		} else {
			cycle.Failed++
		}
	}
	// Degradation counts failures from every stage, not just the fetch.
	cycle.Degraded = len(results) > 0 && cycle.Failed*2 > len(results)

	status := "success"
	if cycle.Degraded {
		status = "degraded"
		logger.Warn().
			Int("failed", cycle.Failed).
			Int("total", len(results)).
			Msg("ingest cycle degraded, more than half of sources failed")
	}
	s.metrics.RecordCycle(status)

	logger.Info().
		Int("succeeded", cycle.Succeeded).
		Int("failed", cycle.Failed).
		Dur("duration", cycle.Duration).
		Msg("ingest cycle completed")

	s.mu.Lock()
	s.lastCycle = &cycle
	s.mu.Unlock()
	return cycle
}

func (s *Service) ingestSource(ctx context.Context, r fetcher.SourceResult, logger zerolog.Logger) models.FetchResult {
	result := models.FetchResult{Retailer: r.Source.Name}

	if r.Err != nil {
		result.Error = r.Err.Error()
		logger.Error().
			Err(r.Err).
			Str("retailer", r.Source.Name).
			Msg("source fetch failed")
		return result
	}

	snapshot, err := feed.Normalize(r.Source.Name, r.Payload, time.Now())
	if err != nil {
		result.Error = err.Error()
		logger.Error().
			Err(err).
			Str("retailer", r.Source.Name).
			Msg("feed normalization failed")
		return result
	}

	outcome, err := s.ingestor.Ingest(ctx, snapshot)
	if err != nil {
		result.Error = err.Error()
		logger.Error().
			Err(err).
			Str("retailer", r.Source.Name).
			Msg("snapshot persistence failed")
		return result
	}

	result.Success = true
	result.StationCount = len(snapshot.Stations)
	result.Archived = outcome.Archived
	s.metrics.RecordStations(r.Source.Name, result.StationCount)

	logger.Info().
		Str("retailer", r.Source.Name).
		Int("stations", result.StationCount).
		Bool("archived", outcome.Archived).
		Str("reason", outcome.Reason).
		Msg("ingested snapshot")

	return result
}

// LastCycle returns a copy of the most recent cycle result, or nil before
// the first cycle has run.
func (s *Service) LastCycle() *CycleResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastCycle == nil {
		return nil
	}
	cycle := *s.lastCycle
	cycle.Results = append([]models.FetchResult(nil), s.lastCycle.Results...)
	return &cycle
}
