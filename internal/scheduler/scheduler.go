// Package scheduler drives periodic ingest cycles.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/ingest"
)

// Scheduler runs an ingest cycle immediately on start and then at a fixed
// interval until the context is cancelled.
type Scheduler struct {
	service  *ingest.Service
	interval time.Duration
	logger   zerolog.Logger

	mu        sync.RWMutex
	nextRunAt time.Time
	lastRunAt *time.Time
	running   bool
}

// New creates a new Scheduler.
func New(service *ingest.Service, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		service:  service,
		interval: interval,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler and blocks until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Dur("interval", s.interval).Msg("starting scheduler")

	s.runCycle(ctx)

	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	s.setNextRun(time.Now().Add(s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
			s.runCycle(ctx)
			timer.Reset(s.interval)
			s.setNextRun(time.Now().Add(s.interval))
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	now := time.Now()
	s.mu.Lock()
	s.lastRunAt = &now
	s.mu.Unlock()

	cycle := s.service.RunCycle(ctx)

	s.logger.Info().
		Str("cycle_id", cycle.CycleID).
		Int("succeeded", cycle.Succeeded).
		Int("failed", cycle.Failed).
		Bool("degraded", cycle.Degraded).
		Msg("scheduled cycle completed")
}

func (s *Scheduler) setNextRun(t time.Time) {
	s.mu.Lock()
	s.nextRunAt = t
	s.mu.Unlock()
}

// NextRunAt returns the time of the next scheduled cycle.
func (s *Scheduler) NextRunAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRunAt
}

// LastRunAt returns the time of the last cycle start.
func (s *Scheduler) LastRunAt() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRunAt
}

// IsRunning returns whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
