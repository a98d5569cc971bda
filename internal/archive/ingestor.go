package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/metrics"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

// maxCASRetries bounds the read-evaluate-write loop under contention.
const maxCASRetries = 3

// Outcome reports what one ingest actually did.
type Outcome struct {
	Written  bool
	Archived bool
	Reason   string
}

// Ingestor persists retailer snapshots through the revision-guarded store.
// The snapshot read for the revision token is also the comparison basis for
// the archive decision, so the decision is always made against the snapshot
// actually being replaced.
type Ingestor struct {
	store   store.Store
	logger  zerolog.Logger
	metrics *metrics.Set
	now     func() time.Time
}

// NewIngestor creates an Ingestor over the given store.
func NewIngestor(st store.Store, m *metrics.Set, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:   st,
		logger:  logger.With().Str("component", "archive").Logger(),
		metrics: m,
		now:     time.Now,
	}
}

// Ingest replaces the retailer's current snapshot and, when the decision
// calls for it, appends an immutable archive copy. A revision conflict from
// a concurrent writer triggers a fresh read and re-evaluation, up to
// maxCASRetries times.
func (in *Ingestor) Ingest(ctx context.Context, snapshot models.RetailerSnapshot) (Outcome, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return Outcome{}, fmt.Errorf("encoding snapshot: %w", err)
	}

	currentKey := store.CurrentKey(snapshot.Retailer)

	for attempt := 1; attempt <= maxCASRetries; attempt++ {
		var prev *models.RetailerSnapshot
		revision := ""

		obj, err := in.store.Get(ctx, currentKey)
		switch {
		case err == nil:
			revision = obj.Revision
			var p models.RetailerSnapshot
			if err := json.Unmarshal(obj.Data, &p); err == nil {
				prev = &p
			} else {
				// An unreadable prior snapshot is treated as absent; the
				// CAS token still guards the write.
				in.logger.Warn().
					Err(err).
					Str("retailer", snapshot.Retailer).
					Msg("stored snapshot is unreadable")
			}
		case errors.Is(err, store.ErrNotFound):
		default:
			return Outcome{}, fmt.Errorf("reading current snapshot: %w", err)
		}

		decision := Evaluate(prev, snapshot, in.now())

		if _, err := in.store.Put(ctx, currentKey, data, revision); err != nil {
			if errors.Is(err, store.ErrConflict) {
				in.metrics.RecordConflict()
				in.logger.Warn().
					Str("retailer", snapshot.Retailer).
					Int("attempt", attempt).
					Msg("revision conflict, re-reading")
				continue
			}
			return Outcome{}, fmt.Errorf("writing current snapshot: %w", err)
		}

		out := Outcome{Written: true, Archived: decision.Archive, Reason: decision.Reason}
		if decision.Archive {
			archiveKey := store.ArchiveKey(snapshot.Retailer, in.now())
			if _, err := in.store.Put(ctx, archiveKey, data, ""); err != nil {
				return Outcome{Written: true}, fmt.Errorf("writing archive snapshot: %w", err)
			}
			in.metrics.RecordArchive(snapshot.Retailer, decision.Reason)
			in.logger.Info().
				Str("retailer", snapshot.Retailer).
				Str("reason", decision.Reason).
				Str("key", archiveKey).
				Msg("archived snapshot")
		}

		return out, nil
	}

	return Outcome{}, fmt.Errorf("%w: gave up on %s after %d attempts", store.ErrConflict, snapshot.Retailer, maxCASRetries)
}
