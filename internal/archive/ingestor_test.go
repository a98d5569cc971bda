package archive

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

func testSnapshot(updated time.Time, price float64) models.RetailerSnapshot {
	return models.RetailerSnapshot{
		Retailer:    "asda",
		LastUpdated: updated,
		Stations: []models.Station{
			{SiteID: "s1", Prices: map[string]float64{"E10": price}},
		},
	}
}

func newTestIngestor(st store.Store, now time.Time) *Ingestor {
	in := NewIngestor(st, nil, zerolog.Nop())
	in.now = func() time.Time { return now }
	return in
}

func TestIngestFirstWriteArchives(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := newTestIngestor(st, now)

	out, err := in.Ingest(context.Background(), testSnapshot(now, 140.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Written || !out.Archived || out.Reason != models.ReasonFirstWrite {
		t.Errorf("unexpected outcome: %+v", out)
	}

	// Current snapshot and one archive object.
	if st.Len() != 2 {
		t.Errorf("expected 2 stored objects, got %d", st.Len())
	}
	obj, err := st.Get(context.Background(), store.CurrentKey("asda"))
	if err != nil {
		t.Fatalf("current snapshot missing: %v", err)
	}
	var snap models.RetailerSnapshot
	if err := json.Unmarshal(obj.Data, &snap); err != nil {
		t.Fatalf("stored snapshot unreadable: %v", err)
	}
	if snap.Stations[0].Prices["E10"] != 140.9 {
		t.Errorf("unexpected stored price: %v", snap.Stations[0].Prices["E10"])
	}
}

func TestIngestQuietUpdateOverwritesWithoutArchive(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := newTestIngestor(st, now)

	if _, err := in.Ingest(context.Background(), testSnapshot(now.Add(-time.Hour), 140.9)); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	out, err := in.Ingest(context.Background(), testSnapshot(now, 141.4))
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if !out.Written {
		t.Error("current snapshot must always be replaced")
	}
	if out.Archived {
		t.Errorf("half-unit move must not archive: %+v", out)
	}

	// First-write archive plus current snapshot only.
	if st.Len() != 2 {
		t.Errorf("expected 2 stored objects, got %d", st.Len())
	}
}

// conflictingStore wedges one conflict into the first conditional write to
// exercise the re-read-and-retry path.
type conflictingStore struct {
	*store.MemoryStore
	conflicts int
}

func (c *conflictingStore) Put(ctx context.Context, key string, data []byte, expectedRevision string) (string, error) {
	if c.conflicts > 0 && strings.HasPrefix(key, "current/") {
		c.conflicts--
		// Simulate a concurrent writer racing in between read and write.
		if _, err := c.MemoryStore.Put(ctx, key, []byte(`{"retailer":"asda","stations":[]}`), expectedRevision); err != nil {
			return "", err
		}
		return "", store.ErrConflict
	}
	return c.MemoryStore.Put(ctx, key, data, expectedRevision)
}

func TestIngestRetriesOnRevisionConflict(t *testing.T) {
	st := &conflictingStore{MemoryStore: store.NewMemoryStore(), conflicts: 1}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := newTestIngestor(st, now)

	out, err := in.Ingest(context.Background(), testSnapshot(now, 140.9))
	if err != nil {
		t.Fatalf("ingest should survive one conflict: %v", err)
	}
	if !out.Written {
		t.Errorf("unexpected outcome: %+v", out)
	}

	obj, err := st.Get(context.Background(), store.CurrentKey("asda"))
	if err != nil {
		t.Fatalf("current snapshot missing: %v", err)
	}
	var snap models.RetailerSnapshot
	if err := json.Unmarshal(obj.Data, &snap); err != nil {
		t.Fatalf("stored snapshot unreadable: %v", err)
	}
	if len(snap.Stations) != 1 {
		t.Error("retry must have written the incoming snapshot, not the racer's")
	}
}

func TestIngestGivesUpAfterBoundedRetries(t *testing.T) {
	st := &conflictingStore{MemoryStore: store.NewMemoryStore(), conflicts: 100}
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	in := newTestIngestor(st, now)

	_, err := in.Ingest(context.Background(), testSnapshot(now, 140.9))
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
}
