// Package archive decides when a snapshot is worth keeping forever and
// performs the revision-guarded writes.
package archive

import (
	"math"
	"time"

	"github.com/fuelwatch/fuelwatch/internal/models"
)

const (
	// staleAfter forces an archive when the prior snapshot is this old.
	staleAfter = 24 * time.Hour
	// changedFraction is the share of materially changed stations above
	// which a snapshot is archived.
	changedFraction = 0.05
	// priceTolerance is the per-fuel change, in minor currency units,
	// below which a price move is not material.
	priceTolerance = 1.0
)

// Evaluate compares an incoming snapshot against the persisted one and
// decides whether the new snapshot is archive-worthy. It is a pure function
// of its inputs; prev is nil when no prior snapshot exists.
func Evaluate(prev *models.RetailerSnapshot, next models.RetailerSnapshot, now time.Time) models.ArchiveDecision {
	if prev == nil {
		return models.ArchiveDecision{Archive: true, Reason: models.ReasonFirstWrite}
	}
	if now.Sub(prev.LastUpdated) >= staleAfter {
		return models.ArchiveDecision{Archive: true, Reason: models.ReasonStale}
	}
	if len(next.Stations) == 0 {
		return models.ArchiveDecision{}
	}

	prevByID := make(map[string]models.Station, len(prev.Stations))
	for _, st := range prev.Stations {
		prevByID[st.SiteID] = st
	}

	changed := 0
	for _, st := range next.Stations {
		old, ok := prevByID[st.SiteID]
		if !ok || materialPriceChange(old.Prices, st.Prices) {
			changed++
		}
	}

	if float64(changed)/float64(len(next.Stations)) > changedFraction {
		return models.ArchiveDecision{Archive: true, Reason: models.ReasonChanged}
	}
	return models.ArchiveDecision{}
}

// materialPriceChange reports whether any fuel price differs by more than
// the tolerance between the two price maps. A price present on one side
// only compares against zero.
func materialPriceChange(old, next map[string]float64) bool {
	for ft, p := range next {
		if math.Abs(p-old[ft]) > priceTolerance {
			return true
		}
	}
	for ft, p := range old {
		if _, ok := next[ft]; !ok && math.Abs(p) > priceTolerance {
			return true
		}
	}
	return false
}
