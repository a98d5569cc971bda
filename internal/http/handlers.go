package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fuelwatch/fuelwatch/internal/aggregate"
	"github.com/fuelwatch/fuelwatch/internal/models"
	"github.com/fuelwatch/fuelwatch/internal/query"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

// queryResponse is the body of GET /api/v1/stations.
type queryResponse struct {
	Records     []models.AggregatedRecord   `json:"records"`
	LastUpdated *time.Time                  `json:"last_updated"`
	PriceStats  map[string]models.PriceStat `json:"price_stats"`
	Degraded    bool                        `json:"degraded,omitempty"`
}

func (s *Server) handleStations(c *gin.Context) {
	start := time.Now()

	criteria, err := parseCriteria(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snapshots := s.loadSnapshots(c.Request.Context())
	records, lastUpdated := aggregate.Aggregate(snapshots)

	result, err := s.pipeline.Run(c.Request.Context(), records, criteria)
	if err != nil {
		if errors.Is(err, query.ErrInvalidCriteria) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		s.logger.Error().Err(err).Msg("query pipeline failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	s.metrics.RecordQuery(time.Since(start).Seconds())

	c.JSON(http.StatusOK, queryResponse{
		Records:     result.Records,
		LastUpdated: lastUpdated,
		PriceStats:  result.PriceStats,
		Degraded:    result.Degraded,
	})
}

func (s *Server) handleIngest(c *gin.Context) {
	cycle := s.ingest.RunCycle(c.Request.Context())
	status := http.StatusOK
	if cycle.Degraded {
		status = http.StatusPartialContent
	}
	c.JSON(status, cycle)
}

func (s *Server) handleStatus(c *gin.Context) {
	response := models.StatusResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Retailers:     make(map[string]models.RetailerStatus),
		Store: models.StoreStatus{
			Backend: s.storeBackend,
		},
	}

	if s.scheduler != nil {
		response.SchedulerRunning = s.scheduler.IsRunning()
		response.LastCycleAt = s.scheduler.LastRunAt()
		if next := s.scheduler.NextRunAt(); !next.IsZero() {
			response.NextCycleAt = &next
		}
	}

	for _, src := range s.sources {
		response.Retailers[src.Name] = models.RetailerStatus{Enabled: src.Enabled}
	}
	if cycle := s.ingest.LastCycle(); cycle != nil {
		response.LastCycleID = cycle.CycleID
		for _, fr := range cycle.Results {
			rs := response.Retailers[fr.Retailer]
			rs.LastSuccess = fr.Success
			rs.StationCount = fr.StationCount
			rs.LastError = fr.Error
			rs.Archived = fr.Archived
			response.Retailers[fr.Retailer] = rs
		}
	}

	if pinger, ok := s.store.(store.Pinger); ok {
		response.Store.Connected = pinger.Ping(c.Request.Context()) == nil
	}

	c.JSON(http.StatusOK, response)
}

// loadSnapshots reads the current snapshot of every configured retailer.
// Missing or unreadable snapshots contribute zero records; a query never
// fails because one retailer has no data yet.
func (s *Server) loadSnapshots(ctx context.Context) []models.RetailerSnapshot {
	snapshots := make([]models.RetailerSnapshot, 0, len(s.sources))
	for _, src := range s.sources {
		obj, err := s.store.Get(ctx, store.CurrentKey(src.Name))
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				s.logger.Warn().
					Err(err).
					Str("retailer", src.Name).
					Msg("failed to read current snapshot")
			}
			continue
		}
		var snap models.RetailerSnapshot
		if err := json.Unmarshal(obj.Data, &snap); err != nil {
			s.logger.Warn().
				Err(err).
				Str("retailer", src.Name).
				Msg("stored snapshot is unreadable")
			continue
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots
}

// parseCriteria builds query criteria from request parameters. Any
// non-numeric value in a numeric parameter fails fast.
func parseCriteria(c *gin.Context) (query.Criteria, error) {
	criteria := query.Criteria{
		FuelType: c.Query("fuel_type"),
		Retailer: c.Query("retailer"),
		Postcode: c.Query("postcode"),
		SortBy:   c.Query("sort_by"),
	}

	var err error
	if criteria.Lat, err = parseFloatParam(c, "lat"); err != nil {
		return query.Criteria{}, err
	}
	if criteria.Lng, err = parseFloatParam(c, "lng"); err != nil {
		return query.Criteria{}, err
	}
	if criteria.MinPrice, err = parseFloatParam(c, "min_price"); err != nil {
		return query.Criteria{}, err
	}
	if criteria.MaxPrice, err = parseFloatParam(c, "max_price"); err != nil {
		return query.Criteria{}, err
	}

	if v := c.Query("max_distance"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("%w: max_distance %q is not numeric", query.ErrInvalidCriteria, v)
		}
		criteria.MaxDistance = d
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return query.Criteria{}, fmt.Errorf("%w: limit %q is not an integer", query.ErrInvalidCriteria, v)
		}
		criteria.Limit = n
	}

	return criteria, criteria.Validate()
}

func parseFloatParam(c *gin.Context, name string) (*float64, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q is not numeric", query.ErrInvalidCriteria, name, v)
	}
	return &f, nil
}
