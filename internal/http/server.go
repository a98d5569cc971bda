// Package http provides the HTTP surface: the station query API, the
// ingest trigger, and the operational endpoints.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/fuelwatch/fuelwatch/internal/config"
	"github.com/fuelwatch/fuelwatch/internal/ingest"
	"github.com/fuelwatch/fuelwatch/internal/metrics"
	"github.com/fuelwatch/fuelwatch/internal/query"
	"github.com/fuelwatch/fuelwatch/internal/scheduler"
	"github.com/fuelwatch/fuelwatch/internal/store"
)

// Server hosts the query and ingest endpoints.
type Server struct {
	server       *http.Server
	logger       zerolog.Logger
	sources      []config.Source
	store        store.Store
	storeBackend string
	pipeline     *query.Pipeline
	ingest       *ingest.Service
	scheduler    *scheduler.Scheduler
	metrics      *metrics.Set
	startTime    time.Time
}

// NewServer creates the HTTP server and wires all routes.
func NewServer(addr string, cfg *config.Config, st store.Store, pipeline *query.Pipeline, svc *ingest.Service, sched *scheduler.Scheduler, m *metrics.Set, logger zerolog.Logger) *Server {
	s := &Server{
		logger:       logger.With().Str("component", "http").Logger(),
		sources:      cfg.Sources,
		store:        st,
		storeBackend: cfg.StoreBackend,
		pipeline:     pipeline,
		ingest:       svc,
		scheduler:    sched,
		metrics:      m,
		startTime:    time.Now(),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	engine.GET("/status", s.handleStatus)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	api.GET("/stations", s.handleStations)
	api.POST("/ingest", s.handleIngest)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the route tree, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
