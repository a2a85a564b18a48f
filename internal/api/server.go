// Package api serves the operational HTTP surface of the ingestor: health,
// Prometheus metrics, source listing, queue stats and manual runs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/config"
	"github.com/jonesrussell/north-cloud/watchlist-ingestor/internal/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Deps are the collaborators of the router.
type Deps struct {
	Service string
	Version string
	Sources SourceCatalog
	Jobs    JobStore
	Metrics http.Handler
	Checks  map[string]Checker
	Logger  logger.Logger

	// JWTSecret protects /api/v1 when set.
	JWTSecret string
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(deps Deps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	router := gin.New()
	router.Use(recoveryMiddleware(log))
	router.Use(requestIDMiddleware(log))
	router.Use(loggerMiddleware(log))

	router.GET("/health", healthHandler(deps.Service, deps.Version, time.Now(), deps.Checks))
	router.HEAD("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	h := NewHandler(deps.Sources, deps.Jobs, log)
	v1 := protectedGroup(router, "/api/v1", deps.JWTSecret)

	srcs := v1.Group("/sources")
	srcs.GET("", h.ListSources)
	srcs.POST("/:id/run", h.RunSource)

	v1.GET("/queues", h.QueueStats)
	v1.GET("/jobs/:queue/:id", h.GetJob)

	return router
}

// Server runs the router on an http.Server.
type Server struct {
	server *http.Server
	logger logger.Logger
}

// NewServer creates a Server listening on cfg.Port.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewRouter(deps),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: log,
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", logger.String("address", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}
