// Package http provides the ops HTTP server: database health and Prometheus metrics.
package http

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/e2ee/internal/metrics"
)

const healthCheckTimeout = 2 * time.Second

// Server is the ops HTTP server.
type Server struct {
	db     *sql.DB
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer creates the ops server. A nil metricsProvider disables /metrics.
func NewServer(
	db *sql.DB,
	host string,
	port int,
	logger *slog.Logger,
	metricsProvider *metrics.Provider,
) *Server {
	s := &Server{
		db:     db,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", host, port),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.router = s.setupRouter(metricsProvider)
	s.server.Handler = s.router
	return s
}

func (s *Server) setupRouter(metricsProvider *metrics.Provider) *gin.Engine {
	router := gin.New()
	router.Use(requestid.New(requestid.WithGenerator(func() string {
		return uuid.Must(uuid.NewV7()).String()
	})))
	router.Use(CustomLoggerMiddleware(s.logger))
	router.Use(gin.Recovery())

	if metricsProvider != nil {
		router.Use(metricsProvider.HTTPMiddleware())
		router.GET("/metrics", gin.WrapH(metricsProvider.Handler()))
	}

	router.GET("/health", s.healthHandler)
	return router
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting ops server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.InfoContext(ctx, "shutting down ops server")
	return s.server.Shutdown(ctx)
}

// healthHandler pings the database.
func (s *Server) healthHandler(c *gin.Context) {
	if s.db == nil {
		s.unhealthy(c, errors.New("database not configured"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.unhealthy(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"components": gin.H{"database": "ok"},
	})
}

func (s *Server) unhealthy(c *gin.Context, err error) {
	s.logger.WarnContext(c.Request.Context(), "health check failed", slog.Any("error", err))
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"status":     "unhealthy",
		"components": gin.H{"database": "error"},
	})
}
