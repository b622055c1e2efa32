// Package http provides the repoqa HTTP API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repoqa/internal/answer"
	"github.com/fyrsmithlabs/repoqa/internal/indexer"
	"github.com/fyrsmithlabs/repoqa/internal/retrieval"
	"github.com/fyrsmithlabs/repoqa/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the repoqa HTTP endpoints.
type Server struct {
	echo        *echo.Echo
	sessions    *session.Manager
	indexer     *indexer.Indexer
	engine      *retrieval.Engine
	synthesizer *answer.Synthesizer
	metrics     *Metrics
	registry    *prometheus.Registry
	logger      *zap.Logger
	config      Config
}

// NewServer creates the HTTP server and registers all routes.
func NewServer(sessions *session.Manager, ix *indexer.Indexer, engine *retrieval.Engine, synthesizer *answer.Synthesizer, cfg Config, logger *zap.Logger) (*Server, error) {
	if sessions == nil || ix == nil || engine == nil || synthesizer == nil {
		return nil, fmt.Errorf("all pipeline components are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:        e,
		sessions:    sessions,
		indexer:     ix,
		engine:      engine,
		synthesizer: synthesizer,
		metrics:     metrics,
		registry:    registry,
		logger:      logger,
		config:      cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/index", s.handleIndex)
	v1.GET("/status/:id", s.handleStatus)
	v1.POST("/query", s.handleQuery)
	v1.DELETE("/sessions/:id", s.handleDeleteSession)
}

// Echo exposes the underlying router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
