// Package server exposes the HTTP API: metric ingestion and query, rule
// management, alert history, insights, aggregated health, backup operations,
// and self-telemetry.
package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/studystack/sentinel/internal/backup"
	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/internal/health"
	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/internal/sqlite"
)

// Server wires the fiber app to the service components.
type Server struct {
	app     *fiber.App
	config  *config.Config
	log     *slog.Logger
	sqlite  *sqlite.DB
	store   *metrics.Store
	health  *health.Aggregator
	backups *backup.Manager
	version string
}

// Options configures a Server.
type Options struct {
	Config  *config.Config
	Logger  *slog.Logger
	SQLite  *sqlite.DB
	Store   *metrics.Store
	Health  *health.Aggregator
	Backups *backup.Manager
	Version string
}

// New constructs the HTTP server and registers all routes.
func New(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	app := fiber.New(fiber.Config{
		ReadTimeout:           opts.Config.Server.ReadTimeout,
		WriteTimeout:          opts.Config.Server.WriteTimeout,
		DisableStartupMessage: true,
		AppName:               "sentinel",
	})
	app.Use(recover.New())

	s := &Server{
		app:     app,
		config:  opts.Config,
		log:     log.With("component", "server"),
		sqlite:  opts.SQLite,
		store:   opts.Store,
		health:  opts.Health,
		backups: opts.Backups,
		version: opts.Version,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Liveness probe for the health aggregator's own API check.
	s.app.Get("/health", s.handleLiveness)
	s.app.Get("/metrics/self", s.handleSelfTelemetry)

	api := s.app.Group("/api/v1")

	api.Post("/metrics", s.handleIngestMetric)
	api.Get("/metrics", s.handleQueryMetrics)

	api.Get("/rules", s.handleListRules)
	api.Post("/rules", s.handleCreateRule)
	api.Get("/rules/:id", s.handleGetRule)
	api.Put("/rules/:id", s.handleUpdateRule)
	api.Delete("/rules/:id", s.handleDeleteRule)
	api.Post("/rules/:id/enable", s.handleEnableRule)
	api.Post("/rules/:id/disable", s.handleDisableRule)

	api.Get("/alerts", s.handleListAlerts)
	api.Post("/alerts/:id/acknowledge", s.handleAcknowledgeAlert)

	api.Get("/insights", s.handleListInsights)

	api.Get("/health/system", s.handleSystemHealth)

	api.Get("/backups", s.handleListBackups)
	api.Post("/backups", s.handleCreateBackup)
	api.Post("/backups/verify", s.handleVerifyBackup)
}

// Start begins serving on the configured address. Blocks until Shutdown.
func (s *Server) Start() error {
	s.log.Info("http server listening", "addr", s.config.Server.Addr)
	return s.app.Listen(s.config.Server.Addr)
}

// Shutdown drains in-flight requests within the given context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if deadline, ok := ctx.Deadline(); ok {
		return s.app.ShutdownWithTimeout(time.Until(deadline))
	}
	return s.app.Shutdown()
}
