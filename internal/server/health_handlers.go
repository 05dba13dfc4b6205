package server

import (
	"github.com/gofiber/fiber/v2"

	"github.com/studystack/sentinel/internal/metrics"
)

// handleLiveness is the plain liveness probe. It reports only that the
// process is serving; the aggregated view lives under /api/v1/health/system.
// URL: GET /health
func (s *Server) handleLiveness(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, fiber.Map{
		"status":  "ok",
		"version": s.version,
	})
}

// handleSystemHealth returns the latest aggregated health snapshot.
// URL: GET /api/v1/health/system
func (s *Server) handleSystemHealth(c *fiber.Ctx) error {
	return SendSuccess(c, fiber.StatusOK, s.health.Snapshot())
}

// handleSelfTelemetry exposes internal counters in Prometheus text format.
// URL: GET /metrics/self
func (s *Server) handleSelfTelemetry(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	metrics.WriteSelfTelemetry(c.Response().BodyWriter())
	return nil
}
