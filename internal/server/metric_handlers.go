package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/studystack/sentinel/pkg/models"
)

// handleIngestMetric accepts one metric sample.
// URL: POST /api/v1/metrics
func (s *Server) handleIngestMetric(c *fiber.Ctx) error {
	var req models.IngestMetricRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	if strings.TrimSpace(req.Name) == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Metric name is required", models.ValidationErrorType)
	}

	metric := models.Metric{
		Name:       strings.TrimSpace(req.Name),
		Value:      req.Value,
		Unit:       req.Unit,
		Timestamp:  time.Now().UTC(),
		Tags:       req.Tags,
		Severity:   req.Severity,
		Thresholds: req.Thresholds,
	}
	if req.Timestamp != nil {
		metric.Timestamp = req.Timestamp.UTC()
	}

	if err := s.store.Ingest(metric); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
	}
	return SendSuccess(c, fiber.StatusAccepted, fiber.Map{"message": "Metric accepted"})
}

// handleQueryMetrics returns recent samples, optionally filtered by name.
// URL: GET /api/v1/metrics?name=&minutes=
func (s *Server) handleQueryMetrics(c *fiber.Ctx) error {
	minutes := 60
	if raw := c.Query("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return SendErrorWithType(c, fiber.StatusBadRequest, "minutes must be a positive integer", models.ValidationErrorType)
		}
		minutes = parsed
	}

	name := c.Query("name")
	var samples []models.Metric
	if name != "" {
		samples = s.store.Query(name, minutes)
	} else {
		samples = s.store.QueryAll(minutes)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{
		"metrics": samples,
		"count":   len(samples),
	})
}
