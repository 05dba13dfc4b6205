package server

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/studystack/sentinel/pkg/models"
)

// handleListInsights returns recent insights, newest first.
// URL: GET /api/v1/insights?limit=
func (s *Server) handleListInsights(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return SendErrorWithType(c, fiber.StatusBadRequest, "limit must be a positive integer", models.ValidationErrorType)
		}
		limit = parsed
	}
	insights, err := s.sqlite.ListInsights(c.Context(), limit)
	if err != nil {
		s.log.Error("failed to list insights", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list insights", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, insights)
}
