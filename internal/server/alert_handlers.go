package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/studystack/sentinel/internal/core"
	"github.com/studystack/sentinel/pkg/models"
)

// handleListAlerts returns recent alert history, optionally scoped to a rule.
// URL: GET /api/v1/alerts?rule_id=&limit=
func (s *Server) handleListAlerts(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return SendErrorWithType(c, fiber.StatusBadRequest, "limit must be a positive integer", models.ValidationErrorType)
		}
		limit = parsed
	}

	var (
		alerts []*models.Alert
		err    error
	)
	if raw := c.Query("rule_id"); raw != "" {
		ruleID, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil || ruleID <= 0 {
			return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid rule_id", models.ValidationErrorType)
		}
		alerts, err = core.ListAlertsForRule(c.Context(), s.sqlite, models.RuleID(ruleID), limit)
	} else {
		alerts, err = core.ListAlerts(c.Context(), s.sqlite, limit)
	}
	if err != nil {
		s.log.Error("failed to list alerts", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list alerts", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, alerts)
}

// handleAcknowledgeAlert marks an alert acknowledged. Repeat acknowledgements
// return 404 so the caller learns the first one already landed.
// URL: POST /api/v1/alerts/:id/acknowledge
func (s *Server) handleAcknowledgeAlert(c *fiber.Ctx) error {
	alertID := c.Params("id")
	if alertID == "" {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Alert ID is required", models.ValidationErrorType)
	}
	if err := core.AcknowledgeAlert(c.Context(), s.sqlite, s.log, alertID); err != nil {
		if errors.Is(err, core.ErrAlertNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Alert not found or already acknowledged", models.NotFoundErrorType)
		}
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to acknowledge alert", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"alert_id": alertID, "acknowledged": true})
}
