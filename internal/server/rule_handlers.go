package server

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/studystack/sentinel/internal/core"
	"github.com/studystack/sentinel/pkg/models"
)

func (s *Server) parseRuleID(c *fiber.Ctx) (models.RuleID, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, SendErrorWithType(c, fiber.StatusBadRequest, "Invalid rule ID", models.ValidationErrorType)
	}
	return models.RuleID(id), nil
}

// handleListRules returns all alert rules.
// URL: GET /api/v1/rules
func (s *Server) handleListRules(c *fiber.Ctx) error {
	rules, err := core.ListRules(c.Context(), s.sqlite)
	if err != nil {
		s.log.Error("failed to list rules", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to list rules", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, rules)
}

// handleCreateRule creates a new alert rule.
// URL: POST /api/v1/rules
func (s *Server) handleCreateRule(c *fiber.Ctx) error {
	var req models.CreateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	rule, err := core.CreateRule(c.Context(), s.sqlite, s.log, &req)
	if err != nil {
		if errors.Is(err, core.ErrInvalidRuleConfiguration) {
			return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
		}
		s.log.Error("failed to create rule", "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to create rule", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusCreated, rule)
}

// handleGetRule returns a single rule.
// URL: GET /api/v1/rules/:id
func (s *Server) handleGetRule(c *fiber.Ctx) error {
	id, err := s.parseRuleID(c)
	if err != nil {
		return err
	}
	rule, err := core.GetRule(c.Context(), s.sqlite, s.log, id)
	if err != nil {
		if errors.Is(err, core.ErrRuleNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Rule not found", models.NotFoundErrorType)
		}
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to get rule", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, rule)
}

// handleUpdateRule applies a partial update to a rule.
// URL: PUT /api/v1/rules/:id
func (s *Server) handleUpdateRule(c *fiber.Ctx) error {
	id, err := s.parseRuleID(c)
	if err != nil {
		return err
	}
	var req models.UpdateRuleRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "Invalid request body", models.ValidationErrorType)
	}
	rule, err := core.UpdateRule(c.Context(), s.sqlite, s.log, id, &req)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRuleNotFound):
			return SendErrorWithType(c, fiber.StatusNotFound, "Rule not found", models.NotFoundErrorType)
		case errors.Is(err, core.ErrInvalidRuleConfiguration):
			return SendErrorWithType(c, fiber.StatusBadRequest, err.Error(), models.ValidationErrorType)
		}
		s.log.Error("failed to update rule", "rule_id", id, "error", err)
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to update rule", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, rule)
}

// handleDeleteRule removes a rule and its alert history.
// URL: DELETE /api/v1/rules/:id
func (s *Server) handleDeleteRule(c *fiber.Ctx) error {
	id, err := s.parseRuleID(c)
	if err != nil {
		return err
	}
	if err := core.DeleteRule(c.Context(), s.sqlite, s.log, id); err != nil {
		if errors.Is(err, core.ErrRuleNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Rule not found", models.NotFoundErrorType)
		}
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to delete rule", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"id": id, "deleted": true})
}

// handleEnableRule enables a rule.
// URL: POST /api/v1/rules/:id/enable
func (s *Server) handleEnableRule(c *fiber.Ctx) error {
	return s.setRuleEnabled(c, true)
}

// handleDisableRule disables a rule without touching its history.
// URL: POST /api/v1/rules/:id/disable
func (s *Server) handleDisableRule(c *fiber.Ctx) error {
	return s.setRuleEnabled(c, false)
}

func (s *Server) setRuleEnabled(c *fiber.Ctx, enabled bool) error {
	id, err := s.parseRuleID(c)
	if err != nil {
		return err
	}
	if err := core.SetRuleEnabled(c.Context(), s.sqlite, s.log, id, enabled); err != nil {
		if errors.Is(err, core.ErrRuleNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "Rule not found", models.NotFoundErrorType)
		}
		return SendErrorWithType(c, fiber.StatusInternalServerError, "Failed to change rule state", models.GeneralErrorType)
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"id": id, "enabled": enabled})
}
