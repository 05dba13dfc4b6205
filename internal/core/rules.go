// Package core holds rule and alert orchestration shared by the HTTP
// handlers and the evaluation pipeline. Functions are stateless; state lives
// in the sqlite layer.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/studystack/sentinel/internal/sqlite"
	"github.com/studystack/sentinel/pkg/models"
)

var (
	// ErrRuleNotFound is returned when an alert rule cannot be located.
	ErrRuleNotFound = errors.New("alert rule not found")
	// ErrInvalidRuleConfiguration indicates the request payload failed validation.
	ErrInvalidRuleConfiguration = errors.New("invalid rule configuration")
)

var validConditions = map[models.RuleCondition]struct{}{
	models.ConditionGreaterThan: {},
	models.ConditionLessThan:    {},
	models.ConditionEquals:      {},
	models.ConditionNotEquals:   {},
	models.ConditionAnomaly:     {},
}

var validSeverities = map[models.RuleSeverity]struct{}{
	models.RuleSeverityLow:      {},
	models.RuleSeverityMedium:   {},
	models.RuleSeverityHigh:     {},
	models.RuleSeverityCritical: {},
}

var validChannelTypes = map[models.ChannelType]struct{}{
	models.ChannelEmail:   {},
	models.ChannelChat:    {},
	models.ChannelWebhook: {},
	models.ChannelSMS:     {},
	models.ChannelPager:   {},
}

func validateChannels(channels []models.NotificationChannel) error {
	for i, channel := range channels {
		if _, ok := validChannelTypes[channel.Type]; !ok {
			return fmt.Errorf("channel %d: invalid type %q", i, channel.Type)
		}
		if strings.TrimSpace(channel.Destination) == "" {
			return fmt.Errorf("channel %d: destination is required", i)
		}
		if channel.RetryCount < 0 {
			return fmt.Errorf("channel %d: retry_count must not be negative", i)
		}
	}
	return nil
}

func validateRuleRequest(req *models.CreateRuleRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(req.MetricName) == "" {
		return fmt.Errorf("metric_name is required")
	}
	if _, ok := validConditions[req.Condition]; !ok {
		return fmt.Errorf("invalid condition %q", req.Condition)
	}
	if _, ok := validSeverities[req.Severity]; !ok {
		return fmt.Errorf("invalid severity %q", req.Severity)
	}
	if req.DurationMinutes < 0 {
		return fmt.Errorf("duration_minutes must not be negative")
	}
	return validateChannels(req.Channels)
}

// CreateRule validates and persists a new alert rule.
func CreateRule(ctx context.Context, db *sqlite.DB, log *slog.Logger, req *models.CreateRuleRequest) (*models.AlertRule, error) {
	if req == nil {
		return nil, ErrInvalidRuleConfiguration
	}
	if err := validateRuleRequest(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRuleConfiguration, err)
	}

	rule := &models.AlertRule{
		Name:            strings.TrimSpace(req.Name),
		Description:     strings.TrimSpace(req.Description),
		MetricName:      strings.TrimSpace(req.MetricName),
		Condition:       req.Condition,
		Threshold:       req.Threshold,
		DurationMinutes: req.DurationMinutes,
		Severity:        req.Severity,
		Channels:        req.Channels,
		Enabled:         req.Enabled,
	}
	if err := db.CreateRule(ctx, rule); err != nil {
		log.Error("failed to create rule", "name", rule.Name, "error", err)
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	log.Info("rule created", "rule_id", rule.ID, "name", rule.Name, "metric", rule.MetricName)
	return rule, nil
}

// GetRule retrieves a single rule by ID.
func GetRule(ctx context.Context, db *sqlite.DB, log *slog.Logger, id models.RuleID) (*models.AlertRule, error) {
	rule, err := db.GetRule(ctx, id)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrRuleNotFound
		}
		log.Error("failed to get rule", "rule_id", id, "error", err)
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// ListRules lists all rules.
func ListRules(ctx context.Context, db *sqlite.DB) ([]*models.AlertRule, error) {
	rules, err := db.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

// UpdateRule applies the non-nil fields of req to an existing rule.
func UpdateRule(ctx context.Context, db *sqlite.DB, log *slog.Logger, id models.RuleID, req *models.UpdateRuleRequest) (*models.AlertRule, error) {
	if req == nil {
		return nil, ErrInvalidRuleConfiguration
	}
	rule, err := GetRule(ctx, db, log, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		rule.Description = strings.TrimSpace(*req.Description)
	}
	if req.MetricName != nil {
		rule.MetricName = strings.TrimSpace(*req.MetricName)
	}
	if req.Condition != nil {
		rule.Condition = *req.Condition
	}
	if req.Threshold != nil {
		rule.Threshold = *req.Threshold
	}
	if req.DurationMinutes != nil {
		rule.DurationMinutes = *req.DurationMinutes
	}
	if req.Severity != nil {
		rule.Severity = *req.Severity
	}
	if req.Channels != nil {
		rule.Channels = *req.Channels
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	check := models.CreateRuleRequest{
		Name:            rule.Name,
		Description:     rule.Description,
		MetricName:      rule.MetricName,
		Condition:       rule.Condition,
		Threshold:       rule.Threshold,
		DurationMinutes: rule.DurationMinutes,
		Severity:        rule.Severity,
		Channels:        rule.Channels,
		Enabled:         rule.Enabled,
	}
	if err := validateRuleRequest(&check); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRuleConfiguration, err)
	}

	if err := db.UpdateRule(ctx, rule); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return nil, ErrRuleNotFound
		}
		log.Error("failed to update rule", "rule_id", id, "error", err)
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	log.Info("rule updated", "rule_id", id)
	return rule, nil
}

// DeleteRule removes a rule and its alert history.
func DeleteRule(ctx context.Context, db *sqlite.DB, log *slog.Logger, id models.RuleID) error {
	if err := db.DeleteRule(ctx, id); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return ErrRuleNotFound
		}
		log.Error("failed to delete rule", "rule_id", id, "error", err)
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	log.Info("rule deleted", "rule_id", id)
	return nil
}

// SetRuleEnabled flips a rule's enabled flag.
func SetRuleEnabled(ctx context.Context, db *sqlite.DB, log *slog.Logger, id models.RuleID, enabled bool) error {
	if err := db.SetRuleEnabled(ctx, id, enabled); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return ErrRuleNotFound
		}
		log.Error("failed to set rule enabled", "rule_id", id, "enabled", enabled, "error", err)
		return fmt.Errorf("failed to set rule enabled: %w", err)
	}
	log.Info("rule enabled flag changed", "rule_id", id, "enabled", enabled)
	return nil
}
