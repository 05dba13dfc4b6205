package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/studystack/sentinel/internal/sqlite"
	"github.com/studystack/sentinel/pkg/models"
)

// ErrAlertNotFound is returned when an alert cannot be located or is already
// acknowledged.
var ErrAlertNotFound = errors.New("alert not found")

// ListAlerts fetches recent alert history, newest first.
func ListAlerts(ctx context.Context, db *sqlite.DB, limit int) ([]*models.Alert, error) {
	alerts, err := db.ListAlerts(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return alerts, nil
}

// ListAlertsForRule fetches history for a single rule, newest first.
func ListAlertsForRule(ctx context.Context, db *sqlite.DB, ruleID models.RuleID, limit int) ([]*models.Alert, error) {
	alerts, err := db.ListAlertsForRule(ctx, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts for rule: %w", err)
	}
	return alerts, nil
}

// AcknowledgeAlert marks an alert acknowledged. The first acknowledgement
// wins; later attempts report ErrAlertNotFound.
func AcknowledgeAlert(ctx context.Context, db *sqlite.DB, log *slog.Logger, alertID string) error {
	if err := db.AcknowledgeAlert(ctx, alertID); err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return ErrAlertNotFound
		}
		log.Error("failed to acknowledge alert", "alert_id", alertID, "error", err)
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	log.Info("alert acknowledged", "alert_id", alertID)
	return nil
}
