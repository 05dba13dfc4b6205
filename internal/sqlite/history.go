package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/studystack/sentinel/pkg/models"
)

const (
	insertAlertQuery = `INSERT INTO alert_history (
    alert_uid,
    rule_id,
    rule_name,
    metric_name,
    metric_value,
    threshold,
    severity,
    triggered_at,
    description,
    business_context,
    recommended_actions,
    escalation_policy,
    deliveries
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectAlertBase = `SELECT
    alert_uid,
    rule_id,
    rule_name,
    metric_name,
    metric_value,
    threshold,
    severity,
    triggered_at,
    description,
    business_context,
    recommended_actions,
    escalation_policy,
    acknowledged,
    acknowledged_at,
    deliveries
FROM alert_history`

	updateDeliveriesQuery = `UPDATE alert_history
SET deliveries = ?
WHERE alert_uid = ?`

	acknowledgeAlertQuery = `UPDATE alert_history
SET acknowledged = 1,
    acknowledged_at = datetime('now')
WHERE alert_uid = ? AND acknowledged = 0`

	pruneAlertHistoryQuery = `WITH ranked AS (
    SELECT id,
           ROW_NUMBER() OVER (ORDER BY triggered_at DESC, id DESC) AS rn
    FROM alert_history
    WHERE rule_id = ?
)
DELETE FROM alert_history
WHERE rule_id = ?
  AND id IN (
    SELECT id FROM ranked WHERE rn > ?
 )`
)

// InsertAlert appends a fired alert to the history.
func (db *DB) InsertAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert payload is required")
	}
	actionsJSON, err := json.Marshal(alert.RecommendedActions)
	if err != nil {
		return fmt.Errorf("failed to marshal recommended actions: %w", err)
	}
	deliveriesJSON, err := json.Marshal(alert.Deliveries)
	if err != nil {
		return fmt.Errorf("failed to marshal deliveries: %w", err)
	}

	_, err = db.writeDB.ExecContext(ctx, insertAlertQuery,
		alert.AlertID,
		int64(alert.RuleID),
		alert.RuleName,
		alert.MetricName,
		alert.MetricValue,
		alert.Threshold,
		string(alert.Severity),
		alert.TriggeredAt,
		nullableString(alert.Description),
		nullableString(alert.BusinessContext),
		string(actionsJSON),
		nullableString(alert.EscalationPolicy),
		string(deliveriesJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// UpdateAlertDeliveries replaces the recorded delivery outcomes for an alert.
func (db *DB) UpdateAlertDeliveries(ctx context.Context, alertUID string, deliveries []models.DeliveryResult) error {
	deliveriesJSON, err := json.Marshal(deliveries)
	if err != nil {
		return fmt.Errorf("failed to marshal deliveries: %w", err)
	}
	if _, err := db.writeDB.ExecContext(ctx, updateDeliveriesQuery, string(deliveriesJSON), alertUID); err != nil {
		return fmt.Errorf("failed to update alert deliveries: %w", err)
	}
	return nil
}

// AcknowledgeAlert marks an alert acknowledged. Acknowledging twice returns
// ErrNotFound so operators see the first acknowledgement won.
func (db *DB) AcknowledgeAlert(ctx context.Context, alertUID string) error {
	res, err := db.writeDB.ExecContext(ctx, acknowledgeAlertQuery, alertUID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAlerts fetches recent alert history, newest first.
func (db *DB) ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = models.DefaultAlertHistoryLimit
	}
	return db.listAlerts(ctx, selectAlertBase+" ORDER BY triggered_at DESC LIMIT ?", limit)
}

// ListAlertsForRule fetches history for a single rule, newest first.
func (db *DB) ListAlertsForRule(ctx context.Context, ruleID models.RuleID, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = models.DefaultAlertHistoryLimit
	}
	return db.listAlerts(ctx, selectAlertBase+" WHERE rule_id = ? ORDER BY triggered_at DESC LIMIT ?", int64(ruleID), limit)
}

func (db *DB) listAlerts(ctx context.Context, query string, args ...any) ([]*models.Alert, error) {
	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return alerts, nil
}

// PruneAlertHistory keeps only the most recent limit entries for a rule.
func (db *DB) PruneAlertHistory(ctx context.Context, ruleID models.RuleID, limit int) error {
	if limit <= 0 {
		limit = models.DefaultAlertHistoryLimit
	}
	if _, err := db.writeDB.ExecContext(ctx, pruneAlertHistoryQuery, int64(ruleID), int64(ruleID), limit); err != nil {
		return fmt.Errorf("failed to prune alert history: %w", err)
	}
	return nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		alert          models.Alert
		severity       string
		description    sql.NullString
		businessCtx    sql.NullString
		actionsJSON    string
		escalation     sql.NullString
		acknowledged   int64
		acknowledgedAt sql.NullTime
		deliveriesJSON string
	)
	err := row.Scan(
		&alert.AlertID,
		&alert.RuleID,
		&alert.RuleName,
		&alert.MetricName,
		&alert.MetricValue,
		&alert.Threshold,
		&severity,
		&alert.TriggeredAt,
		&description,
		&businessCtx,
		&actionsJSON,
		&escalation,
		&acknowledged,
		&acknowledgedAt,
		&deliveriesJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}
	alert.Severity = models.RuleSeverity(severity)
	alert.Description = description.String
	alert.BusinessContext = businessCtx.String
	alert.EscalationPolicy = escalation.String
	alert.Acknowledged = acknowledged == 1
	if acknowledgedAt.Valid {
		t := acknowledgedAt.Time
		alert.AcknowledgedAt = &t
	}
	if err := json.Unmarshal([]byte(actionsJSON), &alert.RecommendedActions); err != nil {
		return nil, fmt.Errorf("failed to decode recommended actions: %w", err)
	}
	if err := json.Unmarshal([]byte(deliveriesJSON), &alert.Deliveries); err != nil {
		return nil, fmt.Errorf("failed to decode deliveries: %w", err)
	}
	return &alert, nil
}
