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
	insertRuleQuery = `INSERT INTO alert_rules (
    name,
    description,
    metric_name,
    condition,
    threshold,
    duration_minutes,
    severity,
    channels,
    enabled
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, trigger_count, last_triggered_at, created_at, updated_at`

	selectRuleBase = `SELECT
    id,
    name,
    description,
    metric_name,
    condition,
    threshold,
    duration_minutes,
    severity,
    channels,
    enabled,
    trigger_count,
    last_triggered_at,
    created_at,
    updated_at
FROM alert_rules`

	updateRuleQuery = `UPDATE alert_rules
SET name = ?,
    description = ?,
    metric_name = ?,
    condition = ?,
    threshold = ?,
    duration_minutes = ?,
    severity = ?,
    channels = ?,
    enabled = ?,
    updated_at = datetime('now')
WHERE id = ?`

	setRuleEnabledQuery = `UPDATE alert_rules
SET enabled = ?,
    updated_at = datetime('now')
WHERE id = ?`

	markRuleTriggeredQuery = `UPDATE alert_rules
SET trigger_count = trigger_count + 1,
    last_triggered_at = datetime('now'),
    updated_at = datetime('now')
WHERE id = ?`

	deleteRuleHistoryQuery = `DELETE FROM alert_history WHERE rule_id = ?`
	deleteRuleQuery        = `DELETE FROM alert_rules WHERE id = ?`
)

// CreateRule inserts a new alert rule and fills in generated fields.
func (db *DB) CreateRule(ctx context.Context, rule *models.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("rule payload is required")
	}
	channelsJSON, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal rule channels: %w", err)
	}

	row := db.writeDB.QueryRowContext(ctx, insertRuleQuery,
		rule.Name,
		nullableString(rule.Description),
		rule.MetricName,
		string(rule.Condition),
		rule.Threshold,
		rule.DurationMinutes,
		string(rule.Severity),
		string(channelsJSON),
		boolToInt(rule.Enabled),
	)

	var lastTriggered sql.NullTime
	if err := row.Scan(&rule.ID, &rule.TriggerCount, &lastTriggered, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	if lastTriggered.Valid {
		rule.LastTriggered = &lastTriggered.Time
	}
	return nil
}

// GetRule retrieves a rule by its identifier.
func (db *DB) GetRule(ctx context.Context, id models.RuleID) (*models.AlertRule, error) {
	row := db.readDB.QueryRowContext(ctx, selectRuleBase+" WHERE id = ?", int64(id))
	return scanRule(row)
}

// ListRules fetches all rules ordered by creation time.
func (db *DB) ListRules(ctx context.Context) ([]*models.AlertRule, error) {
	return db.listRules(ctx, selectRuleBase+" ORDER BY created_at DESC")
}

// ListEnabledRules fetches the rules that participate in evaluation.
func (db *DB) ListEnabledRules(ctx context.Context) ([]*models.AlertRule, error) {
	return db.listRules(ctx, selectRuleBase+" WHERE enabled = 1 ORDER BY id")
}

func (db *DB) listRules(ctx context.Context, query string, args ...any) ([]*models.AlertRule, error) {
	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return rules, nil
}

// UpdateRule persists changes to an existing rule definition.
func (db *DB) UpdateRule(ctx context.Context, rule *models.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("rule payload is required")
	}
	channelsJSON, err := json.Marshal(rule.Channels)
	if err != nil {
		return fmt.Errorf("failed to marshal rule channels: %w", err)
	}

	res, err := db.writeDB.ExecContext(ctx, updateRuleQuery,
		rule.Name,
		nullableString(rule.Description),
		rule.MetricName,
		string(rule.Condition),
		rule.Threshold,
		rule.DurationMinutes,
		string(rule.Severity),
		string(channelsJSON),
		boolToInt(rule.Enabled),
		int64(rule.ID),
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetRuleEnabled flips a rule's enabled flag.
func (db *DB) SetRuleEnabled(ctx context.Context, id models.RuleID, enabled bool) error {
	res, err := db.writeDB.ExecContext(ctx, setRuleEnabledQuery, boolToInt(enabled), int64(id))
	if err != nil {
		return fmt.Errorf("failed to set rule enabled: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule along with its alert history. History rows
// reference the rule, so both deletes run in one transaction.
func (db *DB) DeleteRule(ctx context.Context, id models.RuleID) error {
	tx, err := db.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteRuleHistoryQuery, int64(id)); err != nil {
		return fmt.Errorf("failed to delete rule history: %w", err)
	}
	res, err := tx.ExecContext(ctx, deleteRuleQuery, int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit rule delete: %w", err)
	}
	return nil
}

// MarkRuleTriggered bumps the trigger counter and stamps the trigger time.
func (db *DB) MarkRuleTriggered(ctx context.Context, id models.RuleID) error {
	if _, err := db.writeDB.ExecContext(ctx, markRuleTriggeredQuery, int64(id)); err != nil {
		return fmt.Errorf("failed to mark rule triggered: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var (
		rule          models.AlertRule
		description   sql.NullString
		condition     string
		severity      string
		channelsJSON  string
		enabled       int64
		lastTriggered sql.NullTime
	)
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&description,
		&rule.MetricName,
		&condition,
		&rule.Threshold,
		&rule.DurationMinutes,
		&severity,
		&channelsJSON,
		&enabled,
		&rule.TriggerCount,
		&lastTriggered,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan rule: %w", err)
	}
	rule.Description = description.String
	rule.Condition = models.RuleCondition(condition)
	rule.Severity = models.RuleSeverity(severity)
	rule.Enabled = enabled == 1
	if lastTriggered.Valid {
		t := lastTriggered.Time
		rule.LastTriggered = &t
	}
	if err := json.Unmarshal([]byte(channelsJSON), &rule.Channels); err != nil {
		return nil, fmt.Errorf("failed to decode rule channels: %w", err)
	}
	return &rule, nil
}
