package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/studystack/sentinel/pkg/models"
)

const (
	insertInsightQuery = `INSERT INTO insights (
    insight_uid,
    type,
    severity,
    title,
    description,
    detected_at,
    affected_metrics,
    root_cause_analysis,
    recommended_actions,
    business_impact,
    confidence_score
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectInsightBase = `SELECT
    insight_uid,
    type,
    severity,
    title,
    description,
    detected_at,
    affected_metrics,
    root_cause_analysis,
    recommended_actions,
    business_impact,
    confidence_score
FROM insights`

	pruneInsightsQuery = `DELETE FROM insights
WHERE id NOT IN (
    SELECT id FROM insights ORDER BY detected_at DESC LIMIT ?
)`
)

// InsertInsight persists a generated insight.
func (db *DB) InsertInsight(ctx context.Context, insight *models.PerformanceInsight) error {
	if insight == nil {
		return fmt.Errorf("insight payload is required")
	}
	metricsJSON, err := json.Marshal(insight.AffectedMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal affected metrics: %w", err)
	}
	actionsJSON, err := json.Marshal(insight.RecommendedActions)
	if err != nil {
		return fmt.Errorf("failed to marshal recommended actions: %w", err)
	}

	_, err = db.writeDB.ExecContext(ctx, insertInsightQuery,
		insight.InsightID,
		string(insight.Type),
		string(insight.Severity),
		insight.Title,
		nullableString(insight.Description),
		insight.DetectedAt,
		string(metricsJSON),
		nullableString(insight.RootCauseAnalysis),
		string(actionsJSON),
		nullableString(insight.BusinessImpact),
		insight.ConfidenceScore,
	)
	if err != nil {
		return fmt.Errorf("failed to insert insight: %w", err)
	}
	return nil
}

// ListInsights fetches recent insights, newest first.
func (db *DB) ListInsights(ctx context.Context, limit int) ([]*models.PerformanceInsight, error) {
	if limit <= 0 {
		limit = models.DefaultInsightRetention
	}
	rows, err := db.readDB.QueryContext(ctx, selectInsightBase+" ORDER BY detected_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	var insights []*models.PerformanceInsight
	for rows.Next() {
		var (
			insight     models.PerformanceInsight
			typ         string
			severity    string
			metricsJSON string
			actionsJSON string
		)
		var description, rootCause, impact *string
		if err := rows.Scan(
			&insight.InsightID,
			&typ,
			&severity,
			&insight.Title,
			&description,
			&insight.DetectedAt,
			&metricsJSON,
			&rootCause,
			&actionsJSON,
			&impact,
			&insight.ConfidenceScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insight.Type = models.InsightType(typ)
		insight.Severity = models.RuleSeverity(severity)
		if description != nil {
			insight.Description = *description
		}
		if rootCause != nil {
			insight.RootCauseAnalysis = *rootCause
		}
		if impact != nil {
			insight.BusinessImpact = *impact
		}
		if err := json.Unmarshal([]byte(metricsJSON), &insight.AffectedMetrics); err != nil {
			return nil, fmt.Errorf("failed to decode affected metrics: %w", err)
		}
		if err := json.Unmarshal([]byte(actionsJSON), &insight.RecommendedActions); err != nil {
			return nil, fmt.Errorf("failed to decode recommended actions: %w", err)
		}
		insights = append(insights, &insight)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating insights: %w", err)
	}
	return insights, nil
}

// PruneInsights keeps only the most recent limit insights.
func (db *DB) PruneInsights(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = models.DefaultInsightRetention
	}
	if _, err := db.writeDB.ExecContext(ctx, pruneInsightsQuery, limit); err != nil {
		return fmt.Errorf("failed to prune insights: %w", err)
	}
	return nil
}
