package models

import "time"

// InsightType classifies a derived observation.
type InsightType string

const (
	InsightPerformanceRegression InsightType = "performance_regression"
	InsightErrorSpike            InsightType = "error_spike"
	InsightTrafficAnomaly        InsightType = "traffic_anomaly"
	InsightResourceSaturation    InsightType = "resource_saturation"
	InsightUXDegradation         InsightType = "user_experience_degradation"
)

// PerformanceInsight is a higher-level observation derived from recent metric
// trends. Stored keyed by ID; never mutated after creation.
type PerformanceInsight struct {
	InsightID          string       `json:"insight_id"`
	Type               InsightType  `json:"type"`
	Severity           RuleSeverity `json:"severity"`
	Title              string       `json:"title"`
	Description        string       `json:"description"`
	DetectedAt         time.Time    `json:"detected_at"`
	AffectedMetrics    []string     `json:"affected_metrics"`
	RootCauseAnalysis  string       `json:"root_cause_analysis,omitempty"`
	RecommendedActions []string     `json:"recommended_actions,omitempty"`
	BusinessImpact     string       `json:"business_impact,omitempty"`
	// ConfidenceScore is in [0, 1].
	ConfidenceScore float64 `json:"confidence_score"`
}

// DefaultInsightRetention bounds the number of insights kept.
const DefaultInsightRetention = 200
