package models

import "time"

// MetricUnit identifies the unit a metric value is expressed in.
type MetricUnit string

const (
	MetricUnitMilliseconds MetricUnit = "ms"
	MetricUnitCount        MetricUnit = "count"
	MetricUnitPercentage   MetricUnit = "percentage"
	MetricUnitBytes        MetricUnit = "bytes"
	MetricUnitRPS          MetricUnit = "requests_per_second"
)

// MetricSeverity is the producer-asserted severity of a sample. It is
// informational only; alert routing is driven by rule severity, not this.
type MetricSeverity string

const (
	MetricSeverityInfo     MetricSeverity = "info"
	MetricSeverityWarning  MetricSeverity = "warning"
	MetricSeverityCritical MetricSeverity = "critical"
)

// TrendDirection declares which direction of movement is bad for a metric.
// Detectors key on this tag instead of inspecting metric names.
type TrendDirection string

const (
	TrendLowerIsBetter  TrendDirection = "lower_is_better"
	TrendHigherIsBetter TrendDirection = "higher_is_better"
)

// TrendTag is the well-known tag key carrying a TrendDirection.
const TrendTag = "trend"

// MetricThresholds carries optional producer-supplied reference thresholds.
type MetricThresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Metric is a single immutable measurement. Once ingested it is owned by the
// metric store and must not be mutated.
type Metric struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       MetricUnit        `json:"unit"`
	Timestamp  time.Time         `json:"timestamp"`
	Tags       map[string]string `json:"tags,omitempty"`
	Severity   MetricSeverity    `json:"severity,omitempty"`
	Thresholds *MetricThresholds `json:"threshold,omitempty"`
}

// Trend returns the declared trend direction for the metric, defaulting to
// higher-is-better when the tag is absent.
func (m Metric) Trend() TrendDirection {
	if m.Tags == nil {
		return TrendHigherIsBetter
	}
	if TrendDirection(m.Tags[TrendTag]) == TrendLowerIsBetter {
		return TrendLowerIsBetter
	}
	return TrendHigherIsBetter
}

// IngestMetricRequest is the payload accepted by the ingestion endpoint.
// Timestamp is optional; the server fills in the receive time when absent.
type IngestMetricRequest struct {
	Name       string            `json:"name"`
	Value      float64           `json:"value"`
	Unit       MetricUnit        `json:"unit"`
	Timestamp  *time.Time        `json:"timestamp"`
	Tags       map[string]string `json:"tags"`
	Severity   MetricSeverity    `json:"severity"`
	Thresholds *MetricThresholds `json:"threshold"`
}

// DefaultMetricHistoryLimit bounds the per-name sample window kept in memory.
const DefaultMetricHistoryLimit = 1000
