// Package insights derives higher-level observations from recent metric
// trends. Detection is heuristic and local; an optional AI pass enriches the
// root-cause text but never gates emission.
package insights

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/pkg/models"
)

const (
	// minSamples is the floor below which no analysis runs.
	minSamples = 10
	// recentWindow and baselineWindow split the trailing samples into the
	// slice under test and the comparison baseline.
	recentWindow   = 5
	baselineWindow = 15
	// regressionRatio is the fractional worsening that counts as a regression.
	regressionRatio = 0.5

	regressionConfidence = 0.8
)

// HistoryProvider supplies the trailing samples for a metric, oldest first.
type HistoryProvider interface {
	History(name string, n int) []models.Metric
}

// InsightStore persists generated insights.
type InsightStore interface {
	InsertInsight(ctx context.Context, insight *models.PerformanceInsight) error
	PruneInsights(ctx context.Context, limit int) error
}

// Enricher augments an insight with root-cause analysis. Implementations must
// tolerate being skipped; a nil Enricher is valid.
type Enricher interface {
	Enrich(ctx context.Context, insight *models.PerformanceInsight, recent []models.Metric) (string, error)
}

// Generator turns metric history into PerformanceInsights.
type Generator struct {
	cfg      config.InsightsConfig
	history  HistoryProvider
	db       InsightStore
	enricher Enricher
	log      *slog.Logger
}

// GeneratorOptions configures a Generator.
type GeneratorOptions struct {
	Config   config.InsightsConfig
	History  HistoryProvider
	DB       InsightStore
	Enricher Enricher
	Logger   *slog.Logger
}

// NewGenerator constructs a Generator.
func NewGenerator(opts GeneratorOptions) *Generator {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Generator{
		cfg:      opts.Config,
		history:  opts.History,
		db:       opts.DB,
		enricher: opts.Enricher,
		log:      log.With("component", "insight_generator"),
	}
}

// Analyze inspects the trailing window of the metric's series and emits any
// insights it finds. Persisted insights are also returned to the caller.
func (g *Generator) Analyze(ctx context.Context, metric models.Metric) ([]*models.PerformanceInsight, error) {
	if !g.cfg.Enabled {
		return nil, nil
	}
	samples := g.history.History(metric.Name, recentWindow+baselineWindow)
	if len(samples) < minSamples {
		return nil, nil
	}

	insight := g.detectRegression(metric, samples)
	if insight == nil {
		return nil, nil
	}

	if g.enricher != nil {
		analysis, err := g.enricher.Enrich(ctx, insight, samples)
		if err != nil {
			g.log.Warn("insight enrichment failed", "metric", metric.Name, "error", err)
		} else if analysis != "" {
			insight.RootCauseAnalysis = analysis
		}
	}

	if err := g.db.InsertInsight(ctx, insight); err != nil {
		return nil, fmt.Errorf("failed to persist insight: %w", err)
	}
	retention := g.cfg.Retention
	if retention <= 0 {
		retention = models.DefaultInsightRetention
	}
	if err := g.db.PruneInsights(ctx, retention); err != nil {
		g.log.Warn("failed to prune insights", "error", err)
	}

	metrics.InsightsGeneratedTotal.Inc()
	g.log.Info("insight generated",
		"type", insight.Type,
		"metric", metric.Name,
		"title", insight.Title)
	return []*models.PerformanceInsight{insight}, nil
}

// detectRegression compares the mean of the newest samples against the mean
// of the preceding baseline. Only metrics tagged lower-is-better can regress
// upward; untagged metrics are left alone.
func (g *Generator) detectRegression(metric models.Metric, samples []models.Metric) *models.PerformanceInsight {
	if metric.Trend() != models.TrendLowerIsBetter {
		return nil
	}
	if len(samples) <= recentWindow {
		return nil
	}
	recent := samples[len(samples)-recentWindow:]
	baseline := samples[:len(samples)-recentWindow]

	recentMean := mean(recent)
	baselineMean := mean(baseline)
	if baselineMean <= 0 {
		return nil
	}
	worsening := (recentMean - baselineMean) / baselineMean
	if worsening <= regressionRatio {
		return nil
	}

	return &models.PerformanceInsight{
		InsightID:       uuid.NewString(),
		Type:            models.InsightPerformanceRegression,
		Severity:        models.RuleSeverityHigh,
		Title:           fmt.Sprintf("Performance regression detected in %s", metric.Name),
		Description:     fmt.Sprintf("Recent average %.2f is %.0f%% above the preceding baseline of %.2f.", recentMean, worsening*100, baselineMean),
		DetectedAt:      time.Now().UTC(),
		AffectedMetrics: []string{metric.Name},
		RecommendedActions: []string{
			"Review recent deployments and configuration changes",
			"Check database query performance and connection pool saturation",
			"Inspect upstream dependency latency",
		},
		BusinessImpact:  "Degraded responsiveness slows tutor and student workflows and can surface as booking drop-off.",
		ConfidenceScore: regressionConfidence,
	}
}

func mean(samples []models.Metric) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.Value
	}
	return sum / float64(len(samples))
}
