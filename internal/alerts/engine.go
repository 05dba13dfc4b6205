// Package alerts evaluates metric samples against configured rules and
// dispatches notifications for the rules that fire.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/pkg/models"
)

// anomalyWindow is the number of prior samples required before the anomaly
// condition can evaluate at all.
const anomalyWindow = 30

// anomalySigma is the deviation multiple past which a sample is anomalous.
const anomalySigma = 2.0

// RuleStore is the persistence surface the engine needs.
type RuleStore interface {
	ListEnabledRules(ctx context.Context) ([]*models.AlertRule, error)
	MarkRuleTriggered(ctx context.Context, id models.RuleID) error
	InsertAlert(ctx context.Context, alert *models.Alert) error
	PruneAlertHistory(ctx context.Context, ruleID models.RuleID, limit int) error
}

// HistoryProvider supplies recent samples for anomaly evaluation. History
// must return up to n samples oldest-first.
type HistoryProvider interface {
	History(name string, n int) []models.Metric
}

// Engine evaluates rules. It tracks per-rule breach state so that
// duration_minutes means "condition held continuously for the window", and a
// firing rule does not re-notify until the condition clears.
type Engine struct {
	cfg        config.AlertsConfig
	db         RuleStore
	history    HistoryProvider
	dispatcher *Dispatcher
	log        *slog.Logger

	mu     sync.Mutex
	states map[models.RuleID]*ruleState
}

type ruleState struct {
	breachedSince *time.Time
	firing        bool
}

// EngineOptions encapsulates the dependencies required to build an Engine.
type EngineOptions struct {
	Config     config.AlertsConfig
	DB         RuleStore
	History    HistoryProvider
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// NewEngine constructs a rule engine.
func NewEngine(opts EngineOptions) *Engine {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:        opts.Config,
		db:         opts.DB,
		history:    opts.History,
		dispatcher: opts.Dispatcher,
		log:        log.With("component", "alert_engine"),
		states:     make(map[models.RuleID]*ruleState),
	}
}

// Evaluate runs every enabled rule matching the sample's metric name and
// returns the alerts that fired. Firing persists the alert, bumps the rule's
// trigger counter, and hands the alert to the dispatcher.
func (e *Engine) Evaluate(ctx context.Context, metric models.Metric) ([]*models.Alert, error) {
	if !e.cfg.Enabled {
		return nil, nil
	}
	rules, err := e.db.ListEnabledRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	var fired []*models.Alert
	for _, rule := range rules {
		if rule.MetricName != metric.Name {
			continue
		}
		metrics.EvaluationsTotal.Inc()

		breached, ok := e.conditionHolds(rule, metric)
		if !ok {
			// Insufficient history is "not yet applicable", not a failure.
			e.log.Debug("skipping rule, insufficient history",
				"rule", rule.Name, "metric", metric.Name)
			continue
		}

		if alert := e.transition(rule, metric, breached); alert != nil {
			e.persistAndDispatch(ctx, rule, alert)
			fired = append(fired, alert)
		}
	}
	return fired, nil
}

// conditionHolds reports whether the rule condition is breached by the
// sample. The second return is false when the condition cannot be evaluated
// yet (anomaly detection without enough history).
func (e *Engine) conditionHolds(rule *models.AlertRule, metric models.Metric) (breached, ok bool) {
	switch rule.Condition {
	case models.ConditionGreaterThan:
		return metric.Value > rule.Threshold, true
	case models.ConditionLessThan:
		return metric.Value < rule.Threshold, true
	case models.ConditionEquals:
		return math.Abs(metric.Value-rule.Threshold) < 1e-9, true
	case models.ConditionNotEquals:
		return math.Abs(metric.Value-rule.Threshold) >= 1e-9, true
	case models.ConditionAnomaly:
		prior := e.priorSamples(metric)
		if len(prior) < anomalyWindow {
			return false, false
		}
		mean, stddev := meanStddev(prior[len(prior)-anomalyWindow:])
		return math.Abs(metric.Value-mean) > anomalySigma*stddev, true
	default:
		e.log.Warn("unsupported rule condition", "rule", rule.Name, "condition", rule.Condition)
		return false, true
	}
}

// priorSamples returns history for the metric excluding the sample under
// evaluation, which the store has already appended.
func (e *Engine) priorSamples(metric models.Metric) []models.Metric {
	samples := e.history.History(metric.Name, anomalyWindow+1)
	if n := len(samples); n > 0 {
		last := samples[n-1]
		if last.Timestamp.Equal(metric.Timestamp) && last.Value == metric.Value {
			samples = samples[:n-1]
		}
	}
	return samples
}

// transition advances the rule's breach state machine and returns a new Alert
// when the rule fires.
func (e *Engine) transition(rule *models.AlertRule, metric models.Metric, breached bool) *models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	state := e.states[rule.ID]
	if state == nil {
		state = &ruleState{}
		e.states[rule.ID] = state
	}

	if !breached {
		state.breachedSince = nil
		state.firing = false
		return nil
	}
	if state.firing {
		// Already notified; suppress until the condition clears.
		return nil
	}
	now := metric.Timestamp
	if state.breachedSince == nil {
		since := now
		state.breachedSince = &since
	}
	window := time.Duration(rule.DurationMinutes) * time.Minute
	if now.Sub(*state.breachedSince) < window {
		return nil
	}
	state.firing = true
	return e.buildAlert(rule, metric)
}

func (e *Engine) buildAlert(rule *models.AlertRule, metric models.Metric) *models.Alert {
	enrichment := lookupEnrichment(metric.Name, rule.Severity)
	return &models.Alert{
		AlertID:            uuid.NewString(),
		RuleID:             rule.ID,
		RuleName:           rule.Name,
		MetricName:         metric.Name,
		MetricValue:        metric.Value,
		Threshold:          rule.Threshold,
		Severity:           rule.Severity,
		TriggeredAt:        metric.Timestamp,
		Description:        rule.Description,
		BusinessContext:    enrichment.BusinessContext,
		RecommendedActions: enrichment.RecommendedActions,
		EscalationPolicy:   enrichment.EscalationPolicy,
	}
}

func (e *Engine) persistAndDispatch(ctx context.Context, rule *models.AlertRule, alert *models.Alert) {
	metrics.AlertsFiredTotal.Inc()

	if err := e.db.MarkRuleTriggered(ctx, rule.ID); err != nil {
		e.log.Error("failed to mark rule triggered", "rule_id", rule.ID, "error", err)
	}
	if err := e.db.InsertAlert(ctx, alert); err != nil {
		e.log.Error("failed to insert alert", "alert_id", alert.AlertID, "error", err)
	} else if err := e.db.PruneAlertHistory(ctx, rule.ID, e.cfg.HistoryLimit); err != nil {
		e.log.Warn("failed to prune alert history", "rule_id", rule.ID, "error", err)
	}

	e.log.Info("alert fired",
		"rule", rule.Name,
		"metric", alert.MetricName,
		"value", alert.MetricValue,
		"threshold", alert.Threshold,
		"severity", alert.Severity)

	if e.dispatcher != nil && len(rule.Channels) > 0 {
		e.dispatcher.Dispatch(*alert, rule.Channels)
	}
}

func meanStddev(samples []models.Metric) (mean, stddev float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	for _, s := range samples {
		mean += s.Value
	}
	mean /= float64(len(samples))
	var variance float64
	for _, s := range samples {
		d := s.Value - mean
		variance += d * d
	}
	variance /= float64(len(samples))
	return mean, math.Sqrt(variance)
}
