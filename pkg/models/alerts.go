package models

import "time"

// RuleCondition is the comparison strategy a rule applies to incoming samples.
type RuleCondition string

const (
	ConditionGreaterThan RuleCondition = "greater_than"
	ConditionLessThan    RuleCondition = "less_than"
	ConditionEquals      RuleCondition = "equals"
	ConditionNotEquals   RuleCondition = "not_equals"
	ConditionAnomaly     RuleCondition = "anomaly_detection"
)

// RuleSeverity drives notification priority and escalation, independently of
// the producer severity stamped on metric samples.
type RuleSeverity string

const (
	RuleSeverityLow      RuleSeverity = "low"
	RuleSeverityMedium   RuleSeverity = "medium"
	RuleSeverityHigh     RuleSeverity = "high"
	RuleSeverityCritical RuleSeverity = "critical"
)

// ChannelType enumerates supported outbound notification channels.
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelChat    ChannelType = "chat_webhook"
	ChannelWebhook ChannelType = "webhook"
	ChannelSMS     ChannelType = "sms"
	ChannelPager   ChannelType = "pager"
)

// NotificationChannel is a single delivery target embedded in a rule. It is
// not independently addressable.
type NotificationChannel struct {
	Type        ChannelType `json:"type"`
	Destination string      `json:"destination"`
	Priority    int         `json:"priority"`
	RetryCount  int         `json:"retry_count"`
}

// RuleID identifies an alert rule.
type RuleID int64

// AlertRule is a continuously evaluated condition over one metric name.
// TriggerCount and LastTriggered are updated in place each time it fires.
// Deleting a rule removes its alert history with it.
type AlertRule struct {
	ID              RuleID                `json:"id"`
	Name            string                `json:"name"`
	Description     string                `json:"description,omitempty"`
	MetricName      string                `json:"metric_name"`
	Condition       RuleCondition         `json:"condition"`
	Threshold       float64               `json:"threshold"`
	DurationMinutes int                   `json:"duration_minutes"`
	Severity        RuleSeverity          `json:"severity"`
	Channels        []NotificationChannel `json:"notification_channels"`
	Enabled         bool                  `json:"enabled"`
	TriggerCount    int64                 `json:"trigger_count"`
	LastTriggered   *time.Time            `json:"last_triggered,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// Alert is a fired rule instance. Immutable after creation except for the
// acknowledgement applied by an operator.
type Alert struct {
	AlertID            string       `json:"alert_id"`
	RuleID             RuleID       `json:"rule_id"`
	RuleName           string       `json:"rule_name"`
	MetricName         string       `json:"metric_name"`
	MetricValue        float64      `json:"metric_value"`
	Threshold          float64      `json:"threshold"`
	Severity           RuleSeverity `json:"severity"`
	TriggeredAt        time.Time    `json:"triggered_at"`
	Description        string       `json:"description,omitempty"`
	BusinessContext    string       `json:"business_context,omitempty"`
	RecommendedActions []string     `json:"recommended_actions,omitempty"`
	EscalationPolicy   string       `json:"escalation_policy,omitempty"`
	Acknowledged       bool         `json:"acknowledged"`
	AcknowledgedAt     *time.Time   `json:"acknowledged_at,omitempty"`
	// Deliveries records the per-channel dispatch outcome.
	Deliveries []DeliveryResult `json:"deliveries,omitempty"`
}

// DeliveryResult captures the outcome of dispatching one alert to one channel.
type DeliveryResult struct {
	Channel   ChannelType `json:"channel"`
	Target    string      `json:"target"`
	Delivered bool        `json:"delivered"`
	Retried   bool        `json:"retried"`
	Error     string      `json:"error,omitempty"`
}

// CreateRuleRequest defines the payload required to create a new alert rule.
type CreateRuleRequest struct {
	Name            string                `json:"name"`
	Description     string                `json:"description"`
	MetricName      string                `json:"metric_name"`
	Condition       RuleCondition         `json:"condition"`
	Threshold       float64               `json:"threshold"`
	DurationMinutes int                   `json:"duration_minutes"`
	Severity        RuleSeverity          `json:"severity"`
	Channels        []NotificationChannel `json:"notification_channels"`
	Enabled         bool                  `json:"enabled"`
}

// UpdateRuleRequest defines updatable fields for an alert rule.
type UpdateRuleRequest struct {
	Name            *string                `json:"name"`
	Description     *string                `json:"description"`
	MetricName      *string                `json:"metric_name"`
	Condition       *RuleCondition         `json:"condition"`
	Threshold       *float64               `json:"threshold"`
	DurationMinutes *int                   `json:"duration_minutes"`
	Severity        *RuleSeverity          `json:"severity"`
	Channels        *[]NotificationChannel `json:"notification_channels"`
	Enabled         *bool                  `json:"enabled"`
}

// DefaultAlertHistoryLimit bounds retained history rows per rule.
const DefaultAlertHistoryLimit = 500
