package core

import (
	"strings"
	"testing"

	"github.com/studystack/sentinel/pkg/models"
)

func validRequest() models.CreateRuleRequest {
	return models.CreateRuleRequest{
		Name:       "API latency high",
		MetricName: "api_response_time",
		Condition:  models.ConditionGreaterThan,
		Threshold:  2000,
		Severity:   models.RuleSeverityHigh,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelEmail, Destination: "ops@example.com", RetryCount: 1},
		},
		Enabled: true,
	}
}

func TestValidateRuleRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.CreateRuleRequest)
		wantErr string
	}{
		{"valid", func(_ *models.CreateRuleRequest) {}, ""},
		{"missing name", func(r *models.CreateRuleRequest) { r.Name = "  " }, "name is required"},
		{"missing metric", func(r *models.CreateRuleRequest) { r.MetricName = "" }, "metric_name is required"},
		{"bad condition", func(r *models.CreateRuleRequest) { r.Condition = "between" }, "invalid condition"},
		{"bad severity", func(r *models.CreateRuleRequest) { r.Severity = "urgent" }, "invalid severity"},
		{"negative duration", func(r *models.CreateRuleRequest) { r.DurationMinutes = -1 }, "duration_minutes"},
		{"bad channel type", func(r *models.CreateRuleRequest) {
			r.Channels[0].Type = "carrier_pigeon"
		}, "invalid type"},
		{"empty destination", func(r *models.CreateRuleRequest) {
			r.Channels[0].Destination = ""
		}, "destination is required"},
		{"negative retry count", func(r *models.CreateRuleRequest) {
			r.Channels[0].RetryCount = -2
		}, "retry_count"},
		{"anomaly condition accepted", func(r *models.CreateRuleRequest) {
			r.Condition = models.ConditionAnomaly
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := validateRuleRequest(&req)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
