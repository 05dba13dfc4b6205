package alerts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studystack/sentinel/pkg/models"
)

func TestWebhookSenderPayload(t *testing.T) {
	var (
		gotBody    []byte
		gotHeaders http.Header
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewWebhookSender(WebhookSenderOptions{ServiceName: "sentinel"})
	alert := models.Alert{
		AlertID:     "abc-123",
		RuleName:    "API latency high",
		MetricName:  "api_response_time",
		MetricValue: 2500,
		Threshold:   2000,
		Severity:    models.RuleSeverityCritical,
		TriggeredAt: time.Now().UTC(),
	}
	channel := models.NotificationChannel{Type: models.ChannelWebhook, Destination: server.URL}

	if err := sender.Send(context.Background(), alert, channel); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if gotHeaders.Get("X-Alert-Severity") != "critical" {
		t.Errorf("X-Alert-Severity = %q", gotHeaders.Get("X-Alert-Severity"))
	}
	if gotHeaders.Get("X-Alert-ID") != "abc-123" {
		t.Errorf("X-Alert-ID = %q", gotHeaders.Get("X-Alert-ID"))
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}

	var payload struct {
		EventType      string       `json:"event_type"`
		Alert          models.Alert `json:"alert"`
		Service        string       `json:"service"`
		WebhookVersion string       `json:"webhook_version"`
	}
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.EventType != "alert_triggered" {
		t.Errorf("event_type = %q", payload.EventType)
	}
	if payload.Service != "sentinel" || payload.WebhookVersion != "1.0" {
		t.Errorf("service/version = %q/%q", payload.Service, payload.WebhookVersion)
	}
	if payload.Alert.AlertID != "abc-123" || payload.Alert.MetricValue != 2500 {
		t.Errorf("alert payload wrong: %+v", payload.Alert)
	}
}

func TestWebhookSenderErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	sender := NewWebhookSender(WebhookSenderOptions{})
	err := sender.Send(context.Background(), models.Alert{AlertID: "x"},
		models.NotificationChannel{Destination: server.URL})
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestChatSenderMessage(t *testing.T) {
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	sender := NewChatSender(ChatSenderOptions{DashboardURL: "https://ops.example.com"})
	alert := models.Alert{
		AlertID:         "abc-123",
		RuleName:        "Error rate elevated",
		MetricName:      "error_rate",
		MetricValue:     7.5,
		Threshold:       5,
		Severity:        models.RuleSeverityHigh,
		TriggeredAt:     time.Now().UTC(),
		BusinessContext: "Checkout flow may be failing for students.",
	}

	if err := sender.Send(context.Background(), alert, models.NotificationChannel{Destination: server.URL}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	var message chatMessage
	if err := json.Unmarshal(gotBody, &message); err != nil {
		t.Fatalf("failed to decode message: %v", err)
	}
	if len(message.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(message.Attachments))
	}
	attachment := message.Attachments[0]
	if attachment.Color != severityColors[models.RuleSeverityHigh] {
		t.Errorf("color = %q", attachment.Color)
	}
	if len(attachment.Actions) != 1 || attachment.Actions[0].URL != "https://ops.example.com" {
		t.Errorf("dashboard action missing: %+v", attachment.Actions)
	}
	foundContext := false
	for _, f := range attachment.Fields {
		if f.Title == "Business Impact" {
			foundContext = true
		}
	}
	if !foundContext {
		t.Error("business impact field missing")
	}
}

func TestProviderSenderFormatsMessage(t *testing.T) {
	var gotDest, gotMessage string
	provider := providerFunc(func(_ context.Context, destination, message string) error {
		gotDest, gotMessage = destination, message
		return nil
	})
	sender := NewProviderSender(models.ChannelSMS, provider)

	alert := models.Alert{
		RuleName:    "Memory usage high",
		MetricName:  "memory_usage_percent",
		MetricValue: 95,
		Threshold:   90,
		Severity:    models.RuleSeverityCritical,
	}
	err := sender.Send(context.Background(), alert, models.NotificationChannel{Destination: "+15550100"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if gotDest != "+15550100" {
		t.Errorf("destination = %q", gotDest)
	}
	want := "[CRITICAL] Memory usage high: memory_usage_percent=95.00 (threshold 90.00)"
	if gotMessage != want {
		t.Errorf("message = %q, want %q", gotMessage, want)
	}
}

func TestProviderSenderWithoutProvider(t *testing.T) {
	sender := NewProviderSender(models.ChannelPager, nil)
	if err := sender.Send(context.Background(), models.Alert{}, models.NotificationChannel{}); err == nil {
		t.Fatal("expected error when no provider is configured")
	}
}

type providerFunc func(ctx context.Context, destination, message string) error

func (f providerFunc) Deliver(ctx context.Context, destination, message string) error {
	return f(ctx, destination, message)
}
