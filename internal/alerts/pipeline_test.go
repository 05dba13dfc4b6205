package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/pkg/models"
)

// TestIngestToNotification walks a sample from the metric store through rule
// evaluation to a webhook delivery.
func TestIngestToNotification(t *testing.T) {
	received := make(chan struct{}, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received <- struct{}{}
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	store := metrics.NewStore(metrics.Options{QueueSize: 8})
	db := &fakeRuleStore{rules: []*models.AlertRule{{
		ID:         1,
		Name:       "API latency high",
		MetricName: "api_response_time",
		Condition:  models.ConditionGreaterThan,
		Threshold:  2000,
		Severity:   models.RuleSeverityHigh,
		Enabled:    true,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelWebhook, Destination: hook.URL},
		},
	}}}

	dispatcher := NewDispatcher(DispatcherOptions{
		Senders: map[models.ChannelType]Sender{
			models.ChannelWebhook: NewWebhookSender(WebhookSenderOptions{}),
		},
	})
	dispatcher.Start()
	defer dispatcher.Stop()

	engine := NewEngine(EngineOptions{
		Config:     config.AlertsConfig{Enabled: true, HistoryLimit: 500},
		DB:         db,
		History:    store,
		Dispatcher: dispatcher,
	})

	if err := store.Ingest(models.Metric{Name: "api_response_time", Value: 2500, Unit: models.MetricUnitMilliseconds}); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	var queued models.Metric
	select {
	case queued = <-store.Events():
	case <-time.After(time.Second):
		t.Fatal("metric never reached the evaluation queue")
	}

	fired, err := engine.Evaluate(context.Background(), queued)
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(fired))
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never called")
	}
	if len(db.inserted) != 1 {
		t.Fatalf("expected alert persisted, got %d", len(db.inserted))
	}
}
