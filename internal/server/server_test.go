package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/internal/sqlite"
	"github.com/studystack/sentinel/pkg/models"
)

func newTestServer(t *testing.T) (*Server, *sqlite.DB) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := sqlite.New(sqlite.Options{
		Logger: log,
		Config: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sentinel.db")},
	})
	if err != nil {
		t.Fatalf("sqlite.New returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := New(Options{
		Config: &config.Config{},
		Logger: log,
		SQLite: db,
		Store:  metrics.NewStore(metrics.Options{Logger: log}),
	})
	return s, db
}

// doRequest runs one request through the fiber app and decodes the response
// envelope, leaving Data raw for the caller.
func doRequest(t *testing.T, s *Server, method, path string, body any) (int, json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	var envelope struct {
		Status string           `json:"status"`
		Data   json.RawMessage  `json:"data"`
		Error  *models.APIError `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("%s %s returned undecodable body: %v", method, path, err)
	}
	if resp.StatusCode < 400 && envelope.Status != "success" {
		t.Fatalf("%s %s returned status %q with code %d", method, path, envelope.Status, resp.StatusCode)
	}
	return resp.StatusCode, envelope.Data
}

func TestRuleLifecycleOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	code, data := doRequest(t, s, http.MethodPost, "/api/v1/rules", models.CreateRuleRequest{
		Name:       "slow api",
		MetricName: "api_response_time",
		Condition:  models.ConditionGreaterThan,
		Threshold:  500,
		Severity:   models.RuleSeverityHigh,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelEmail, Destination: "ops@studystack.test", RetryCount: 1},
		},
		Enabled: true,
	})
	if code != http.StatusCreated {
		t.Fatalf("create rule returned %d, want %d", code, http.StatusCreated)
	}
	var created models.AlertRule
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("failed to decode created rule: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created rule has no id")
	}

	path := "/api/v1/rules/" + strconv.FormatInt(int64(created.ID), 10)
	if code, _ = doRequest(t, s, http.MethodGet, path, nil); code != http.StatusOK {
		t.Fatalf("get rule returned %d, want %d", code, http.StatusOK)
	}
	if code, _ = doRequest(t, s, http.MethodDelete, path, nil); code != http.StatusOK {
		t.Fatalf("delete rule returned %d, want %d", code, http.StatusOK)
	}
	if code, _ = doRequest(t, s, http.MethodGet, path, nil); code != http.StatusNotFound {
		t.Fatalf("get after delete returned %d, want %d", code, http.StatusNotFound)
	}
	if code, _ = doRequest(t, s, http.MethodDelete, path, nil); code != http.StatusNotFound {
		t.Fatalf("repeat delete returned %d, want %d", code, http.StatusNotFound)
	}
}

func TestCreateRuleValidationOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	code, _ := doRequest(t, s, http.MethodPost, "/api/v1/rules", models.CreateRuleRequest{
		Name:       "bad condition",
		MetricName: "api_response_time",
		Condition:  "sideways",
		Severity:   models.RuleSeverityLow,
	})
	if code != http.StatusBadRequest {
		t.Fatalf("invalid condition returned %d, want %d", code, http.StatusBadRequest)
	}
}

func TestAcknowledgeAlertOverHTTP(t *testing.T) {
	s, db := newTestServer(t)
	ctx := context.Background()

	rule := &models.AlertRule{
		Name:       "ack target",
		MetricName: "api_response_time",
		Condition:  models.ConditionGreaterThan,
		Threshold:  500,
		Severity:   models.RuleSeverityHigh,
		Channels:   []models.NotificationChannel{},
		Enabled:    true,
	}
	if err := db.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule returned error: %v", err)
	}
	err := db.InsertAlert(ctx, &models.Alert{
		AlertID:     "alert-http-1",
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		MetricName:  rule.MetricName,
		MetricValue: 750,
		Threshold:   500,
		Severity:    rule.Severity,
		TriggeredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertAlert returned error: %v", err)
	}

	path := "/api/v1/alerts/alert-http-1/acknowledge"
	if code, _ := doRequest(t, s, http.MethodPost, path, nil); code != http.StatusOK {
		t.Fatalf("first acknowledge returned %d, want %d", code, http.StatusOK)
	}
	// Acknowledging twice reports not found so the caller learns the first
	// acknowledgement already landed.
	if code, _ := doRequest(t, s, http.MethodPost, path, nil); code != http.StatusNotFound {
		t.Fatalf("second acknowledge returned %d, want %d", code, http.StatusNotFound)
	}
}

func TestIngestMetricOverHTTP(t *testing.T) {
	s, _ := newTestServer(t)

	code, _ := doRequest(t, s, http.MethodPost, "/api/v1/metrics", models.IngestMetricRequest{
		Value: 120,
		Unit:  models.MetricUnitMilliseconds,
	})
	if code != http.StatusBadRequest {
		t.Fatalf("nameless metric returned %d, want %d", code, http.StatusBadRequest)
	}

	code, _ = doRequest(t, s, http.MethodPost, "/api/v1/metrics", models.IngestMetricRequest{
		Name:  "api_response_time",
		Value: 120,
		Unit:  models.MetricUnitMilliseconds,
	})
	if code != http.StatusAccepted {
		t.Fatalf("metric ingest returned %d, want %d", code, http.StatusAccepted)
	}

	code, data := doRequest(t, s, http.MethodGet, "/api/v1/metrics?name=api_response_time&minutes=5", nil)
	if code != http.StatusOK {
		t.Fatalf("metric query returned %d, want %d", code, http.StatusOK)
	}
	var result struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("failed to decode query result: %v", err)
	}
	if result.Count != 1 {
		t.Fatalf("query count = %d, want 1", result.Count)
	}
}
