package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "sentinel.db")},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testRule(name string) *models.AlertRule {
	return &models.AlertRule{
		Name:            name,
		Description:     "test rule",
		MetricName:      "api_response_time",
		Condition:       models.ConditionGreaterThan,
		Threshold:       500,
		DurationMinutes: 0,
		Severity:        models.RuleSeverityHigh,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelEmail, Destination: "ops@studystack.test", Priority: 1, RetryCount: 1},
		},
		Enabled: true,
	}
}

func insertTestAlert(t *testing.T, db *DB, ruleID models.RuleID, uid string, triggeredAt time.Time) {
	t.Helper()
	err := db.InsertAlert(context.Background(), &models.Alert{
		AlertID:            uid,
		RuleID:             ruleID,
		RuleName:           "test rule",
		MetricName:         "api_response_time",
		MetricValue:        750,
		Threshold:          500,
		Severity:           models.RuleSeverityHigh,
		TriggeredAt:        triggeredAt,
		RecommendedActions: []string{"check the API"},
	})
	if err != nil {
		t.Fatalf("InsertAlert(%s) returned error: %v", uid, err)
	}
}

func TestCreateRuleRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := testRule("round trip")
	if err := db.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule returned error: %v", err)
	}
	if rule.ID == 0 {
		t.Fatal("CreateRule did not fill the generated id")
	}
	if rule.CreatedAt.IsZero() || rule.UpdatedAt.IsZero() {
		t.Fatal("CreateRule did not fill the generated timestamps")
	}
	if rule.TriggerCount != 0 || rule.LastTriggered != nil {
		t.Fatal("new rule must start untriggered")
	}

	got, err := db.GetRule(ctx, rule.ID)
	if err != nil {
		t.Fatalf("GetRule returned error: %v", err)
	}
	if got.Name != rule.Name || got.MetricName != rule.MetricName ||
		got.Condition != rule.Condition || got.Threshold != rule.Threshold ||
		got.Severity != rule.Severity || !got.Enabled {
		t.Errorf("GetRule returned %+v, want the inserted rule", got)
	}
	if len(got.Channels) != 1 || got.Channels[0].Destination != "ops@studystack.test" {
		t.Errorf("GetRule channels = %+v, want the inserted channel", got.Channels)
	}

	if _, err := db.GetRule(ctx, rule.ID+1000); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRule for an unknown id returned %v, want ErrNotFound", err)
	}
}

func TestAcknowledgeAlertOnce(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := testRule("ack once")
	if err := db.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule returned error: %v", err)
	}
	insertTestAlert(t, db, rule.ID, "alert-ack-1", time.Now().UTC())

	if err := db.AcknowledgeAlert(ctx, "alert-ack-1"); err != nil {
		t.Fatalf("first acknowledgement returned error: %v", err)
	}
	alerts, err := db.ListAlertsForRule(ctx, rule.ID, 10)
	if err != nil {
		t.Fatalf("ListAlertsForRule returned error: %v", err)
	}
	if len(alerts) != 1 || !alerts[0].Acknowledged || alerts[0].AcknowledgedAt == nil {
		t.Fatalf("alert not marked acknowledged: %+v", alerts)
	}

	if err := db.AcknowledgeAlert(ctx, "alert-ack-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second acknowledgement returned %v, want ErrNotFound", err)
	}
	if err := db.AcknowledgeAlert(ctx, "no-such-alert"); !errors.Is(err, ErrNotFound) {
		t.Errorf("acknowledging an unknown alert returned %v, want ErrNotFound", err)
	}
}

func TestPruneAlertHistoryKeepsNewest(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := testRule("prune target")
	other := testRule("prune bystander")
	for _, r := range []*models.AlertRule{rule, other} {
		if err := db.CreateRule(ctx, r); err != nil {
			t.Fatalf("CreateRule returned error: %v", err)
		}
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 8; i++ {
		insertTestAlert(t, db, rule.ID, fmt.Sprintf("alert-prune-%d", i), base.Add(time.Duration(i)*time.Minute))
	}
	insertTestAlert(t, db, other.ID, "alert-other-0", base)

	if err := db.PruneAlertHistory(ctx, rule.ID, 5); err != nil {
		t.Fatalf("PruneAlertHistory returned error: %v", err)
	}

	alerts, err := db.ListAlertsForRule(ctx, rule.ID, 100)
	if err != nil {
		t.Fatalf("ListAlertsForRule returned error: %v", err)
	}
	if len(alerts) != 5 {
		t.Fatalf("history holds %d alerts after prune, want 5", len(alerts))
	}
	// Newest first, so the survivors are alerts 7 down to 3.
	for i, alert := range alerts {
		want := fmt.Sprintf("alert-prune-%d", 7-i)
		if alert.AlertID != want {
			t.Errorf("alerts[%d].AlertID = %s, want %s", i, alert.AlertID, want)
		}
	}

	bystander, err := db.ListAlertsForRule(ctx, other.ID, 100)
	if err != nil {
		t.Fatalf("ListAlertsForRule returned error: %v", err)
	}
	if len(bystander) != 1 {
		t.Errorf("pruning one rule removed %d alerts from another rule", 1-len(bystander))
	}
}

func TestDeleteRuleRemovesHistory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	rule := testRule("delete me")
	if err := db.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule returned error: %v", err)
	}
	insertTestAlert(t, db, rule.ID, "alert-del-1", time.Now().UTC())
	insertTestAlert(t, db, rule.ID, "alert-del-2", time.Now().UTC())

	if err := db.DeleteRule(ctx, rule.ID); err != nil {
		t.Fatalf("DeleteRule returned error: %v", err)
	}
	if _, err := db.GetRule(ctx, rule.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRule after delete returned %v, want ErrNotFound", err)
	}
	alerts, err := db.ListAlertsForRule(ctx, rule.ID, 100)
	if err != nil {
		t.Fatalf("ListAlertsForRule returned error: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("%d history rows survived the rule delete", len(alerts))
	}

	if err := db.DeleteRule(ctx, rule.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleting a deleted rule returned %v, want ErrNotFound", err)
	}
}
