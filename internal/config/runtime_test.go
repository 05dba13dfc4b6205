package config

import (
	"context"
	"testing"
	"time"
)

type stubSettings struct {
	strings   map[string]string
	bools     map[string]bool
	ints      map[string]int
	durations map[string]time.Duration
}

func (s *stubSettings) GetSettingWithDefault(_ context.Context, key, def string) string {
	if v, ok := s.strings[key]; ok {
		return v
	}
	return def
}

func (s *stubSettings) GetBoolSetting(_ context.Context, key string, def bool) bool {
	if v, ok := s.bools[key]; ok {
		return v
	}
	return def
}

func (s *stubSettings) GetIntSetting(_ context.Context, key string, def int) int {
	if v, ok := s.ints[key]; ok {
		return v
	}
	return def
}

func (s *stubSettings) GetDurationSetting(_ context.Context, key string, def time.Duration) time.Duration {
	if v, ok := s.durations[key]; ok {
		return v
	}
	return def
}

func TestLoadRuntimeConfigOverrides(t *testing.T) {
	static := Default()
	store := &stubSettings{
		strings:   map[string]string{"alerts.smtp_host": "db.example.com", "backup.daily_at": "04:30"},
		bools:     map[string]bool{"alerts.enabled": false},
		ints:      map[string]int{"backup.retention_days": 14},
		durations: map[string]time.Duration{"health.interval": 5 * time.Minute},
	}

	cfg := LoadRuntimeConfig(context.Background(), static, store)

	if cfg.Alerts.Enabled {
		t.Error("database override for alerts.enabled not applied")
	}
	if cfg.Alerts.SMTPHost != "db.example.com" {
		t.Errorf("smtp host = %q", cfg.Alerts.SMTPHost)
	}
	if cfg.Backup.RetentionDays != 14 || cfg.Backup.DailyAt != "04:30" {
		t.Errorf("backup = %d/%q", cfg.Backup.RetentionDays, cfg.Backup.DailyAt)
	}
	if cfg.Health.Interval != 5*time.Minute {
		t.Errorf("health interval = %v", cfg.Health.Interval)
	}
	// Keys absent from the store keep their static values.
	if cfg.Alerts.RetryDelay != static.Alerts.RetryDelay {
		t.Errorf("retry delay changed without an override: %v", cfg.Alerts.RetryDelay)
	}
	// The static config itself must not be mutated.
	if !static.Alerts.Enabled {
		t.Error("LoadRuntimeConfig mutated the static config")
	}
}

func TestLoadRuntimeConfigNilStore(t *testing.T) {
	static := Default()
	cfg := LoadRuntimeConfig(context.Background(), static, nil)
	if cfg.Alerts.Enabled != static.Alerts.Enabled {
		t.Error("nil store must return the static config unchanged")
	}
}
