package config

import (
	"context"
	"time"
)

// SettingsStore is the interface for reading runtime settings persisted in
// the database.
type SettingsStore interface {
	GetSettingWithDefault(ctx context.Context, key, defaultValue string) string
	GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool
	GetIntSetting(ctx context.Context, key string, defaultValue int) int
	GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration
}

// LoadRuntimeConfig merges database-backed settings over the static
// configuration. Database values win for operator-tunable settings; paths and
// listener addresses stay static.
func LoadRuntimeConfig(ctx context.Context, staticConfig *Config, store SettingsStore) *Config {
	cfg := *staticConfig
	if store == nil {
		return &cfg
	}

	cfg.Alerts.Enabled = store.GetBoolSetting(ctx, "alerts.enabled", cfg.Alerts.Enabled)
	cfg.Alerts.HistoryLimit = store.GetIntSetting(ctx, "alerts.history_limit", cfg.Alerts.HistoryLimit)
	cfg.Alerts.RetryDelay = store.GetDurationSetting(ctx, "alerts.retry_delay", cfg.Alerts.RetryDelay)
	cfg.Alerts.NotificationTimeout = store.GetDurationSetting(ctx, "alerts.notification_timeout", cfg.Alerts.NotificationTimeout)
	cfg.Alerts.SMTPHost = store.GetSettingWithDefault(ctx, "alerts.smtp_host", cfg.Alerts.SMTPHost)
	cfg.Alerts.SMTPPort = store.GetIntSetting(ctx, "alerts.smtp_port", cfg.Alerts.SMTPPort)
	cfg.Alerts.SMTPUsername = store.GetSettingWithDefault(ctx, "alerts.smtp_username", cfg.Alerts.SMTPUsername)
	cfg.Alerts.SMTPPassword = store.GetSettingWithDefault(ctx, "alerts.smtp_password", cfg.Alerts.SMTPPassword)
	cfg.Alerts.SMTPFrom = store.GetSettingWithDefault(ctx, "alerts.smtp_from", cfg.Alerts.SMTPFrom)
	cfg.Alerts.SMTPReplyTo = store.GetSettingWithDefault(ctx, "alerts.smtp_reply_to", cfg.Alerts.SMTPReplyTo)
	cfg.Alerts.SMTPSecurity = store.GetSettingWithDefault(ctx, "alerts.smtp_security", cfg.Alerts.SMTPSecurity)

	cfg.Insights.Enabled = store.GetBoolSetting(ctx, "insights.enabled", cfg.Insights.Enabled)
	cfg.Insights.Retention = store.GetIntSetting(ctx, "insights.retention", cfg.Insights.Retention)
	cfg.Insights.AIEnabled = store.GetBoolSetting(ctx, "insights.ai_enabled", cfg.Insights.AIEnabled)
	cfg.Insights.AIAPIKey = store.GetSettingWithDefault(ctx, "insights.ai_api_key", cfg.Insights.AIAPIKey)
	cfg.Insights.AIBaseURL = store.GetSettingWithDefault(ctx, "insights.ai_base_url", cfg.Insights.AIBaseURL)
	cfg.Insights.AIModel = store.GetSettingWithDefault(ctx, "insights.ai_model", cfg.Insights.AIModel)

	cfg.Health.Interval = store.GetDurationSetting(ctx, "health.interval", cfg.Health.Interval)
	cfg.Health.APIURL = store.GetSettingWithDefault(ctx, "health.api_url", cfg.Health.APIURL)
	cfg.Health.UIURL = store.GetSettingWithDefault(ctx, "health.ui_url", cfg.Health.UIURL)
	cfg.Health.BackupStaleness = store.GetDurationSetting(ctx, "health.backup_staleness", cfg.Health.BackupStaleness)

	cfg.Backup.RetentionDays = store.GetIntSetting(ctx, "backup.retention_days", cfg.Backup.RetentionDays)
	cfg.Backup.DailyAt = store.GetSettingWithDefault(ctx, "backup.daily_at", cfg.Backup.DailyAt)
	cfg.Backup.CleanupDay = store.GetSettingWithDefault(ctx, "backup.cleanup_day", cfg.Backup.CleanupDay)
	cfg.Backup.CleanupAt = store.GetSettingWithDefault(ctx, "backup.cleanup_at", cfg.Backup.CleanupAt)

	return &cfg
}
