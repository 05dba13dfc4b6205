// Package config loads static configuration from TOML and environment
// variables, and merges database-backed runtime settings on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full static configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	SQLite   SQLiteConfig   `koanf:"sqlite"`
	Logging  LoggingConfig  `koanf:"logging"`
	Store    StoreConfig    `koanf:"store"`
	Alerts   AlertsConfig   `koanf:"alerts"`
	Insights InsightsConfig `koanf:"insights"`
	Health   HealthConfig   `koanf:"health"`
	Backup   BackupConfig   `koanf:"backup"`
	Archive  ArchiveConfig  `koanf:"archive"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// SQLiteConfig holds database settings.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `koanf:"level"`
}

// StoreConfig holds metric store settings.
type StoreConfig struct {
	// HistoryLimit bounds the per-metric-name sample window.
	HistoryLimit int `koanf:"history_limit"`
	// QueueSize bounds the ingest-to-evaluation channel.
	QueueSize int `koanf:"queue_size"`
}

// AlertsConfig holds alert evaluation and notification settings.
type AlertsConfig struct {
	Enabled             bool          `koanf:"enabled"`
	HistoryLimit        int           `koanf:"history_limit"`
	RetryDelay          time.Duration `koanf:"retry_delay"`
	NotificationTimeout time.Duration `koanf:"notification_timeout"`

	SMTPHost     string `koanf:"smtp_host"`
	SMTPPort     int    `koanf:"smtp_port"`
	SMTPUsername string `koanf:"smtp_username"`
	SMTPPassword string `koanf:"smtp_password"`
	SMTPFrom     string `koanf:"smtp_from"`
	SMTPReplyTo  string `koanf:"smtp_reply_to"`
	SMTPSecurity string `koanf:"smtp_security"`

	TLSInsecureSkipVerify bool `koanf:"tls_insecure_skip_verify"`
}

// InsightsConfig holds insight generation settings.
type InsightsConfig struct {
	Enabled   bool `koanf:"enabled"`
	Retention int  `koanf:"retention"`

	// AI enrichment is optional; insights are emitted either way.
	AIEnabled   bool    `koanf:"ai_enabled"`
	AIAPIKey    string  `koanf:"ai_api_key"`
	AIBaseURL   string  `koanf:"ai_base_url"`
	AIModel     string  `koanf:"ai_model"`
	AIMaxTokens int     `koanf:"ai_max_tokens"`
	AITemp      float32 `koanf:"ai_temperature"`
}

// HealthConfig holds health polling settings.
type HealthConfig struct {
	Interval time.Duration `koanf:"interval"`
	// APIURL is probed with GET /health; 2xx marks the API up.
	APIURL string `koanf:"api_url"`
	// UIURL is probed the same way when set; when empty the UI is reported
	// up with a note that no check was performed.
	UIURL string `koanf:"ui_url"`
	// BackupStaleness is the age past which the last backup is degraded.
	BackupStaleness time.Duration `koanf:"backup_staleness"`
	ProbeTimeout    time.Duration `koanf:"probe_timeout"`
}

// BackupConfig holds backup and retention settings.
type BackupConfig struct {
	Dir           string        `koanf:"dir"`
	RetentionDays int           `koanf:"retention_days"`
	SQLiteBinary  string        `koanf:"sqlite_binary"`
	DumpTimeout   time.Duration `koanf:"dump_timeout"`

	// DailyAt is the HH:MM wall-clock time for the daily full backup.
	DailyAt string `koanf:"daily_at"`
	// CleanupDay and CleanupAt schedule the weekly retention sweep.
	CleanupDay string `koanf:"cleanup_day"`
	CleanupAt  string `koanf:"cleanup_at"`
}

// ArchiveConfig holds the optional ClickHouse long-term metric archive.
type ArchiveConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Addr     string        `koanf:"addr"`
	Database string        `koanf:"database"`
	Username string        `koanf:"username"`
	Password string        `koanf:"password"`
	Table    string        `koanf:"table"`
	Interval time.Duration `koanf:"flush_interval"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		SQLite:  SQLiteConfig{Path: "sentinel.db"},
		Logging: LoggingConfig{Level: "info"},
		Store: StoreConfig{
			HistoryLimit: 1000,
			QueueSize:    1024,
		},
		Alerts: AlertsConfig{
			Enabled:             true,
			HistoryLimit:        500,
			RetryDelay:          60 * time.Second,
			NotificationTimeout: 5 * time.Second,
			SMTPPort:            587,
			SMTPSecurity:        "starttls",
		},
		Insights: InsightsConfig{
			Enabled:     true,
			Retention:   200,
			AIModel:     "gpt-4o-mini",
			AIMaxTokens: 512,
			AITemp:      0.2,
		},
		Health: HealthConfig{
			Interval:        time.Minute,
			BackupStaleness: 25 * time.Hour,
			ProbeTimeout:    5 * time.Second,
		},
		Backup: BackupConfig{
			Dir:           "backups",
			RetentionDays: 30,
			SQLiteBinary:  "sqlite3",
			DumpTimeout:   10 * time.Minute,
			DailyAt:       "02:00",
			CleanupDay:    "Sunday",
			CleanupAt:     "03:00",
		},
		Archive: ArchiveConfig{
			Database: "sentinel",
			Table:    "metrics",
			Interval: 10 * time.Second,
		},
	}
}

// Load reads configuration from the given TOML file (if it exists) and from
// SENTINEL_* environment variables, over the built-in defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file: %w", err)
			}
		}
	}

	// SENTINEL_ALERTS_SMTP_HOST -> alerts.smtp_host
	if err := k.Load(env.Provider("SENTINEL_", ".", func(s string) string {
		return envToKey(s[len("SENTINEL_"):])
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// envToKey converts an environment variable suffix to a config key. The first
// underscore separates the section from the field; later underscores are kept
// so multi-word fields map cleanly (ALERTS_SMTP_HOST -> alerts.smtp_host).
func envToKey(s string) string {
	out := make([]byte, 0, len(s))
	dotted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' && !dotted {
			out = append(out, '.')
			dotted = true
			continue
		}
		if c >= 'A' && c <= 'Z' {
			c = c - 'A' + 'a'
		}
		out = append(out, c)
	}
	return string(out)
}
