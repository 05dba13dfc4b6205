// Package app assembles the service: configuration, storage, the metric
// pipeline, alerting, insights, health polling, backups, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/studystack/sentinel/internal/alerts"
	"github.com/studystack/sentinel/internal/archive"
	"github.com/studystack/sentinel/internal/backup"
	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/internal/health"
	"github.com/studystack/sentinel/internal/insights"
	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/internal/server"
	"github.com/studystack/sentinel/internal/sqlite"
	"github.com/studystack/sentinel/pkg/logger"
	"github.com/studystack/sentinel/pkg/models"
)

// App holds every long-lived component and coordinates startup and shutdown.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	SQLite  *sqlite.DB
	Store   *metrics.Store
	Engine  *alerts.Engine
	Version string

	dispatcher *alerts.Dispatcher
	insights   *insights.Generator
	health     *health.Aggregator
	backups    *backup.Manager
	scheduler  *backup.Scheduler
	exporter   *archive.Exporter
	server     *server.Server

	pipelineStop chan struct{}
	pipelineDone chan struct{}
}

// Options contains configuration needed when creating a new App instance.
type Options struct {
	ConfigPath string
	Version    string
}

// New loads configuration and builds the logger. Components are wired in
// Initialize.
func New(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &App{
		Config:  cfg,
		Logger:  logger.New(cfg.Logging.Level == "debug"),
		Version: opts.Version,
	}, nil
}

// Initialize wires every component. The runtime config merge runs after the
// database is up so operator overrides stored in the settings table win.
func (a *App) Initialize(ctx context.Context) error {
	db, err := sqlite.New(sqlite.Options{
		Config: a.Config.SQLite,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sqlite: %w", err)
	}
	a.SQLite = db

	if err := a.seedSystemSettings(ctx); err != nil {
		a.Logger.Warn("failed to seed system settings from config", "error", err)
	}
	a.Config = config.LoadRuntimeConfig(ctx, a.Config, a.SQLite)
	a.Logger.Info("runtime configuration loaded")

	a.Store = metrics.NewStore(metrics.Options{
		HistoryLimit: a.Config.Store.HistoryLimit,
		QueueSize:    a.Config.Store.QueueSize,
		Logger:       a.Logger,
	})

	a.dispatcher = alerts.NewDispatcher(alerts.DispatcherOptions{
		Senders:    a.buildSenders(),
		DB:         a.SQLite,
		RetryDelay: a.Config.Alerts.RetryDelay,
		Timeout:    a.Config.Alerts.NotificationTimeout,
		Logger:     a.Logger,
	})
	a.dispatcher.Start()

	a.Engine = alerts.NewEngine(alerts.EngineOptions{
		Config:     a.Config.Alerts,
		DB:         a.SQLite,
		History:    a.Store,
		Dispatcher: a.dispatcher,
		Logger:     a.Logger,
	})

	var enricher insights.Enricher
	if ai := insights.NewAIEnricher(a.Config.Insights); ai != nil {
		enricher = ai
		a.Logger.Info("ai insight enrichment enabled", "model", a.Config.Insights.AIModel)
	}
	a.insights = insights.NewGenerator(insights.GeneratorOptions{
		Config:   a.Config.Insights,
		History:  a.Store,
		DB:       a.SQLite,
		Enricher: enricher,
		Logger:   a.Logger,
	})

	a.backups, err = backup.NewManager(backup.Options{
		Config: a.Config.Backup,
		DBPath: a.Config.SQLite.Path,
		Logger: a.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize backup manager: %w", err)
	}
	a.scheduler = backup.NewScheduler(backup.SchedulerOptions{
		Config:  a.Config.Backup,
		Manager: a.backups,
		Store:   a.SQLite,
		Logger:  a.Logger,
	})
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start backup scheduler: %w", err)
	}

	a.health = health.NewAggregator(health.Options{
		Config:        a.Config.Health,
		DB:            a.SQLite,
		Backups:       a.backups,
		Sink:          a.Store,
		RetentionDays: a.Config.Backup.RetentionDays,
		Logger:        a.Logger,
	})
	a.health.Start(ctx)

	a.exporter, err = archive.NewExporter(ctx, a.Config.Archive, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metric archive: %w", err)
	}
	if a.exporter != nil {
		a.exporter.Start()
		a.Logger.Info("metric archive enabled", "addr", a.Config.Archive.Addr)
	}

	a.server = server.New(server.Options{
		Config:  a.Config,
		Logger:  a.Logger,
		SQLite:  a.SQLite,
		Store:   a.Store,
		Health:  a.health,
		Backups: a.backups,
		Version: a.Version,
	})

	a.startPipeline(ctx)
	return nil
}

// buildSenders maps each channel type to its sender. SMS and pager ship with
// logging providers until a carrier integration is plugged in.
func (a *App) buildSenders() map[models.ChannelType]alerts.Sender {
	cfg := a.Config.Alerts
	return map[models.ChannelType]alerts.Sender{
		models.ChannelEmail: alerts.NewEmailSender(alerts.EmailSenderOptions{
			Host:          cfg.SMTPHost,
			Port:          cfg.SMTPPort,
			Username:      cfg.SMTPUsername,
			Password:      cfg.SMTPPassword,
			From:          cfg.SMTPFrom,
			ReplyTo:       cfg.SMTPReplyTo,
			Security:      cfg.SMTPSecurity,
			Timeout:       cfg.NotificationTimeout,
			SkipTLSVerify: cfg.TLSInsecureSkipVerify,
			Logger:        a.Logger,
		}),
		models.ChannelChat: alerts.NewChatSender(alerts.ChatSenderOptions{
			DashboardURL: a.Config.Health.UIURL,
			Timeout:      cfg.NotificationTimeout,
			Logger:       a.Logger,
		}),
		models.ChannelWebhook: alerts.NewWebhookSender(alerts.WebhookSenderOptions{
			ServiceName:   "sentinel",
			Timeout:       cfg.NotificationTimeout,
			SkipTLSVerify: cfg.TLSInsecureSkipVerify,
			Logger:        a.Logger,
		}),
		models.ChannelSMS: alerts.NewProviderSender(models.ChannelSMS,
			alerts.NewLogProvider(models.ChannelSMS, a.Logger)),
		models.ChannelPager: alerts.NewProviderSender(models.ChannelPager,
			alerts.NewLogProvider(models.ChannelPager, a.Logger)),
	}
}

// startPipeline launches the single worker that drains the ingest queue and
// runs evaluation, insight analysis, and archive export for each sample.
func (a *App) startPipeline(ctx context.Context) {
	a.pipelineStop = make(chan struct{})
	a.pipelineDone = make(chan struct{})
	go func() {
		defer close(a.pipelineDone)
		for {
			select {
			case metric := <-a.Store.Events():
				a.process(ctx, metric)
			case <-a.pipelineStop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (a *App) process(ctx context.Context, metric models.Metric) {
	if _, err := a.Engine.Evaluate(ctx, metric); err != nil {
		a.Logger.Error("rule evaluation failed", "metric", metric.Name, "error", err)
	}
	if _, err := a.insights.Analyze(ctx, metric); err != nil {
		a.Logger.Error("insight analysis failed", "metric", metric.Name, "error", err)
	}
	if a.exporter != nil {
		a.exporter.Record(metric)
	}
}

// Start begins serving HTTP. Blocks until Shutdown.
func (a *App) Start() error {
	if a.server == nil {
		return fmt.Errorf("server not initialized")
	}
	return a.server.Start()
}

// Shutdown stops components in dependency order: stop accepting requests,
// drain the pipeline, stop the background loops, then close storage.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down")

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	if a.server != nil {
		serverCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := a.server.Shutdown(serverCtx); err != nil {
			a.Logger.Error("error shutting down http server", "error", err)
		}
		cancel()
	}

	if a.pipelineStop != nil {
		close(a.pipelineStop)
		select {
		case <-a.pipelineDone:
		case <-ctx.Done():
			a.Logger.Warn("timeout draining pipeline")
		}
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.health != nil {
		a.health.Stop()
	}
	if a.dispatcher != nil {
		a.dispatcher.Stop()
	}
	if a.exporter != nil {
		a.exporter.Stop()
	}

	if a.SQLite != nil {
		if err := a.SQLite.Close(); err != nil {
			a.Logger.Error("error closing sqlite", "error", err)
		}
	}

	a.Logger.Info("shutdown complete")
	return nil
}

// seedSystemSettings populates the settings table from the static config on
// first boot. After seeding, the database is the source of truth for these
// keys.
func (a *App) seedSystemSettings(ctx context.Context) error {
	count, err := a.SQLite.CountSettings(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	cfg := a.Config
	seeds := []struct {
		key, value, valueType, category string
		sensitive                       bool
	}{
		{"alerts.enabled", strconv.FormatBool(cfg.Alerts.Enabled), "bool", "alerts", false},
		{"alerts.history_limit", strconv.Itoa(cfg.Alerts.HistoryLimit), "int", "alerts", false},
		{"alerts.retry_delay", cfg.Alerts.RetryDelay.String(), "duration", "alerts", false},
		{"alerts.smtp_host", cfg.Alerts.SMTPHost, "string", "alerts", false},
		{"alerts.smtp_port", strconv.Itoa(cfg.Alerts.SMTPPort), "int", "alerts", false},
		{"alerts.smtp_password", cfg.Alerts.SMTPPassword, "string", "alerts", true},
		{"insights.enabled", strconv.FormatBool(cfg.Insights.Enabled), "bool", "insights", false},
		{"health.interval", cfg.Health.Interval.String(), "duration", "health", false},
		{"backup.retention_days", strconv.Itoa(cfg.Backup.RetentionDays), "int", "backup", false},
		{"backup.daily_at", cfg.Backup.DailyAt, "string", "backup", false},
		{"backup.cleanup_day", cfg.Backup.CleanupDay, "string", "backup", false},
		{"backup.cleanup_at", cfg.Backup.CleanupAt, "string", "backup", false},
	}
	for _, s := range seeds {
		if err := a.SQLite.UpsertSetting(ctx, s.key, s.value, s.valueType, s.category, "", s.sensitive); err != nil {
			return err
		}
	}
	a.Logger.Info("seeded system settings", "count", len(seeds))
	return nil
}
