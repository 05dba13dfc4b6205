// Package health probes the service's own dependencies and folds the results
// into a single application health snapshot. Probe measurements are fed back
// into the metric store so the alert rules covering them evaluate like any
// other metric.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/pkg/models"
)

// Pinger is the database liveness check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BackupInspector reports the on-disk backup inventory, newest first.
type BackupInspector interface {
	ListBackups(ctx context.Context) ([]models.BackupMetadata, error)
}

// MetricSink receives probe measurements.
type MetricSink interface {
	Ingest(metric models.Metric) error
}

// Aggregator polls dependencies on an interval and keeps the latest snapshot.
type Aggregator struct {
	cfg     config.HealthConfig
	db      Pinger
	backups BackupInspector
	sink    MetricSink
	client  *http.Client
	log     *slog.Logger

	retentionDays int

	mu       sync.RWMutex
	snapshot models.ApplicationHealth

	stop chan struct{}
	wg   sync.WaitGroup
}

// Options configures an Aggregator.
type Options struct {
	Config  config.HealthConfig
	DB      Pinger
	Backups BackupInspector
	Sink    MetricSink
	// RetentionDays is echoed into the recovery metrics for dashboards.
	RetentionDays int
	Logger        *slog.Logger
}

// NewAggregator constructs an Aggregator. Call Start to begin polling.
func NewAggregator(opts Options) *Aggregator {
	cfg := opts.Config
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.BackupStaleness <= 0 {
		cfg.BackupStaleness = 25 * time.Hour
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		cfg:           cfg,
		db:            opts.DB,
		backups:       opts.Backups,
		sink:          opts.Sink,
		client:        &http.Client{Timeout: cfg.ProbeTimeout},
		log:           log.With("component", "health_aggregator"),
		retentionDays: opts.RetentionDays,
		stop:          make(chan struct{}),
	}
}

// Start launches the polling loop. An immediate first poll primes the
// snapshot before the first tick.
func (a *Aggregator) Start(ctx context.Context) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pollOnce(ctx)
		ticker := time.NewTicker(a.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.pollOnce(ctx)
			case <-a.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the polling loop and waits for it.
func (a *Aggregator) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// Snapshot returns the latest health snapshot.
func (a *Aggregator) Snapshot() models.ApplicationHealth {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot
}

func (a *Aggregator) pollOnce(ctx context.Context) {
	snapshot := a.Poll(ctx)
	a.mu.Lock()
	a.snapshot = snapshot
	a.mu.Unlock()
	if snapshot.Status != models.HealthHealthy {
		a.log.Warn("system health degraded",
			"status", snapshot.Status,
			"database", snapshot.Services.Database.Status,
			"backup", snapshot.Services.Backup.Status,
			"api", snapshot.Services.API.Status,
			"ui", snapshot.Services.UI.Status)
	}
}

// Poll probes every dependency once and returns the aggregated snapshot.
func (a *Aggregator) Poll(ctx context.Context) models.ApplicationHealth {
	now := time.Now().UTC()
	dbStatus := a.probeDatabase(ctx)
	backupStatus, recovery := a.probeBackups(ctx)
	apiStatus := a.probeHTTP(ctx, a.cfg.APIURL, "api")
	uiStatus := a.probeUI(ctx)

	services := models.ServiceHealth{
		Database: dbStatus,
		Backup:   backupStatus,
		API:      apiStatus,
		UI:       uiStatus,
	}

	a.emit("health_db_response_time", dbStatus.ResponseTimeMS, models.MetricUnitMilliseconds)
	a.emit("backup_age_hours", recovery.BackupAgeHours, models.MetricUnitCount)

	return models.ApplicationHealth{
		Timestamp: now,
		Status:    aggregate(services),
		Services:  services,
		Recovery:  recovery,
	}
}

// aggregate folds probe outcomes into one status: any down service makes the
// system unhealthy, otherwise any degraded service makes it degraded.
func aggregate(services models.ServiceHealth) models.HealthStatus {
	all := []models.ServiceStatus{services.Database, services.Backup, services.API, services.UI}
	degraded := false
	for _, s := range all {
		switch s.Status {
		case models.ProbeDown:
			return models.HealthUnhealthy
		case models.ProbeDegraded:
			degraded = true
		}
	}
	if degraded {
		return models.HealthDegraded
	}
	return models.HealthHealthy
}

func (a *Aggregator) probeDatabase(ctx context.Context) models.ServiceStatus {
	checked := time.Now().UTC()
	if a.db == nil {
		return models.ServiceStatus{Status: models.ProbeDown, Detail: "no database configured", CheckedAt: checked}
	}
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()
	start := time.Now()
	err := a.db.Ping(probeCtx)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		return models.ServiceStatus{
			Status:         models.ProbeDown,
			ResponseTimeMS: elapsed,
			Detail:         err.Error(),
			CheckedAt:      checked,
		}
	}
	return models.ServiceStatus{Status: models.ProbeUp, ResponseTimeMS: elapsed, CheckedAt: checked}
}

func (a *Aggregator) probeBackups(ctx context.Context) (models.ServiceStatus, models.RecoveryMetrics) {
	checked := time.Now().UTC()
	recovery := models.RecoveryMetrics{
		RetentionDays:   a.retentionDays,
		FreshnessTarget: a.cfg.BackupStaleness.Hours(),
	}
	if a.backups == nil {
		return models.ServiceStatus{Status: models.ProbeDegraded, Detail: "backups not configured", CheckedAt: checked}, recovery
	}
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()
	backups, err := a.backups.ListBackups(probeCtx)
	if err != nil {
		return models.ServiceStatus{Status: models.ProbeDown, Detail: err.Error(), CheckedAt: checked}, recovery
	}
	recovery.BackupsOnDisk = len(backups)
	if len(backups) == 0 {
		return models.ServiceStatus{Status: models.ProbeDegraded, Detail: "no backups on disk", CheckedAt: checked}, recovery
	}

	latest := backups[0]
	age := time.Since(latest.Timestamp)
	recovery.LastBackupAt = &latest.Timestamp
	recovery.BackupAgeHours = age.Hours()
	recovery.LastBackupSize = latest.SizeBytes
	recovery.LastDurationMS = latest.DurationMS

	if age > a.cfg.BackupStaleness {
		detail := fmt.Sprintf("last backup is %.1fh old (threshold %.1fh)", age.Hours(), a.cfg.BackupStaleness.Hours())
		return models.ServiceStatus{Status: models.ProbeDegraded, Detail: detail, CheckedAt: checked}, recovery
	}
	return models.ServiceStatus{Status: models.ProbeUp, CheckedAt: checked}, recovery
}

func (a *Aggregator) probeHTTP(ctx context.Context, url, name string) models.ServiceStatus {
	checked := time.Now().UTC()
	if url == "" {
		return models.ServiceStatus{Status: models.ProbeUp, Detail: "no " + name + " url configured, check skipped", CheckedAt: checked}
	}
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.ProbeTimeout)
	defer cancel()
	request, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return models.ServiceStatus{Status: models.ProbeDown, Detail: err.Error(), CheckedAt: checked}
	}
	start := time.Now()
	response, err := a.client.Do(request)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		return models.ServiceStatus{Status: models.ProbeDown, ResponseTimeMS: elapsed, Detail: err.Error(), CheckedAt: checked}
	}
	_ = response.Body.Close()
	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return models.ServiceStatus{
			Status:         models.ProbeDown,
			ResponseTimeMS: elapsed,
			Detail:         fmt.Sprintf("unexpected status %d", response.StatusCode),
			CheckedAt:      checked,
		}
	}
	return models.ServiceStatus{Status: models.ProbeUp, ResponseTimeMS: elapsed, CheckedAt: checked}
}

func (a *Aggregator) probeUI(ctx context.Context) models.ServiceStatus {
	return a.probeHTTP(ctx, a.cfg.UIURL, "ui")
}

func (a *Aggregator) emit(name string, value float64, unit models.MetricUnit) {
	if a.sink == nil {
		return
	}
	metric := models.Metric{
		Name:      name,
		Value:     value,
		Unit:      unit,
		Timestamp: time.Now().UTC(),
		Tags:      map[string]string{models.TrendTag: string(models.TrendLowerIsBetter), "source": "health_probe"},
	}
	if err := a.sink.Ingest(metric); err != nil {
		a.log.Warn("failed to record probe metric", "metric", name, "error", err)
	}
}
