package backup

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/studystack/sentinel/internal/config"
)

const (
	nextFullKey    = "backup.next_full_at"
	nextCleanupKey = "backup.next_cleanup_at"

	// tickInterval is how often due times are checked. Coarse on purpose;
	// backups are scheduled to the minute, not the second.
	tickInterval = 60 * time.Second
)

// ScheduleStore persists next-due timestamps so a restart never loses a
// scheduled run.
type ScheduleStore interface {
	GetTimeSetting(ctx context.Context, key string) (time.Time, error)
	SetTimeSetting(ctx context.Context, key string, t time.Time) error
}

// Scheduler runs the daily full backup and the weekly retention sweep. Due
// times are persisted; a run missed while the process was down is caught up
// on the first tick after startup.
type Scheduler struct {
	cfg     config.BackupConfig
	manager *Manager
	store   ScheduleStore
	log     *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Config  config.BackupConfig
	Manager *Manager
	Store   ScheduleStore
	Logger  *slog.Logger
}

// NewScheduler constructs a Scheduler. Call Start to begin ticking.
func NewScheduler(opts SchedulerOptions) *Scheduler {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cfg:     opts.Config,
		manager: opts.Manager,
		store:   opts.Store,
		log:     log.With("component", "backup_scheduler"),
		stop:    make(chan struct{}),
	}
}

// Start seeds any missing due times and launches the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	now := time.Now()
	if err := s.seedDueTime(ctx, nextFullKey, func() (time.Time, error) {
		return nextDaily(now, s.cfg.DailyAt)
	}); err != nil {
		return err
	}
	if err := s.seedDueTime(ctx, nextCleanupKey, func() (time.Time, error) {
		return nextWeekly(now, s.cfg.CleanupDay, s.cfg.CleanupAt)
	}); err != nil {
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(tickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop halts the tick loop and waits for it.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) seedDueTime(ctx context.Context, key string, next func() (time.Time, error)) error {
	if _, err := s.store.GetTimeSetting(ctx, key); err == nil {
		return nil
	}
	due, err := next()
	if err != nil {
		return fmt.Errorf("invalid schedule for %s: %w", key, err)
	}
	if err := s.store.SetTimeSetting(ctx, key, due); err != nil {
		return fmt.Errorf("failed to seed %s: %w", key, err)
	}
	s.log.Info("scheduled", "job", key, "due", due)
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	s.runIfDue(ctx, now, nextFullKey,
		func() (time.Time, error) { return nextDaily(now, s.cfg.DailyAt) },
		func() error {
			_, err := s.manager.CreateFullBackup(ctx)
			return err
		})
	s.runIfDue(ctx, now, nextCleanupKey,
		func() (time.Time, error) { return nextWeekly(now, s.cfg.CleanupDay, s.cfg.CleanupAt) },
		func() error {
			_, err := s.manager.CleanupOldBackups(ctx)
			return err
		})
}

// runIfDue fires the job when its persisted due time has passed, then
// advances the due time. The due time advances even on job failure so a
// broken job retries on its next slot rather than every tick.
func (s *Scheduler) runIfDue(ctx context.Context, now time.Time, key string, next func() (time.Time, error), job func() error) {
	due, err := s.store.GetTimeSetting(ctx, key)
	if err != nil {
		s.log.Error("failed to read due time", "job", key, "error", err)
		return
	}
	if now.Before(due) {
		return
	}
	if err := job(); err != nil {
		s.log.Error("scheduled job failed", "job", key, "error", err)
	}
	nextDue, err := next()
	if err != nil {
		s.log.Error("failed to compute next due time", "job", key, "error", err)
		return
	}
	if err := s.store.SetTimeSetting(ctx, key, nextDue); err != nil {
		s.log.Error("failed to persist next due time", "job", key, "error", err)
		return
	}
	s.log.Info("job complete", "job", key, "next_due", nextDue)
}

// nextDaily returns the next occurrence of the HH:MM wall-clock time strictly
// after now.
func nextDaily(now time.Time, at string) (time.Time, error) {
	hour, minute, err := parseClock(at)
	if err != nil {
		return time.Time{}, err
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !due.After(now) {
		due = due.AddDate(0, 0, 1)
	}
	return due, nil
}

// nextWeekly returns the next occurrence of the weekday at HH:MM strictly
// after now.
func nextWeekly(now time.Time, day, at string) (time.Time, error) {
	weekday, err := parseWeekday(day)
	if err != nil {
		return time.Time{}, err
	}
	hour, minute, err := parseClock(at)
	if err != nil {
		return time.Time{}, err
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	offset := (int(weekday) - int(now.Weekday()) + 7) % 7
	due = due.AddDate(0, 0, offset)
	if !due.After(now) {
		due = due.AddDate(0, 0, 7)
	}
	return due, nil
}

func parseClock(s string) (hour, minute int, err error) {
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &hour, &minute); err != nil {
		return 0, 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("clock time %q out of range", s)
	}
	return hour, minute, nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", s)
}
