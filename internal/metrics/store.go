// Package metrics holds the in-memory metric store: a bounded per-name
// sample window feeding the evaluation pipeline through a buffered channel so
// producers never block on notification I/O.
package metrics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/studystack/sentinel/pkg/models"
)

// Store owns all ingested samples. All access is serialized through its
// mutex; snapshots returned by queries are copies.
type Store struct {
	mu     sync.RWMutex
	series map[string][]models.Metric
	limit  int

	queue chan models.Metric
	log   *slog.Logger
}

// Options configures a Store.
type Options struct {
	// HistoryLimit bounds the per-name window. Defaults to
	// models.DefaultMetricHistoryLimit.
	HistoryLimit int
	// QueueSize bounds the ingest-to-evaluation channel.
	QueueSize int
	Logger    *slog.Logger
}

// NewStore constructs an empty store.
func NewStore(opts Options) *Store {
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = models.DefaultMetricHistoryLimit
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 1024
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		series: make(map[string][]models.Metric),
		limit:  limit,
		queue:  make(chan models.Metric, queueSize),
		log:    log.With("component", "metric_store"),
	}
}

// Ingest appends a sample to its series and enqueues it for evaluation. The
// append always succeeds; when the evaluation queue is full the evaluation is
// dropped and counted, never the stored sample.
func (s *Store) Ingest(metric models.Metric) error {
	if metric.Name == "" {
		return fmt.Errorf("metric name is required")
	}
	if metric.Timestamp.IsZero() {
		metric.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	samples := append(s.series[metric.Name], metric)
	if overflow := len(samples) - s.limit; overflow > 0 {
		samples = samples[overflow:]
	}
	s.series[metric.Name] = samples
	s.mu.Unlock()

	ingestedTotal.Inc()

	select {
	case s.queue <- metric:
	default:
		evaluationDropsTotal.Inc()
		s.log.Warn("evaluation queue full, dropping evaluation", "metric", metric.Name)
	}
	return nil
}

// Events exposes the evaluation queue. Consumed by the single pipeline worker.
func (s *Store) Events() <-chan models.Metric {
	return s.queue
}

// Query returns samples for one metric name newer than the cutoff, in
// insertion order.
func (s *Store) Query(name string, rangeMinutes int) []models.Metric {
	cutoff := time.Now().Add(-time.Duration(rangeMinutes) * time.Minute)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterAfter(s.series[name], cutoff)
}

// QueryAll returns samples across every series newer than the cutoff.
func (s *Store) QueryAll(rangeMinutes int) []models.Metric {
	cutoff := time.Now().Add(-time.Duration(rangeMinutes) * time.Minute)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Metric
	for _, samples := range s.series {
		out = append(out, filterAfter(samples, cutoff)...)
	}
	return out
}

// History returns up to n of the most recent samples for a name, oldest
// first. n <= 0 returns the whole window.
func (s *Store) History(name string, n int) []models.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	samples := s.series[name]
	if n > 0 && len(samples) > n {
		samples = samples[len(samples)-n:]
	}
	out := make([]models.Metric, len(samples))
	copy(out, samples)
	return out
}

// Len reports the number of retained samples for a name.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.series[name])
}

// Names lists the metric names currently held.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.series))
	for name := range s.series {
		names = append(names, name)
	}
	return names
}

func filterAfter(samples []models.Metric, cutoff time.Time) []models.Metric {
	var out []models.Metric
	for _, m := range samples {
		if m.Timestamp.After(cutoff) {
			out = append(out, m)
		}
	}
	return out
}
