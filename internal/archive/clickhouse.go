// Package archive exports ingested metrics to ClickHouse for long-term
// retention beyond the in-memory window. The exporter is optional; when
// disabled the pipeline never touches it.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/pkg/models"
)

const createTableQuery = `CREATE TABLE IF NOT EXISTS %s (
    name       LowCardinality(String),
    value      Float64,
    unit       LowCardinality(String),
    timestamp  DateTime64(3, 'UTC'),
    tags       Map(String, String),
    severity   LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (name, timestamp)
TTL toDateTime(timestamp) + INTERVAL 1 YEAR`

// Exporter batches metrics and flushes them to ClickHouse on an interval.
type Exporter struct {
	conn  driver.Conn
	table string
	log   *slog.Logger

	interval time.Duration

	mu     sync.Mutex
	buffer []models.Metric

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewExporter connects to ClickHouse and ensures the archive table exists.
// Returns nil when the archive is disabled.
func NewExporter(ctx context.Context, cfg config.ArchiveConfig, log *slog.Logger) (*Exporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log == nil {
		log = slog.Default()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		DialTimeout: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping failed: %w", err)
	}
	table := cfg.Table
	if table == "" {
		table = "metrics"
	}
	if err := conn.Exec(ctx, fmt.Sprintf(createTableQuery, table)); err != nil {
		return nil, fmt.Errorf("failed to ensure archive table: %w", err)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Exporter{
		conn:     conn,
		table:    table,
		log:      log.With("component", "metric_archive"),
		interval: interval,
		stop:     make(chan struct{}),
	}, nil
}

// Start launches the flush loop.
func (e *Exporter) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.flush()
			case <-e.stop:
				e.flush()
				return
			}
		}
	}()
}

// Stop flushes any buffered metrics and closes the connection.
func (e *Exporter) Stop() {
	close(e.stop)
	e.wg.Wait()
	if err := e.conn.Close(); err != nil {
		e.log.Warn("failed to close clickhouse connection", "error", err)
	}
}

// Record buffers one metric for the next flush.
func (e *Exporter) Record(metric models.Metric) {
	e.mu.Lock()
	e.buffer = append(e.buffer, metric)
	e.mu.Unlock()
}

func (e *Exporter) flush() {
	e.mu.Lock()
	batch := e.buffer
	e.buffer = nil
	e.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	insert, err := e.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s", e.table))
	if err != nil {
		e.log.Error("failed to prepare archive batch", "error", err)
		return
	}
	for _, m := range batch {
		tags := m.Tags
		if tags == nil {
			tags = map[string]string{}
		}
		if err := insert.Append(m.Name, m.Value, string(m.Unit), m.Timestamp, tags, string(m.Severity)); err != nil {
			e.log.Error("failed to append to archive batch", "error", err)
			return
		}
	}
	if err := insert.Send(); err != nil {
		e.log.Error("failed to send archive batch", "error", err)
		return
	}
	e.log.Debug("archived metrics", "count", len(batch))
}
