// Package backup produces per-table SQL dumps of the SQLite database using
// the sqlite3 CLI, with a checksum sidecar for integrity verification and an
// age-based retention sweep.
package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/internal/metrics"
	"github.com/studystack/sentinel/pkg/models"
)

const backupDirFormat = "backup-20060102-150405"

// Manager creates, verifies, restores, and prunes backups.
type Manager struct {
	cfg    config.BackupConfig
	dbPath string
	log    *slog.Logger
}

// Options configures a Manager.
type Options struct {
	Config config.BackupConfig
	// DBPath is the live SQLite database file.
	DBPath string
	Logger *slog.Logger
}

// NewManager constructs a Manager and ensures the backup directory exists.
func NewManager(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg.Dir == "" {
		cfg.Dir = "backups"
	}
	if cfg.SQLiteBinary == "" {
		cfg.SQLiteBinary = "sqlite3"
	}
	if cfg.DumpTimeout <= 0 {
		cfg.DumpTimeout = 10 * time.Minute
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup dir: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		dbPath: opts.DBPath,
		log:    log.With("component", "backup_manager"),
	}, nil
}

// CreateFullBackup dumps every user table into its own .sql file under a
// fresh timestamped directory and writes the metadata sidecar last, so a
// directory without a sidecar is always an incomplete run.
func (m *Manager) CreateFullBackup(ctx context.Context) (*models.BackupMetadata, error) {
	start := time.Now()
	tables, err := m.listTables(ctx)
	if err != nil {
		metrics.BackupFailuresTotal.Inc()
		return nil, err
	}
	if len(tables) == 0 {
		metrics.BackupFailuresTotal.Inc()
		return nil, fmt.Errorf("database has no tables to back up")
	}

	dir := filepath.Join(m.cfg.Dir, start.UTC().Format(backupDirFormat))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.BackupFailuresTotal.Inc()
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	var totalSize int64
	for _, table := range tables {
		size, err := m.dumpTable(ctx, table, filepath.Join(dir, table+".sql"))
		if err != nil {
			metrics.BackupFailuresTotal.Inc()
			return nil, fmt.Errorf("failed to dump table %s: %w", table, err)
		}
		totalSize += size
	}

	checksum, err := checksumDir(dir)
	if err != nil {
		metrics.BackupFailuresTotal.Inc()
		return nil, err
	}

	metadata := &models.BackupMetadata{
		Timestamp:   start.UTC(),
		SizeBytes:   totalSize,
		Collections: tables,
		DurationMS:  time.Since(start).Milliseconds(),
		Checksum:    checksum,
		Type:        models.BackupFull,
	}
	if err := writeMetadata(dir, metadata); err != nil {
		metrics.BackupFailuresTotal.Inc()
		return nil, err
	}

	metrics.BackupsTotal.Inc()
	m.log.Info("backup complete",
		"dir", dir,
		"tables", len(tables),
		"size_bytes", totalSize,
		"duration_ms", metadata.DurationMS)
	return metadata, nil
}

// ListBackups returns metadata for every completed backup, newest first.
// Directories without a sidecar are skipped.
func (m *Manager) ListBackups(ctx context.Context) ([]models.BackupMetadata, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup dir: %w", err)
	}
	var backups []models.BackupMetadata
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		metadata, err := readMetadata(filepath.Join(m.cfg.Dir, entry.Name()))
		if err != nil {
			continue
		}
		backups = append(backups, *metadata)
	}
	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// VerifyBackupIntegrity checks that every collection listed in the sidecar
// still has its dump on disk, then recomputes the checksum and compares it to
// the sidecar. A false return with nil error means the content changed or a
// dump went missing since the backup was written.
func (m *Manager) VerifyBackupIntegrity(ctx context.Context, name string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	dir := filepath.Join(m.cfg.Dir, filepath.Base(name))
	metadata, err := readMetadata(dir)
	if err != nil {
		return false, err
	}
	for _, table := range metadata.Collections {
		if _, err := os.Stat(filepath.Join(dir, table+".sql")); err != nil {
			return false, nil
		}
	}
	checksum, err := checksumDir(dir)
	if err != nil {
		return false, err
	}
	return checksum == metadata.Checksum, nil
}

// RestoreFromBackup verifies the named backup, replays its table dumps into
// a fresh staging database, and swaps the staging file over the live one.
// Replaying into staging means a mid-run failure never touches the live
// database, and the swap drops tables that did not exist at backup time.
func (m *Manager) RestoreFromBackup(ctx context.Context, name string) error {
	dir := filepath.Join(m.cfg.Dir, filepath.Base(name))
	ok, err := m.VerifyBackupIntegrity(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("backup %s failed integrity verification", name)
	}
	metadata, err := readMetadata(dir)
	if err != nil {
		return err
	}

	staging := m.dbPath + ".restore"
	if err := os.Remove(staging); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear staging database: %w", err)
	}
	for _, table := range metadata.Collections {
		if err := m.replayDump(ctx, staging, filepath.Join(dir, table+".sql")); err != nil {
			_ = os.Remove(staging)
			return fmt.Errorf("failed to restore table %s: %w", table, err)
		}
	}
	if err := os.Rename(staging, m.dbPath); err != nil {
		_ = os.Remove(staging)
		return fmt.Errorf("failed to swap restored database into place: %w", err)
	}
	// Any WAL and SHM sidecars belong to the replaced file.
	for _, suffix := range []string{"-wal", "-shm"} {
		_ = os.Remove(m.dbPath + suffix)
	}
	m.log.Info("restore complete", "backup", name, "tables", len(metadata.Collections))
	return nil
}

// CleanupOldBackups deletes backups older than the retention window. Age
// comes from the sidecar timestamp; a directory without a sidecar is an
// aborted run and is swept by file modification time so incomplete runs do
// not accumulate. Returns the number of directories removed.
func (m *Manager) CleanupOldBackups(ctx context.Context) (int, error) {
	if m.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -m.cfg.RetentionDays)
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read backup dir: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.cfg.Dir, entry.Name())
		var stamp time.Time
		if metadata, err := readMetadata(dir); err == nil {
			stamp = metadata.Timestamp
		} else {
			info, infoErr := entry.Info()
			if infoErr != nil {
				continue
			}
			stamp = info.ModTime()
		}
		if !stamp.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			m.log.Error("failed to remove expired backup", "dir", dir, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		m.log.Info("retention sweep complete", "removed", removed, "retention_days", m.cfg.RetentionDays)
	}
	return removed, nil
}

func (m *Manager) listTables(ctx context.Context) ([]string, error) {
	out, err := m.runSQLite(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	var tables []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			tables = append(tables, line)
		}
	}
	return tables, nil
}

func (m *Manager) dumpTable(ctx context.Context, table, path string) (int64, error) {
	out, err := m.runSQLite(ctx, fmt.Sprintf(".dump %s", table))
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return 0, fmt.Errorf("failed to write dump: %w", err)
	}
	return int64(len(out)), nil
}

func (m *Manager) replayDump(ctx context.Context, dbPath, path string) error {
	dump, err := os.Open(path)
	if err != nil {
		return err
	}
	defer dump.Close()

	cmdCtx, cancel := context.WithTimeout(ctx, m.cfg.DumpTimeout)
	defer cancel()
	cmd := exec.CommandContext(cmdCtx, m.cfg.SQLiteBinary, dbPath)
	cmd.Stdin = dump
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (m *Manager) runSQLite(ctx context.Context, command string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, m.cfg.DumpTimeout)
	defer cancel()
	cmd := exec.CommandContext(cmdCtx, m.cfg.SQLiteBinary, m.dbPath, command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// checksumDir hashes each .sql file, sorts the digests, and hashes their
// concatenation so the result is independent of directory iteration order.
func checksumDir(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read backup directory: %w", err)
	}
	var digests []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return "", fmt.Errorf("failed to read dump %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(data)
		digests = append(digests, hex.EncodeToString(sum[:]))
	}
	if len(digests) == 0 {
		return "", fmt.Errorf("backup directory %s has no dumps", dir)
	}
	sort.Strings(digests)
	combined := sha256.Sum256([]byte(strings.Join(digests, "")))
	return hex.EncodeToString(combined[:]), nil
}

func writeMetadata(dir string, metadata *models.BackupMetadata) error {
	data, err := json.MarshalIndent(metadata, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal backup metadata: %w", err)
	}
	path := filepath.Join(dir, models.BackupMetadataFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write backup metadata: %w", err)
	}
	return nil
}

func readMetadata(dir string) (*models.BackupMetadata, error) {
	data, err := os.ReadFile(filepath.Join(dir, models.BackupMetadataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read backup metadata: %w", err)
	}
	var metadata models.BackupMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to decode backup metadata: %w", err)
	}
	return &metadata, nil
}
