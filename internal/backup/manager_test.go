package backup

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/studystack/sentinel/internal/config"
	"github.com/studystack/sentinel/pkg/models"
)

func newTestManager(t *testing.T, retentionDays int) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Config: config.BackupConfig{
			Dir:           t.TempDir(),
			RetentionDays: retentionDays,
		},
		DBPath: "test.db",
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return m
}

// writeBackupFixture fabricates a completed backup directory with dumps,
// checksum, and sidecar, the same shape CreateFullBackup produces.
func writeBackupFixture(t *testing.T, m *Manager, ts time.Time, tables map[string]string) string {
	t.Helper()
	dir := filepath.Join(m.cfg.Dir, ts.UTC().Format(backupDirFormat))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("failed to create fixture dir: %v", err)
	}
	var names []string
	var size int64
	for table, dump := range tables {
		if err := os.WriteFile(filepath.Join(dir, table+".sql"), []byte(dump), 0o644); err != nil {
			t.Fatalf("failed to write dump: %v", err)
		}
		names = append(names, table)
		size += int64(len(dump))
	}
	checksum, err := checksumDir(dir)
	if err != nil {
		t.Fatalf("checksumDir returned error: %v", err)
	}
	metadata := &models.BackupMetadata{
		Timestamp:   ts.UTC(),
		SizeBytes:   size,
		Collections: names,
		Checksum:    checksum,
		Type:        models.BackupFull,
	}
	if err := writeMetadata(dir, metadata); err != nil {
		t.Fatalf("writeMetadata returned error: %v", err)
	}
	return filepath.Base(dir)
}

func TestVerifyBackupIntegrity(t *testing.T) {
	m := newTestManager(t, 30)
	name := writeBackupFixture(t, m, time.Now(), map[string]string{
		"alert_rules":   "CREATE TABLE alert_rules (id INTEGER);\n",
		"alert_history": "CREATE TABLE alert_history (id INTEGER);\n",
	})

	ok, err := m.VerifyBackupIntegrity(context.Background(), name)
	if err != nil {
		t.Fatalf("VerifyBackupIntegrity returned error: %v", err)
	}
	if !ok {
		t.Fatal("untouched backup failed verification")
	}
}

func TestVerifyBackupDetectsMutation(t *testing.T) {
	m := newTestManager(t, 30)
	name := writeBackupFixture(t, m, time.Now(), map[string]string{
		"alert_rules": "CREATE TABLE alert_rules (id INTEGER);\n",
	})

	// Flip a single byte in the dump.
	path := filepath.Join(m.cfg.Dir, name, "alert_rules.sql")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read dump: %v", err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write mutated dump: %v", err)
	}

	ok, err := m.VerifyBackupIntegrity(context.Background(), name)
	if err != nil {
		t.Fatalf("VerifyBackupIntegrity returned error: %v", err)
	}
	if ok {
		t.Fatal("mutated backup passed verification")
	}
}

func TestVerifyBackupMissingDumpsIsFalseNotError(t *testing.T) {
	m := newTestManager(t, 30)
	name := writeBackupFixture(t, m, time.Now(), map[string]string{
		"alert_rules":   "CREATE TABLE alert_rules (id INTEGER);\n",
		"alert_history": "CREATE TABLE alert_history (id INTEGER);\n",
	})

	// Remove every dump but keep the sidecar. The backup is invalid, not
	// unreadable.
	for _, table := range []string{"alert_rules", "alert_history"} {
		if err := os.Remove(filepath.Join(m.cfg.Dir, name, table+".sql")); err != nil {
			t.Fatalf("failed to remove dump: %v", err)
		}
	}

	ok, err := m.VerifyBackupIntegrity(context.Background(), name)
	if err != nil {
		t.Fatalf("missing dumps must not be an error, got: %v", err)
	}
	if ok {
		t.Fatal("backup with missing dumps passed verification")
	}
}

func TestChecksumIgnoresFileOrder(t *testing.T) {
	m := newTestManager(t, 30)
	dumps := map[string]string{
		"a_table": "dump a\n",
		"b_table": "dump b\n",
		"c_table": "dump c\n",
	}
	first := writeBackupFixture(t, m, time.Now().Add(-time.Minute), dumps)
	second := writeBackupFixture(t, m, time.Now(), dumps)

	sum1, err := checksumDir(filepath.Join(m.cfg.Dir, first))
	if err != nil {
		t.Fatalf("checksumDir returned error: %v", err)
	}
	sum2, err := checksumDir(filepath.Join(m.cfg.Dir, second))
	if err != nil {
		t.Fatalf("checksumDir returned error: %v", err)
	}
	if sum1 != sum2 {
		t.Fatal("identical content produced different checksums")
	}
}

func TestListBackupsNewestFirst(t *testing.T) {
	m := newTestManager(t, 30)
	old := time.Now().Add(-48 * time.Hour)
	recent := time.Now().Add(-1 * time.Hour)
	writeBackupFixture(t, m, old, map[string]string{"t": "old\n"})
	writeBackupFixture(t, m, recent, map[string]string{"t": "new\n"})

	// A directory without a sidecar is an incomplete run and must be skipped.
	if err := os.MkdirAll(filepath.Join(m.cfg.Dir, "backup-19990101-000000"), 0o755); err != nil {
		t.Fatalf("failed to create incomplete dir: %v", err)
	}

	backups, err := m.ListBackups(context.Background())
	if err != nil {
		t.Fatalf("ListBackups returned error: %v", err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(backups))
	}
	if !backups[0].Timestamp.After(backups[1].Timestamp) {
		t.Fatal("backups not sorted newest first")
	}
}

func TestCleanupOldBackupsRetentionBoundary(t *testing.T) {
	m := newTestManager(t, 30)
	now := time.Now().UTC()
	expired := writeBackupFixture(t, m, now.AddDate(0, 0, -31), map[string]string{"t": "expired\n"})
	kept := writeBackupFixture(t, m, now.AddDate(0, 0, -29), map[string]string{"t": "kept\n"})

	removed, err := m.CleanupOldBackups(context.Background())
	if err != nil {
		t.Fatalf("CleanupOldBackups returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 backup removed, got %d", removed)
	}
	if _, err := os.Stat(filepath.Join(m.cfg.Dir, expired)); !os.IsNotExist(err) {
		t.Fatal("expired backup still on disk")
	}
	if _, err := os.Stat(filepath.Join(m.cfg.Dir, kept)); err != nil {
		t.Fatalf("backup inside the retention window was removed: %v", err)
	}
}

func TestCleanupSweepsAbortedRuns(t *testing.T) {
	m := newTestManager(t, 30)
	now := time.Now().UTC()

	// A sidecar-less directory is an aborted run; an old one must be
	// reclaimed by its modification time, a fresh one left alone.
	oldAborted := filepath.Join(m.cfg.Dir, "backup-20200101-000000")
	freshAborted := filepath.Join(m.cfg.Dir, now.Format(backupDirFormat))
	for _, dir := range []string{oldAborted, freshAborted} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("failed to create aborted dir: %v", err)
		}
	}
	stale := now.AddDate(0, 0, -31)
	if err := os.Chtimes(oldAborted, stale, stale); err != nil {
		t.Fatalf("failed to age aborted dir: %v", err)
	}

	removed, err := m.CleanupOldBackups(context.Background())
	if err != nil {
		t.Fatalf("CleanupOldBackups returned error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 directory removed, got %d", removed)
	}
	if _, err := os.Stat(oldAborted); !os.IsNotExist(err) {
		t.Fatal("old aborted run still on disk")
	}
	if _, err := os.Stat(freshAborted); err != nil {
		t.Fatalf("fresh aborted run was removed: %v", err)
	}
}

func TestCleanupDisabledRetention(t *testing.T) {
	m := newTestManager(t, 0)
	writeBackupFixture(t, m, time.Now().AddDate(0, 0, -365), map[string]string{"t": "ancient\n"})

	removed, err := m.CleanupOldBackups(context.Background())
	if err != nil {
		t.Fatalf("CleanupOldBackups returned error: %v", err)
	}
	if removed != 0 {
		t.Fatal("retention 0 must disable cleanup")
	}
}

// sqliteExec runs one SQL statement against a database file with the sqlite3
// CLI and returns stdout.
func sqliteExec(t *testing.T, bin, dbPath, sql string) string {
	t.Helper()
	cmd := exec.Command(bin, dbPath, sql)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("sqlite3 %q failed: %v: %s", sql, err, stderr.String())
	}
	return strings.TrimSpace(stdout.String())
}

func TestRestoreReplacesExistingDatabase(t *testing.T) {
	bin, err := exec.LookPath("sqlite3")
	if err != nil {
		t.Skip("sqlite3 binary not available")
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "live.db")
	sqliteExec(t, bin, dbPath,
		"CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT); INSERT INTO notes (id, body) VALUES (1, 'original')")

	m, err := NewManager(Options{
		Config: config.BackupConfig{Dir: filepath.Join(dir, "backups"), SQLiteBinary: bin},
		DBPath: dbPath,
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}

	metadata, err := m.CreateFullBackup(context.Background())
	if err != nil {
		t.Fatalf("CreateFullBackup returned error: %v", err)
	}

	// Mutate the live database after the backup. Restoring must undo both
	// the update and the extra row even though the schema already exists.
	sqliteExec(t, bin, dbPath,
		"UPDATE notes SET body = 'mutated' WHERE id = 1; INSERT INTO notes (id, body) VALUES (2, 'extra')")

	name := metadata.Timestamp.Format(backupDirFormat)
	if err := m.RestoreFromBackup(context.Background(), name); err != nil {
		t.Fatalf("RestoreFromBackup returned error: %v", err)
	}

	if got := sqliteExec(t, bin, dbPath, "SELECT body FROM notes WHERE id = 1"); got != "original" {
		t.Errorf("restored row body = %q, want %q", got, "original")
	}
	if got := sqliteExec(t, bin, dbPath, "SELECT COUNT(*) FROM notes"); got != "1" {
		t.Errorf("restored row count = %s, want 1", got)
	}
	if _, err := os.Stat(dbPath + ".restore"); !os.IsNotExist(err) {
		t.Error("staging database left behind after restore")
	}
}

func TestRestoreFailureLeavesLiveDatabaseUntouched(t *testing.T) {
	bin, err := exec.LookPath("sqlite3")
	if err != nil {
		t.Skip("sqlite3 binary not available")
	}

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "live.db")
	sqliteExec(t, bin, dbPath,
		"CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT); INSERT INTO notes (id, body) VALUES (1, 'original')")

	m, err := NewManager(Options{
		Config: config.BackupConfig{Dir: filepath.Join(dir, "backups"), SQLiteBinary: bin},
		DBPath: dbPath,
	})
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	metadata, err := m.CreateFullBackup(context.Background())
	if err != nil {
		t.Fatalf("CreateFullBackup returned error: %v", err)
	}

	// Corrupt the dump. Verification must reject the backup before the
	// live database is touched.
	name := metadata.Timestamp.Format(backupDirFormat)
	dump := filepath.Join(m.cfg.Dir, name, "notes.sql")
	if err := os.WriteFile(dump, []byte("NOT SQL;\n"), 0o644); err != nil {
		t.Fatalf("failed to corrupt dump: %v", err)
	}

	if err := m.RestoreFromBackup(context.Background(), name); err == nil {
		t.Fatal("expected restore of a corrupted backup to fail")
	}
	if got := sqliteExec(t, bin, dbPath, "SELECT body FROM notes WHERE id = 1"); got != "original" {
		t.Errorf("live database changed by failed restore: body = %q", got)
	}
}
