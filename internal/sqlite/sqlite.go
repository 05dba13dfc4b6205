// Package sqlite persists alert rules, alert history, insights, and runtime
// settings. Reads and writes use separate connections to play well with
// SQLite's WAL mode (concurrent readers, one writer).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/studystack/sentinel/internal/config"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DB provides access to the SQLite database.
type DB struct {
	readDB  *sql.DB // connection pool for reads
	writeDB *sql.DB // single connection, serialized writes
	log     *slog.Logger
}

// Options holds configuration for creating a new DB instance.
type Options struct {
	Logger *slog.Logger
	Config config.SQLiteConfig
}

// New opens the database, applies pragmas, runs migrations, and returns a DB
// ready for use.
func New(opts Options) (*DB, error) {
	log := opts.Logger.With("component", "sqlite")

	if err := setupAndRunMigrations(opts.Config.Path, log); err != nil {
		return nil, err
	}

	readDB, err := sql.Open("sqlite", opts.Config.Path)
	if err != nil {
		return nil, fmt.Errorf("error opening read database: %w", err)
	}
	readDB.SetMaxOpenConns(25)
	readDB.SetMaxIdleConns(10)
	readDB.SetConnMaxLifetime(30 * time.Minute)
	if err := setPragmas(readDB); err != nil {
		readDB.Close()
		return nil, fmt.Errorf("error setting pragmas on read database: %w", err)
	}

	// _txlock=immediate acquires the write lock up front so competing
	// writers queue instead of deadlocking.
	writeDB, err := sql.Open("sqlite", opts.Config.Path+"?_txlock=immediate")
	if err != nil {
		readDB.Close()
		return nil, fmt.Errorf("error opening write database: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	if err := setPragmas(writeDB); err != nil {
		readDB.Close()
		writeDB.Close()
		return nil, fmt.Errorf("error setting pragmas on write database: %w", err)
	}

	log.Debug("sqlite initialized with read/write separation", "path", opts.Config.Path)
	return &DB{readDB: readDB, writeDB: writeDB, log: log}, nil
}

// Ping verifies the read connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return db.readDB.PingContext(ctx)
}

// Path-independent close of both connections.
func (db *DB) Close() error {
	var errs []error
	if err := db.writeDB.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := db.readDB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func setupAndRunMigrations(dsn string, log *slog.Logger) error {
	migrationDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("error opening migration database: %w", err)
	}
	defer func() { _ = migrationDB.Close() }()

	if _, err := migrationDB.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return fmt.Errorf("error setting busy_timeout on migration database: %w", err)
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("error accessing embedded migrations: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("error creating migration source: %w", err)
	}
	dbDriver, err := sqlite3.WithInstance(migrationDB, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("error creating migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("error creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error running migrations: %w", err)
	}
	log.Debug("database migrations completed")
	return nil
}

func setPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA journal_size_limit = 5000000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -16000",
		"PRAGMA mmap_size = 0", // memory-mapped I/O misbehaves with modernc.org/sqlite
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed executing %q: %w", pragma, err)
		}
	}
	return nil
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
