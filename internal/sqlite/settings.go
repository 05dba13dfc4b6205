package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

const (
	getSettingQuery = `SELECT value FROM system_settings WHERE key = ?`

	upsertSettingQuery = `INSERT INTO system_settings (key, value, value_type, category, description, is_sensitive, updated_at)
VALUES (?, ?, ?, ?, ?, ?, datetime('now'))
ON CONFLICT (key) DO UPDATE SET
    value = excluded.value,
    value_type = excluded.value_type,
    category = excluded.category,
    description = excluded.description,
    is_sensitive = excluded.is_sensitive,
    updated_at = datetime('now')`

	countSettingsQuery = `SELECT COUNT(*) FROM system_settings`
)

// GetSetting retrieves a setting value.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.readDB.QueryRowContext(ctx, getSettingQuery, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, nil
}

// GetSettingWithDefault retrieves a setting value or the default when absent.
func (db *DB) GetSettingWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetBoolSetting retrieves a boolean setting value.
func (db *DB) GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// GetIntSetting retrieves an integer setting value.
func (db *DB) GetIntSetting(ctx context.Context, key string, defaultValue int) int {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// GetDurationSetting retrieves a duration setting value.
func (db *DB) GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	durationVal, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return durationVal
}

// GetTimeSetting retrieves an RFC3339 timestamp setting. Used by the backup
// runner to persist next-due times across restarts.
func (db *DB) GetTimeSetting(ctx context.Context, key string) (time.Time, error) {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time setting %s: %w", key, err)
	}
	return t, nil
}

// SetTimeSetting stores an RFC3339 timestamp setting.
func (db *DB) SetTimeSetting(ctx context.Context, key string, t time.Time) error {
	return db.UpsertSetting(ctx, key, t.UTC().Format(time.RFC3339), "time", "scheduler", "", false)
}

// CountSettings reports how many settings rows exist.
func (db *DB) CountSettings(ctx context.Context) (int, error) {
	var n int
	if err := db.readDB.QueryRowContext(ctx, countSettingsQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count settings: %w", err)
	}
	return n, nil
}

// UpsertSetting inserts or updates a setting.
func (db *DB) UpsertSetting(ctx context.Context, key, value, valueType, category, description string, isSensitive bool) error {
	_, err := db.writeDB.ExecContext(ctx, upsertSettingQuery,
		key, value, valueType, category, nullableString(description), boolToInt(isSensitive))
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", key, err)
	}
	return nil
}
