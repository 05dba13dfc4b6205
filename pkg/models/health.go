package models

import "time"

// HealthStatus is the status of one service or of the system as a whole.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ProbeStatus is the outcome of probing a single dependent service.
type ProbeStatus string

const (
	ProbeUp       ProbeStatus = "up"
	ProbeDegraded ProbeStatus = "degraded"
	ProbeDown     ProbeStatus = "down"
)

// ServiceStatus describes one probed service.
type ServiceStatus struct {
	Status         ProbeStatus `json:"status"`
	ResponseTimeMS float64     `json:"response_time_ms"`
	Detail         string      `json:"detail,omitempty"`
	CheckedAt      time.Time   `json:"checked_at"`
}

// ServiceHealth groups the per-service probe results.
type ServiceHealth struct {
	Database ServiceStatus `json:"database"`
	Backup   ServiceStatus `json:"backup"`
	API      ServiceStatus `json:"api"`
	UI       ServiceStatus `json:"ui"`
}

// RecoveryMetrics tracks recovery-objective observations derived from the
// backup subsystem.
type RecoveryMetrics struct {
	LastBackupAt    *time.Time `json:"last_backup_at,omitempty"`
	BackupAgeHours  float64    `json:"backup_age_hours"`
	LastBackupSize  int64      `json:"last_backup_size_bytes"`
	LastDurationMS  int64      `json:"last_backup_duration_ms"`
	BackupsOnDisk   int        `json:"backups_on_disk"`
	RetentionDays   int        `json:"retention_days"`
	FreshnessTarget float64    `json:"freshness_target_hours"`
}

// ApplicationHealth is the composite snapshot recomputed on every poll cycle.
// Each cycle replaces the previous snapshot.
type ApplicationHealth struct {
	Timestamp time.Time       `json:"timestamp"`
	Status    HealthStatus    `json:"status"`
	Services  ServiceHealth   `json:"services"`
	Recovery  RecoveryMetrics `json:"rto_rpo_metrics"`
}
