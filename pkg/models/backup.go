package models

import "time"

// BackupType distinguishes full dumps from incrementals.
type BackupType string

const (
	BackupFull        BackupType = "full"
	BackupIncremental BackupType = "incremental"
)

// BackupMetadata is written once alongside each completed backup run and read
// back during integrity verification and retention cleanup. Immutable after
// write.
type BackupMetadata struct {
	Timestamp   time.Time  `json:"timestamp"`
	SizeBytes   int64      `json:"size"`
	Collections []string   `json:"collections"`
	DurationMS  int64      `json:"duration"`
	Checksum    string     `json:"checksum"`
	Type        BackupType `json:"type"`
}

// BackupMetadataFile is the sidecar file name inside each backup directory.
const BackupMetadataFile = "backup-metadata.json"
