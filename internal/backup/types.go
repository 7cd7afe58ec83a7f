// Package backup provides automated database backup and restore functionality
// with a snapshot-count and maximum-age retention policy and integrity
// verification.
package backup

import (
	"context"
	"time"
)

// Backuper is the narrow interface maintenance passes depend on to
// snapshot the database directory before a destructive write, without
// pulling in the full scheduling/retention surface of BackupService.
type Backuper interface {
	BackupNow(ctx context.Context) (*BackupResult, error)
}

// BackupConfig holds backup service configuration.
type BackupConfig struct {
	// DBPath is the path to the SQLite database file to backup
	DBPath string

	// BackupDir is the directory where backups will be stored
	BackupDir string

	// Interval is the duration between automated backups (default: 1 hour)
	Interval time.Duration

	// Retention bounds how many snapshots are kept and how old they may get
	Retention RetentionPolicy

	// VerifyBackups enables integrity checking after each backup (off unless set)
	VerifyBackups bool
}

// RetentionPolicy bounds how many pre-write snapshots accumulate under
// BackupDir. Maintenance takes one snapshot per destructive pass
// (prune, consolidate), so unlike a continuously-running database
// backup schedule this only ever needs a flat cap, not calendar tiers.
type RetentionPolicy struct {
	// MaxSnapshots is the number of snapshots to keep regardless of
	// age (default: 10).
	MaxSnapshots int

	// MaxAgeDays unconditionally drops snapshots older than this even
	// if MaxSnapshots hasn't been reached, mirroring the archive's
	// 30-day default expiry (default: 30; 0 disables the age cap).
	MaxAgeDays int
}

// BackupInfo contains metadata about a backup file.
type BackupInfo struct {
	// Path is the full path to the backup file
	Path string

	// Timestamp is when the backup was created
	Timestamp time.Time

	// Size is the backup file size in bytes
	Size int64

	// Verified indicates if the backup passed integrity check
	Verified bool
}

// BackupResult contains the result of a backup operation.
type BackupResult struct {
	// Path is the path to the created backup file
	Path string

	// Duration is how long the backup took
	Duration time.Duration

	// Size is the backup file size in bytes
	Size int64

	// Verified indicates if the backup was verified successfully
	Verified bool

	// Error is any error that occurred during backup
	Error error
}

// HealthStatus represents the health of the backup service.
type HealthStatus struct {
	// Status is the overall health status: "healthy", "warning", or "error"
	Status string

	// Message provides additional context about the status
	Message string

	// LastBackup is when the last successful backup completed
	LastBackup time.Time

	// NextBackup is when the next backup is scheduled
	NextBackup time.Time

	// TotalBackups is the number of backups currently stored
	TotalBackups int

	// BackupDir is the backup storage directory
	BackupDir string

	// DiskSpaceUsed is total bytes used by all backups
	DiskSpaceUsed int64
}
