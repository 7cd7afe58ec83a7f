package backup

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// listBackups returns every snapshot under backupDir, newest first.
func listBackups(backupDir string) ([]BackupInfo, error) {
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}

		path := filepath.Join(backupDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}

		backups = append(backups, BackupInfo{
			Path:      path,
			Timestamp: info.ModTime(),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})

	return backups, nil
}

// applyRetention prunes snapshots under backupDir to policy.MaxSnapshots,
// most-recent first, and unconditionally drops anything older than
// policy.MaxAgeDays regardless of how few snapshots remain. One
// snapshot per maintenance pass means this never needs more than a
// flat cap plus an age ceiling.
func applyRetention(backupDir string, policy RetentionPolicy) error {
	backups, err := listBackups(backupDir)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return nil
	}

	now := time.Now()
	var toDelete []string
	var kept []BackupInfo
	for _, b := range backups {
		if policy.MaxAgeDays > 0 && now.Sub(b.Timestamp) > time.Duration(policy.MaxAgeDays)*24*time.Hour {
			toDelete = append(toDelete, b.Path)
			continue
		}
		kept = append(kept, b)
	}

	if policy.MaxSnapshots > 0 && len(kept) > policy.MaxSnapshots {
		for _, b := range kept[policy.MaxSnapshots:] {
			toDelete = append(toDelete, b.Path)
		}
	}

	var lastErr error
	for _, path := range toDelete {
		if err := os.Remove(path); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return fmt.Errorf("failed to delete some backups: %w", lastErr)
	}
	return nil
}

// calculateDiskUsage calculates total bytes used by all backups.
func calculateDiskUsage(backupDir string) (int64, error) {
	backups, err := listBackups(backupDir)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, backup := range backups {
		total += backup.Size
	}

	return total, nil
}
