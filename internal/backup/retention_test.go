package backup

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeBackupFile(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("sqlite"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set mtime: %v", err)
	}
	return path
}

func TestListBackupsEmpty(t *testing.T) {
	tmpDir := t.TempDir()

	backups, err := listBackups(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected 0 backups, got %d", len(backups))
	}
}

func TestListBackupsNonexistentDirectory(t *testing.T) {
	_, err := listBackups("/nonexistent/backup/dir")
	if err == nil {
		t.Fatal("expected error for non-existent directory")
	}
}

func TestListBackupsIgnoresNonDbFiles(t *testing.T) {
	tmpDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(tmpDir, "readme.txt"), []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	dbFile := writeBackupFile(t, tmpDir, "backup.db", time.Now())

	backups, err := listBackups(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 1 {
		t.Fatalf("expected 1 backup, got %d", len(backups))
	}
	if backups[0].Path != dbFile {
		t.Errorf("expected path %s, got %s", dbFile, backups[0].Path)
	}
}

func TestListBackupsSortedNewestFirst(t *testing.T) {
	tmpDir := t.TempDir()
	now := time.Now()

	oldest := writeBackupFile(t, tmpDir, "a.db", now.Add(-2*time.Hour))
	newest := writeBackupFile(t, tmpDir, "b.db", now)
	middle := writeBackupFile(t, tmpDir, "c.db", now.Add(-1*time.Hour))

	backups, err := listBackups(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups, got %d", len(backups))
	}
	got := []string{backups[0].Path, backups[1].Path, backups[2].Path}
	want := []string{newest, middle, oldest}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestApplyRetentionKeepsMaxSnapshots(t *testing.T) {
	tmpDir := t.TempDir()
	now := time.Now()

	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writeBackupFile(t, tmpDir, time.Duration(i).String()+".db", now.Add(-time.Duration(i)*time.Hour)))
	}

	if err := applyRetention(tmpDir, RetentionPolicy{MaxSnapshots: 2}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	remaining, err := listBackups(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining backups, got %d", len(remaining))
	}
	// The two newest (index 0, 1) must survive.
	surviving := map[string]bool{remaining[0].Path: true, remaining[1].Path: true}
	if !surviving[paths[0]] || !surviving[paths[1]] {
		t.Errorf("expected newest snapshots to survive, got %v", remaining)
	}
}

func TestApplyRetentionDropsSnapshotsOlderThanMaxAge(t *testing.T) {
	tmpDir := t.TempDir()
	now := time.Now()

	fresh := writeBackupFile(t, tmpDir, "fresh.db", now.Add(-1*24*time.Hour))
	stale := writeBackupFile(t, tmpDir, "stale.db", now.Add(-40*24*time.Hour))

	if err := applyRetention(tmpDir, RetentionPolicy{MaxSnapshots: 10, MaxAgeDays: 30}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("expected stale snapshot to be removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("expected fresh snapshot to survive: %v", err)
	}
}

func TestApplyRetentionNoOpOnEmptyDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := applyRetention(tmpDir, RetentionPolicy{MaxSnapshots: 3, MaxAgeDays: 30}); err != nil {
		t.Fatalf("unexpected error on empty dir: %v", err)
	}
}

func TestCalculateDiskUsage(t *testing.T) {
	tmpDir := t.TempDir()
	writeBackupFile(t, tmpDir, "a.db", time.Now())
	writeBackupFile(t, tmpDir, "b.db", time.Now())

	usage, err := calculateDiskUsage(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if usage != int64(len("sqlite")*2) {
		t.Errorf("expected usage %d, got %d", len("sqlite")*2, usage)
	}
}
