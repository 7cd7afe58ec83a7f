package graph

import (
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// isRecoverableWALError reports whether err looks like a transient WAL
// condition (a crashed prior process left the journal in a state SQLite
// itself cannot recover from without help), as opposed to a genuine
// schema or permissions failure.
func isRecoverableWALError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "disk I/O error") || strings.Contains(msg, "database is locked")
}

// isRecoverableWALStale reports whether path has leftover -shm/-wal files
// from a process that is no longer running. It is conservative: if lsof
// is unavailable, or anything still holds the files open, it returns
// false rather than risk deleting a live journal.
func isRecoverableWALStale(path string) bool {
	shm := path + "-shm"
	wal := path + "-wal"
	if !fileExists(shm) && !fileExists(wal) {
		return false
	}

	lsofPath, err := exec.LookPath("lsof")
	if err != nil {
		return false
	}

	out, err := exec.Command(lsofPath, "-t", path, shm, wal).Output()
	if err != nil {
		// lsof exits non-zero when nothing holds the files open.
		return true
	}
	return strings.TrimSpace(string(out)) == ""
}

func removeStaleWAL(path string, log *zap.Logger) {
	for _, suffix := range []string{"-shm", "-wal"} {
		f := path + suffix
		if fileExists(f) {
			if err := os.Remove(f); err != nil {
				log.Warn("failed to remove stale WAL artifact", zap.String("file", f), zap.Error(err))
				continue
			}
			log.Warn("removed stale WAL artifact from unclean shutdown", zap.String("file", f))
		}
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
