package watchdog

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// heartbeatInterval controls how often the watchdog proves liveness in its
// log file, grounded on the original implementation's hourly heartbeat
// (original_source/cli/flox-watchdog/src/logger.rs).
const heartbeatInterval = time.Hour

// logGCInterval controls how often stale per-activation log files are
// garbage-collected.
const logGCInterval = 15 * time.Minute

// logRetention is the maximum age of a per-activation log file before it is
// eligible for garbage collection.
const logRetention = 7 * 24 * time.Hour

// maxLogFiles caps the number of per-activation log files kept in logDir
// regardless of age, so a busy machine with thousands of short activations
// doesn't accumulate unbounded log files between GC passes.
const maxLogFiles = 500

// spawnHeartbeat starts a goroutine that logs a liveness line once per
// heartbeatInterval until ctx is canceled.
func spawnHeartbeat(ctx context.Context, log logFunc) {
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Logf("watchdog heartbeat, pid=%d", os.Getpid())
			}
		}
	}()
}

// spawnLogGC starts a goroutine that periodically removes per-activation
// log files in logDir older than logRetention, or beyond maxLogFiles count
// (oldest first), whichever triggers first. This is a supplemental feature
// present in the original implementation's logger.rs that spec.md's
// distillation dropped — it is in scope as an ambient log-hygiene concern.
func spawnLogGC(ctx context.Context, logDir string, log logFunc) {
	go func() {
		ticker := time.NewTicker(logGCInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := gcLogs(logDir, time.Now()); err != nil {
					log.Logf("log gc failed: %v", err)
				}
			}
		}
	}()
}

type logFunc interface {
	Logf(format string, args ...any)
}

func gcLogs(logDir string, now time.Time) error {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	type logFile struct {
		path    string
		modTime time.Time
	}
	var logs []logFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "executive-") && !strings.HasPrefix(name, "watchdog-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		logs = append(logs, logFile{path: filepath.Join(logDir, name), modTime: info.ModTime()})
	}

	sort.Slice(logs, func(i, j int) bool { return logs[i].modTime.Before(logs[j].modTime) })

	removeBefore := now.Add(-logRetention)
	excess := len(logs) - maxLogFiles

	for i, lf := range logs {
		tooOld := lf.modTime.Before(removeBefore)
		tooMany := i < excess
		if tooOld || tooMany {
			_ = os.Remove(lf.path)
		}
	}
	return nil
}
