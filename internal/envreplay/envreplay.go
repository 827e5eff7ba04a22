// Package envreplay captures the shell environment before and after an
// activation script runs and replays the difference into the executive's own
// process, so that anything started afterwards (process-compose) inherits
// the variables the activation script exported or removed.
package envreplay

import (
	"encoding/json"
	"fmt"
	"os"
)

// Snapshot is a point-in-time capture of the environment, keyed by variable
// name. It is written to start.env.json before the activation script runs
// and to end.env.json after.
type Snapshot map[string]string

// CurrentSnapshot captures os.Environ() into a Snapshot.
func CurrentSnapshot() Snapshot {
	snap := make(Snapshot)
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				snap[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	return snap
}

// WriteSnapshot writes snap to path as JSON.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// readSnapshot reads a Snapshot written by WriteSnapshot.
func readSnapshot(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return snap, nil
}

// Diff is the set of variable changes between two snapshots.
type Diff struct {
	Set    map[string]string // added or changed in end relative to start
	Unset  []string          // present in start, absent from end
}

// Compute diffs startPath against endPath. Either file not existing yields
// an error — callers treat a failed replay as non-fatal and log it, per the
// original implementation's "continue anyway - this is not fatal" handling.
func Compute(startPath, endPath string) (Diff, error) {
	start, err := readSnapshot(startPath)
	if err != nil {
		return Diff{}, err
	}
	end, err := readSnapshot(endPath)
	if err != nil {
		return Diff{}, err
	}

	d := Diff{Set: make(map[string]string)}
	for k, v := range end {
		if old, ok := start[k]; !ok || old != v {
			d.Set[k] = v
		}
	}
	for k := range start {
		if _, ok := end[k]; !ok {
			d.Unset = append(d.Unset, k)
		}
	}
	return d, nil
}

// Apply applies d to the current process's environment.
func Apply(d Diff) error {
	for k, v := range d.Set {
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("setenv %s: %w", k, err)
		}
	}
	for _, k := range d.Unset {
		if err := os.Unsetenv(k); err != nil {
			return fmt.Errorf("unsetenv %s: %w", k, err)
		}
	}
	return nil
}

// Replay reads the snapshots at startPath and endPath and applies their
// difference to the current process's environment, so that anything the
// executive starts after this call (process-compose) inherits the
// activation script's exports.
func Replay(startPath, endPath string) error {
	d, err := Compute(startPath, endPath)
	if err != nil {
		return fmt.Errorf("compute env diff: %w", err)
	}
	return Apply(d)
}

// CleanupFiles removes the four well-known per-activation env files. Missing
// files are not an error; removal failures are returned individually via
// logf so the caller can log-and-continue rather than abort cleanup.
func CleanupFiles(stateDir string, logf func(string, ...any)) {
	for _, name := range []string{"add.env", "del.env", "start.env.json", "end.env.json"} {
		path := stateDir + "/" + name
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && logf != nil {
			logf("failed to remove %s: %v", name, err)
		}
	}
}
