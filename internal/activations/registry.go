package activations

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	registryFileName = "activations.json"
	lockFileName      = "activations.lock"
)

// envHash derives the stable directory component used to namespace a
// runtime directory by environment path, matching spec.md §6's
// "<runtime_dir>/<env_hash>/activations.json" layout. Two different
// environment paths must never collide; the same path must always resolve
// to the same directory across processes and across runs.
func envHash(envPath string) string {
	sum := sha256.Sum256([]byte(envPath))
	return hex.EncodeToString(sum[:])[:16]
}

// RegistryDir returns the per-environment directory holding
// activations.json and activations.lock.
func RegistryDir(runtimeDir, envPath string) string {
	return filepath.Join(runtimeDir, envHash(envPath))
}

// RegistryPath returns the path to activations.json for envPath.
func RegistryPath(runtimeDir, envPath string) string {
	return filepath.Join(RegistryDir(runtimeDir, envPath), registryFileName)
}

// LockPath returns the path to activations.lock for envPath.
func LockPath(runtimeDir, envPath string) string {
	return filepath.Join(RegistryDir(runtimeDir, envPath), lockFileName)
}

// ActivationStateDirPath returns the per-start_id runtime state directory
// root for envPath: <runtime_dir>/<env_hash>/
func ActivationStateDirPath(runtimeDir, envPath string) string {
	return RegistryDir(runtimeDir, envPath)
}

// StartStateDir returns the transient-file directory for one start_id.
func StartStateDir(runtimeDir, envPath, startID string) string {
	return filepath.Join(ActivationStateDirPath(runtimeDir, envPath), "starts", startID)
}

// Lock is a held advisory lock on activations.lock. It must be released
// (via Unlock) after the caller finishes its read-modify-write cycle;
// holders must not perform network I/O while holding it (spec.md §4.1
// "Locking granularity"). Local cleanup does run under it: the prune paths
// call CleanupStartState, which may wait on `process-compose down`.
type Lock struct {
	fl *flock.Flock
}

// Unlock releases the advisory lock.
func (l *Lock) Unlock() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}

// Read acquires the advisory lock (blocking) and reads activations.json.
// Returns (nil, lock, nil) if the file does not exist — an absent registry
// is not an error, it just means no activation has ever started for this
// environment. The caller owns the lock until it calls Unlock.
func Read(registryPath string) (*Registry, *Lock, error) {
	dir := filepath.Dir(registryPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create registry directory %s: %w", dir, err)
	}

	lockPath := filepath.Join(dir, lockFileName)
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return nil, nil, fmt.Errorf("acquire lock %s: %w", lockPath, err)
	}
	lock := &Lock{fl: fl}

	data, err := os.ReadFile(registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lock, nil
		}
		lock.Unlock()
		return nil, nil, fmt.Errorf("read %s: %w", registryPath, err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("parse %s: %w (registry is authoritative, refusing to auto-repair)", registryPath, err)
	}

	return &reg, lock, nil
}

// Write serializes reg to registryPath via the atomic temp-file+rename
// pattern (spec.md I2), then releases lock. The lock must be the one
// returned by Read for the same registryPath.
func Write(reg *Registry, registryPath string, lock *Lock) error {
	defer lock.Unlock()

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	if err := WriteAtomically(registryPath, data); err != nil {
		return fmt.Errorf("write %s: %w", registryPath, err)
	}
	return nil
}

// WriteAtomically writes data to path by creating a temp file in the same
// directory, fsyncing it, and renaming it over path. Used by the registry
// writer.
func WriteAtomically(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file in %s: %w", dir, err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// RemoveRegistryDir performs the whole-registry teardown from spec.md I5:
// rename the containing directory to a pid-suffixed name before unlinking
// its contents, so no concurrent reader sees a half-removed directory.
//
// The two registry files are removed one by one and the starts/
// subdirectory recursively, then the directory itself is removed. Failures
// on those entries are reported through logf and are not fatal (cleanup is
// best-effort); only a failed rename or a failed final rmdir is returned.
func RemoveRegistryDir(registryDir string, logf func(string, ...any)) error {
	removeDir := fmt.Sprintf("%s.remove.%d", registryDir, os.Getpid())
	if err := os.Rename(registryDir, removeDir); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", registryDir, removeDir, err)
	}

	for _, name := range []string{registryFileName, lockFileName} {
		p := filepath.Join(removeDir, name)
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logf("failed to remove %s: %v", p, err)
		}
	}

	// Best-effort: also sweep the starts/ subdirectory if present.
	startsDir := filepath.Join(removeDir, "starts")
	if err := os.RemoveAll(startsDir); err != nil {
		logf("failed to remove %s: %v", startsDir, err)
	}

	if err := os.Remove(removeDir); err != nil {
		logf("failed to remove registry directory %s: %v", removeDir, err)
		return err
	}
	return nil
}
