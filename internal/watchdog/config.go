// Package watchdog implements the independent safety net described in
// spec.md §4.4: a sentinel process, detached into its own session, that
// guarantees activation cleanup even if the executive dies abnormally.
package watchdog

// Config mirrors the original implementation's Cli struct
// (original_source/cli/flox-watchdog/src/lib.rs).
type Config struct {
	// Env is the environment path this watchdog guards.
	Env string
	// RuntimeDir is FLOX_RUNTIME_DIR.
	RuntimeDir string
	// ActivationID is the activation this watchdog is responsible for.
	ActivationID string
	// ActivationStateDir is the per-start_id runtime-state directory to
	// remove during cleanup.
	ActivationStateDir string
	// ServicesSocket is the process-compose Unix socket path, checked for
	// existence before attempting shutdown.
	ServicesSocket string
	// LogDir is where per-activation watchdog/executive logs live; the
	// log-GC goroutine scans it.
	LogDir string
	// ExecutivePID is the pid of the executive that spawned this watchdog.
	// 0 means unknown (e.g. an older caller, or a manually-started
	// watchdog in tests), in which case the exit watch is skipped.
	ExecutivePID int
}
