package watchdog

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/flox/flox-activations/internal/activations"
	"github.com/flox/flox-activations/internal/executive"
	"github.com/flox/flox-activations/internal/procwatch"
)

// waitLoopInterval is the watchdog's wait-loop cadence (spec.md §4.4): 100
// ms, trading responsiveness against registry-lock contention with the
// executive.
const waitLoopInterval = 100 * time.Millisecond

// Run is the watchdog entrypoint: ensure session leadership, install
// signal flags, start the heartbeat and log-GC goroutines, then run the
// wait loop until cleanup is owed.
func Run(cfg Config) error {
	if err := ensureSessionLeader(); err != nil {
		return fmt.Errorf("ensure session leader: %w", err)
	}
	// Non-fatal: on macOS this is always a no-op, and even on Linux a
	// failure here only weakens defense-in-depth, it does not threaten any
	// invariant in spec.md §3.
	_ = setParentDeathSignal()

	flags := &shutdownFlags{}
	sigchld, stopSignals := installSignalHandlers(flags)
	defer stopSignals()

	log, err := executive.NewLogWriter(cfg.LogDir, cfg.ActivationID, cfg.Env)
	if err != nil {
		return fmt.Errorf("create watchdog log writer: %w", err)
	}
	defer log.Close()

	log.Logf("watchdog on duty, pid=%d", os.Getpid())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spawnHeartbeat(ctx, log)
	spawnLogGC(ctx, cfg.LogDir, log)
	spawnExecutiveExitWatch(ctx, cfg.ExecutivePID, flags, log)

	return runInner(cfg, flags, sigchld, log)
}

// runInner is the testable core of the wait loop: it is parameterized over
// the shutdown flags and the SIGCHLD channel so tests can drive it with
// synthetic flags instead of real signals, mirroring the original
// implementation's run_inner split (lib.rs).
func runInner(cfg Config, flags *shutdownFlags, sigchld <-chan os.Signal, log logFunc) error {
	registryPath := activations.RegistryPath(cfg.RuntimeDir, cfg.Env)

	ticker := time.NewTicker(waitLoopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigchld:
			reapChildren()
			continue
		default:
		}

		if flags.cleanUp.Load() {
			log.Logf("cleanup requested")
			return cleanup(cfg, log)
		}
		if flags.terminate.Load() {
			log.Logf("terminate flag set, aborting without cleanup (activation leak, watchdog compensates will not run)")
			return fmt.Errorf("watchdog aborted by termination signal without cleanup")
		}

		empty, err := pruneAndCheckEmpty(cfg.RuntimeDir, cfg.Env, registryPath, cfg.ActivationID, log)
		if err != nil {
			log.Logf("registry check failed: %v", err)
		} else if empty {
			log.Logf("no attachments remain for activation %s", cfg.ActivationID)
			return cleanup(cfg, log)
		}

		select {
		case <-ticker.C:
		case <-sigchld:
			reapChildren()
		}
	}
}

// spawnExecutiveExitWatch watches the spawning executive's pid and sets the
// cleanUp flag as soon as it exits, for whatever reason (spec.md §4.4 step
// 4: the watchdog must guarantee cleanup even if the executive dies
// abnormally). This is the cross-platform backbone of that guarantee:
// Linux additionally gets prctl(PR_SET_PDEATHSIG) as belt and braces
// (session_linux.go), but platforms without a parent-death signal (darwin)
// rely on this alone, via procwatch's kqueue tier. A zero pid (unknown
// spawning executive, e.g. an older or manually-invoked caller) skips the
// watch entirely.
func spawnExecutiveExitWatch(ctx context.Context, executivePID int, flags *shutdownFlags, log logFunc) {
	if executivePID <= 0 {
		return
	}
	go func() {
		<-procwatch.AwaitExit(ctx, executivePID, nil)
		if ctx.Err() != nil {
			return
		}
		log.Logf("spawning executive pid %d no longer running, requesting cleanup", executivePID)
		flags.cleanUp.Store(true)
	}()
}

// pruneAndCheckEmpty reads the registry under lock, prunes dead pids,
// writes back if modified, and reports whether this activation's
// attachment list is now empty (or the activation/registry is already
// gone). Prune runs over every activation in the registry, so any start_id
// it drops — not just this activation's own — has its runtime-state
// directory removed here (spec.md §4.1).
func pruneAndCheckEmpty(runtimeDir, envPath, registryPath, activationID string, log logFunc) (empty bool, err error) {
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		return false, err
	}
	if reg == nil {
		lock.Unlock()
		return true, nil
	}

	checked, err := reg.CheckVersion()
	if err != nil {
		lock.Unlock()
		return false, err
	}

	a := checked.ActivationForID(activationID)
	if a == nil {
		lock.Unlock()
		return true, nil
	}

	removedStartIDs, modified := checked.Prune(time.Now(), procwatch.PidIsRunning)
	if len(removedStartIDs) > 0 {
		executive.CleanupStartState(runtimeDir, envPath, removedStartIDs, log)
	}
	a = checked.ActivationForID(activationID)
	nowEmpty := a == nil || len(a.Attachments) == 0

	if modified {
		if err := activations.Write(reg, registryPath, lock); err != nil {
			return false, err
		}
	} else {
		lock.Unlock()
	}
	return nowEmpty, nil
}

// cleanup runs the idempotent teardown sequence. It is identical to the
// executive's (spec.md §4.4 "Teardown"): every step tolerates already-done
// work, since either the executive or the watchdog may have performed it
// first.
func cleanup(cfg Config, log logFunc) error {
	data := executive.ActivationData{
		RuntimeDir:         cfg.RuntimeDir,
		Env:                cfg.Env,
		ActivationID:       cfg.ActivationID,
		ActivationStateDir: cfg.ActivationStateDir,
		ServicesSocket:     cfg.ServicesSocket,
	}
	// true: let Teardown's own SocketExists check decide whether there is
	// anything to shut down, since the watchdog doesn't necessarily know
	// whether the executive started process-compose.
	return executive.Teardown(data, true, log)
}
