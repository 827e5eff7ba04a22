// Package executive implements the per-activation supervisor: it runs the
// activation script, signals the original parent on readiness, owns the
// service supervisor, and reacts to attach/detach events to decide when to
// tear down (spec.md §4.3).
package executive

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/flox/flox-activations/internal/activations"
	"github.com/flox/flox-activations/internal/envreplay"
	"github.com/flox/flox-activations/internal/procwatch"
	"github.com/flox/flox-activations/internal/services"
)

// pollInterval is the floor for operations that must poll (spec.md §4.3
// "Polling floor"): no more than once per second for liveness checks.
const pollInterval = time.Second

// Run executes the full executive lifecycle described in spec.md §4.3: fork
// the activation child, wait for it, replay its environment diff, start
// services, daemonize, signal the parent, and run the event-driven
// monitoring loop until teardown.
func Run(data ActivationData) error {
	cmd := exec.Command(data.ActivateBin,
		"--env", data.Env,
		"--shell", data.Shell,
		"--mode", data.Mode,
		"--activation-state-dir", data.ActivationStateDir,
	)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("exec activation script: %w", err)
	}

	// Create the log writer immediately after forking so every subsequent
	// step is captured, even if waitpid itself fails.
	log, err := NewLogWriter(data.LogDir, data.ActivationID, data.Env)
	if err != nil {
		return fmt.Errorf("create executive log writer: %w", err)
	}
	defer log.Close()

	log.Logf("waiting for activation child pid %d", cmd.Process.Pid)
	waitErr := cmd.Wait()
	if waitErr != nil {
		log.Logf("activation child exited with error: %v", waitErr)
	} else {
		log.Logf("activation child %d exited cleanly", cmd.Process.Pid)
	}

	if err := markReady(data); err != nil {
		log.Logf("failed to mark activation ready: %v", err)
	} else {
		log.Logf("activation %s marked ready", data.ActivationID)
	}

	log.Log("replaying environment from activation")
	startEnvPath := filepath.Join(data.ActivationStateDir, "start.env.json")
	endEnvPath := filepath.Join(data.ActivationStateDir, "end.env.json")
	if err := envreplay.Replay(startEnvPath, endEnvPath); err != nil {
		log.Logf("failed to replay environment: %v (continuing)", err)
	}

	processComposeStarted := maybeStartServices(data, log)

	log.Log("daemonizing: closing stdin/stdout/stderr")
	closeStdio(log)

	title := "executive: " + strings.Join(data.OriginalArgv, " ")
	if err := setProcTitle(title); err != nil {
		log.Logf("failed to set process title: %v", err)
	}

	if data.ParentPID > 0 {
		log.Logf("sending SIGUSR1 to parent %d", data.ParentPID)
		if err := syscall.Kill(data.ParentPID, syscall.SIGUSR1); err != nil {
			log.Logf("failed to signal parent: %v", err)
		}
	}

	return monitoringLoop(data, processComposeStarted, log)
}

// markReady flips the activation's registry `ready` bit, exactly once, right
// after the activation script finishes (spec.md §4.1/§4.3: an Activation
// becomes ready "when the executive finishes running the activation
// script"). Until this happens, StartOrAttach can never see Ready == true
// for this store_path, so every concurrent start-or-attach starts a brand
// new Activation instead of attaching (I6, scenarios S2/S3) — this is a
// distinct, registry-level signal from the SIGUSR1 sent to the parent
// below, which only tells one specific process it may proceed.
func markReady(data ActivationData) error {
	registryPath := activations.RegistryPath(data.RuntimeDir, data.Env)
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		return err
	}
	if reg == nil {
		lock.Unlock()
		return fmt.Errorf("no registry at %s", registryPath)
	}

	checked, err := reg.CheckVersion()
	if err != nil {
		lock.Unlock()
		return err
	}
	if err := checked.SetReady(data.ActivationID); err != nil {
		lock.Unlock()
		return err
	}

	return activations.Write(reg, registryPath, lock)
}

// maybeStartServices starts the service supervisor if the environment
// declares a service-config.yaml. This must happen before daemonization so
// the supervisor inherits a real controlling context (spec.md §4.3 step 5).
func maybeStartServices(data ActivationData, log *LogWriter) bool {
	configPath := services.ConfigPath(data.Env)
	if configPath == "" {
		log.Log("no service-config.yaml found, skipping process-compose startup")
		return false
	}

	log.Logf("starting process-compose daemon with config: %s", configPath)
	var toStart []string
	if data.StartServices {
		toStart = data.ServicesToStart
	}
	if err := services.Start(configPath, data.ServicesSocket, toStart); err != nil {
		log.Logf("failed to start process-compose: %v", err)
		return false
	}
	return true
}

// closeStdio closes fds 0, 1, and 2, matching the original's literal
// close(0)/close(1)/close(2) daemonization step. Errors are logged, not
// fatal: a failed close here does not threaten any invariant in §3.
func closeStdio(log *LogWriter) {
	for _, fd := range []int{0, 1, 2} {
		if err := syscall.Close(fd); err != nil {
			log.Logf("failed to close fd %d: %v", fd, err)
		}
	}
}

// monitoringLoop is the event-driven core of spec.md §4.3: a single event
// channel fed by per-pid watchers, a registry filesystem watcher, and a
// signal-translation goroutine. It runs until every attachment for this
// activation is gone, at which point it falls through to teardown.
func monitoringLoop(data ActivationData, processComposeStarted bool, log *LogWriter) error {
	registryPath := activations.RegistryPath(data.RuntimeDir, data.Env)
	coord := NewEventCoordinator(registryPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := coord.StartRegistryWatcher(); err != nil {
		log.Logf("failed to start registry watcher: %v (falling back to poll-only)", err)
	} else {
		defer coord.StopRegistryWatcher()
	}
	coord.SpawnSignalHandler(ctx)

	if err := seedWatchers(coord, ctx, registryPath, data.ActivationID, log); err != nil {
		log.Logf("failed to seed initial watchers: %v", err)
	}

	log.Logf("starting monitoring loop for activation %s", data.ActivationID)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	terminateNoCleanup := false

loop:
	for {
		select {
		case ev := <-coord.Events():
			switch ev.Kind {
			case EventProcessExited:
				log.Logf("observed pid %d exit", ev.PID)
				done, err := pruneAndMaybeTeardown(data.RuntimeDir, data.Env, registryPath, data.ActivationID, log)
				if err != nil {
					log.Logf("prune failed: %v", err)
					continue
				}
				if done {
					break loop
				}
			case EventStateFileChanged:
				if err := seedWatchers(coord, ctx, registryPath, data.ActivationID, log); err != nil {
					log.Logf("failed to reseed watchers: %v", err)
				}
			case EventSigChld:
				ReapChildren()
			case EventTerminationSignal:
				log.Log("termination signal received; exiting without cleanup, watchdog will compensate")
				terminateNoCleanup = true
				break loop
			case EventStartServices:
				if !processComposeStarted {
					processComposeStarted = maybeStartServices(data, log)
				}
			}
		case <-ticker.C:
			done, err := pruneAndMaybeTeardown(data.RuntimeDir, data.Env, registryPath, data.ActivationID, log)
			if err != nil {
				log.Logf("periodic prune failed: %v", err)
				continue
			}
			if done {
				break loop
			}
		}
	}

	if terminateNoCleanup {
		return nil
	}

	if err := Teardown(data, processComposeStarted, log); err != nil {
		log.Logf("teardown error: %v", err)
	}
	log.Shutdown(data.ActivationID)
	return nil
}

// seedWatchers reads the registry under lock and ensures a watcher is
// running for every currently-attached pid of this activation. Idempotent:
// EnsureMonitoringPIDs is a no-op for already-known pids (R3).
func seedWatchers(coord *EventCoordinator, ctx context.Context, registryPath, activationID string, log *LogWriter) error {
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if reg == nil {
		return nil
	}
	checked, err := reg.CheckVersion()
	if err != nil {
		return err
	}
	a := checked.ActivationForID(activationID)
	if a == nil {
		return nil
	}

	pids := a.AttachedPIDs()
	expirations := make(map[int]*time.Time, len(a.Attachments))
	for _, at := range a.Attachments {
		expirations[at.PID] = at.Expiration
	}
	coord.EnsureMonitoringPIDs(ctx, pids, expirations)
	return nil
}

// pruneAndMaybeTeardown prunes dead pids from the registry under lock; if
// this activation's attachment list is now empty, it reports done=true so
// the caller proceeds to teardown. Mirrors check_registry_pids. Prune runs
// over every activation in the registry, not just this one, so any other
// activation's start_ids it drops are cleaned up here too (spec.md §4.1).
func pruneAndMaybeTeardown(runtimeDir, envPath, registryPath, activationID string, log *LogWriter) (done bool, err error) {
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
	if modified {
		log.Logf("pruned dead pids from activation %s", activationID)
	}
	if len(removedStartIDs) > 0 {
		CleanupStartState(runtimeDir, envPath, removedStartIDs, log)
	}

	a = checked.ActivationForID(activationID)
	if a == nil || len(a.Attachments) == 0 {
		if a != nil {
			checked.RemoveActivation(activationID)
		}
		if err := activations.Write(reg, registryPath, lock); err != nil {
			return false, err
		}
		return true, nil
	}

	if modified {
		if err := activations.Write(reg, registryPath, lock); err != nil {
			return false, err
		}
	} else {
		lock.Unlock()
	}
	return false, nil
}
