package executive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flox/flox-activations/internal/activations"
	"github.com/flox/flox-activations/internal/services"
)

// Teardown performs the idempotent cleanup sequence of spec.md §4.3/§4.4:
// stop the service supervisor, remove this activation from the registry
// (performing whole-registry teardown if it was the last one), and remove
// the runtime-state directory. It may legally be invoked twice — by the
// executive, by the watchdog, or by both — and every step tolerates
// already-done work (R2).
func Teardown(data ActivationData, processComposeStarted bool, log logFunc) error {
	if processComposeStarted && services.SocketExists(data.ServicesSocket) {
		log.Logf("stopping process-compose")
		if err := services.Down(data.ServicesSocket); err != nil {
			log.Logf("failed to stop process-compose: %v (continuing)", err)
		}
	}

	registryPath := activations.RegistryPath(data.RuntimeDir, data.Env)
	if err := removeFromRegistry(registryPath, data.ActivationID, log); err != nil {
		log.Logf("failed to remove activation from registry: %v", err)
	}

	if err := os.RemoveAll(data.ActivationStateDir); err != nil {
		log.Logf("failed to remove activation state dir: %v", err)
		return fmt.Errorf("remove activation state dir: %w", err)
	}
	return nil
}

// logFunc is the minimal logging capability Teardown needs, satisfied by
// *LogWriter in production and a fake in tests.
type logFunc interface {
	Logf(format string, args ...any)
}

// CleanupStartState removes the runtime-state directory for every start_id
// in startIDs, stopping any process-compose instance still bound to its
// services socket first. This is the ownerless counterpart to Teardown's own
// ActivationStateDir removal: spec.md §4.1 requires that pruning an
// activation also removes the runtime-state directories of every start_id it
// drops, even when no executive or watchdog survives to run Teardown itself
// (e.g. a bare `flox-activations prune` invocation after a crash). Every
// step is best-effort: failures are logged, never fatal, matching Teardown's
// own tolerance of partial prior cleanup.
func CleanupStartState(runtimeDir, envPath string, startIDs []string, log logFunc) {
	for _, startID := range startIDs {
		stateDir := activations.StartStateDir(runtimeDir, envPath, startID)

		socket := services.DefaultSocketPath(stateDir)
		if services.SocketExists(socket) {
			if err := services.Down(socket); err != nil {
				log.Logf("failed to stop process-compose for start %s: %v (continuing)", startID, err)
			}
		}

		if err := os.RemoveAll(stateDir); err != nil {
			log.Logf("failed to remove runtime state dir %s: %v", stateDir, err)
		}
	}
}

// removeFromRegistry removes activationID from the registry at
// registryPath. If the registry is absent, or the activation is already
// gone from a registry that still holds other activations, this is a no-op
// (idempotence per R2). If the registry is left with no activations, whether
// by this removal or by an earlier prune, the whole registry directory is
// torn down (I5).
func removeFromRegistry(registryPath, activationID string, log logFunc) error {
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		return err
	}
	if reg == nil {
		lock.Unlock()
		return nil
	}

	checked, err := reg.CheckVersion()
	if err != nil {
		lock.Unlock()
		return err
	}

	if checked.ActivationForID(activationID) == nil && !checked.IsEmpty() {
		lock.Unlock()
		return nil
	}
	checked.RemoveActivation(activationID)

	if checked.IsEmpty() {
		// Write back first so a reader racing the rename below still sees a
		// valid (empty) registry rather than a half-removed directory, then
		// perform whole-registry teardown.
		if err := activations.Write(reg, registryPath, lock); err != nil {
			return err
		}
		log.Logf("last activation removed, cleaning up registry directory")
		return activations.RemoveRegistryDir(filepath.Dir(registryPath), func(format string, args ...any) {
			log.Logf(format, args...)
		})
	}

	return activations.Write(reg, registryPath, lock)
}
