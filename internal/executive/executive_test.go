package executive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flox/flox-activations/internal/activations"
)

type fakeLog struct{ lines []string }

func (f *fakeLog) Logf(format string, args ...any) {
	f.lines = append(f.lines, format)
}

func writeRegistry(t *testing.T, path string, reg *activations.Registry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(reg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// R2: teardown may be invoked twice; the second invocation is a no-op.
func TestTeardownIsIdempotent(t *testing.T) {
	runtimeDir := t.TempDir()
	envPath := "/some/env"
	stateDir := t.TempDir()

	registryPath := activations.RegistryPath(runtimeDir, envPath)
	writeRegistry(t, registryPath, &activations.Registry{
		Version: activations.SchemaVersion,
		Activations: []activations.Activation{
			{ID: "A", StorePath: "/S", Ready: true, StartID: "start-A"},
		},
	})

	data := ActivationData{
		RuntimeDir:         runtimeDir,
		Env:                envPath,
		ActivationID:       "A",
		ActivationStateDir: stateDir,
		ServicesSocket:     filepath.Join(t.TempDir(), "services.sock"),
	}

	log := &fakeLog{}
	require.NoError(t, Teardown(data, false, log))

	_, err := os.Stat(registryPath)
	assert.True(t, os.IsNotExist(err), "whole registry dir should be removed once empty")
	_, err = os.Stat(stateDir)
	assert.True(t, os.IsNotExist(err))

	// Second call: registry and state dir are already gone, everything is a
	// no-op, and it still returns success.
	require.NoError(t, Teardown(data, false, log))
}

func TestTeardownLeavesOtherActivationsIntact(t *testing.T) {
	runtimeDir := t.TempDir()
	envPath := "/some/env"

	registryPath := activations.RegistryPath(runtimeDir, envPath)
	writeRegistry(t, registryPath, &activations.Registry{
		Version: activations.SchemaVersion,
		Activations: []activations.Activation{
			{ID: "A", StorePath: "/S1", Ready: true, StartID: "start-A"},
			{ID: "B", StorePath: "/S2", Ready: true, StartID: "start-B"},
		},
	})

	data := ActivationData{
		RuntimeDir:         runtimeDir,
		Env:                envPath,
		ActivationID:       "A",
		ActivationStateDir: t.TempDir(),
		ServicesSocket:     filepath.Join(t.TempDir(), "services.sock"),
	}

	log := &fakeLog{}
	require.NoError(t, Teardown(data, false, log))

	reg, lock, err := activations.Read(registryPath)
	require.NoError(t, err)
	defer lock.Unlock()
	require.NotNil(t, reg)
	assert.Len(t, reg.Activations, 1)
	assert.Equal(t, "B", reg.Activations[0].ID)
}

func TestEventCoordinatorInjectForTest(t *testing.T) {
	coord := NewEventCoordinator(filepath.Join(t.TempDir(), "activations.json"))
	coord.InjectForTest(Event{Kind: EventTerminationSignal})

	ev := <-coord.Events()
	assert.Equal(t, EventTerminationSignal, ev.Kind)
}
