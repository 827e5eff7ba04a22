package watchdog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flox/flox-activations/internal/activations"
)

type testLog struct{ lines []string }

func (l *testLog) Logf(format string, args ...any) { l.lines = append(l.lines, format) }

func writeRegistry(t *testing.T, path string, reg *activations.Registry) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data, err := json.Marshal(reg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// Grounded on the original's terminates_on_shutdown_flag test: setting the
// terminate flag causes runInner to return without running cleanup.
func TestRunInnerTerminatesOnTerminateFlag(t *testing.T) {
	runtimeDir := t.TempDir()
	cfg := Config{RuntimeDir: runtimeDir, Env: "/env", ActivationID: "A"}

	flags := &shutdownFlags{}
	flags.terminate.Store(true)

	sigchld := make(chan os.Signal)
	log := &testLog{}

	err := runInner(cfg, flags, sigchld, log)
	require.Error(t, err)
}

// Grounded on the original's terminates_on_signal_handler_flag /
// cleanup-flag tests: setting the cleanup flag runs the teardown sequence.
func TestRunInnerCleansUpOnCleanupFlag(t *testing.T) {
	runtimeDir := t.TempDir()
	envPath := "/env"
	registryPath := activations.RegistryPath(runtimeDir, envPath)
	writeRegistry(t, registryPath, &activations.Registry{
		Version: activations.SchemaVersion,
		Activations: []activations.Activation{
			{ID: "A", StorePath: "/S", Ready: true, StartID: "start-A"},
		},
	})

	cfg := Config{
		RuntimeDir:         runtimeDir,
		Env:                envPath,
		ActivationID:       "A",
		ActivationStateDir: t.TempDir(),
		ServicesSocket:     filepath.Join(t.TempDir(), "services.sock"),
	}

	flags := &shutdownFlags{}
	flags.cleanUp.Store(true)

	sigchld := make(chan os.Signal)
	log := &testLog{}

	require.NoError(t, runInner(cfg, flags, sigchld, log))

	_, err := os.Stat(registryPath)
	assert.True(t, os.IsNotExist(err))
}

// Grounded on the original's terminates_when_all_pids_terminate test: once
// the registry shows no attachments for our activation, runInner tears
// down even without any flag being set.
func TestRunInnerCleansUpWhenAttachmentsEmpty(t *testing.T) {
	runtimeDir := t.TempDir()
	envPath := "/env"
	registryPath := activations.RegistryPath(runtimeDir, envPath)
	writeRegistry(t, registryPath, &activations.Registry{
		Version:     activations.SchemaVersion,
		Activations: []activations.Activation{{ID: "A", StorePath: "/S", Ready: true, StartID: "start-A"}},
	})

	cfg := Config{
		RuntimeDir:         runtimeDir,
		Env:                envPath,
		ActivationID:       "A",
		ActivationStateDir: t.TempDir(),
		ServicesSocket:     filepath.Join(t.TempDir(), "services.sock"),
	}

	flags := &shutdownFlags{}
	sigchld := make(chan os.Signal)
	log := &testLog{}

	done := make(chan error, 1)
	go func() { done <- runInner(cfg, flags, sigchld, log) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runInner did not tear down an already-empty activation in time")
	}
}

func TestShutdownFlagsAreIndependent(t *testing.T) {
	var f shutdownFlags
	assert.False(t, f.cleanUp.Load())
	assert.False(t, f.terminate.Load())

	f.cleanUp.Store(true)
	assert.True(t, f.cleanUp.Load())
	assert.False(t, f.terminate.Load())

	var swapped atomic.Bool
	swapped.Store(true)
	assert.True(t, swapped.Load())
}
