//go:build integration

// Integration tests for flox-activations + flox-watchdog.
//
// Each test builds both binaries once (via TestMain), creates an isolated
// FLOX_RUNTIME_DIR temp directory, injects a trivial activate script so no
// real Flox environment is required, and runs the real compiled binaries end
// to end.
//
// Run with:
//
//	go test -tags=integration -v ./test/
//	go test -tags=integration -run TestLifecycle -v ./test/
package integration_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	activationsBin string
	watchdogBin    string
)

func TestMain(m *testing.M) {
	root := moduleRoot()

	tmpBin, err := os.MkdirTemp("", "flox-activations-inttest-bin-*")
	if err != nil {
		panic("MkdirTemp: " + err.Error())
	}
	defer os.RemoveAll(tmpBin)

	activationsBin = filepath.Join(tmpBin, "flox-activations")
	watchdogBin = filepath.Join(tmpBin, "flox-watchdog")

	for _, b := range []struct{ out, pkg string }{
		{activationsBin, "./cmd/flox-activations"},
		{watchdogBin, "./cmd/flox-watchdog"},
	} {
		cmd := exec.Command("go", "build", "-o", b.out, b.pkg)
		cmd.Dir = root
		cmd.Stdout = os.Stderr
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			panic("build " + b.pkg + ": " + err.Error())
		}
	}

	os.Exit(m.Run())
}

func moduleRoot() string {
	abs, err := filepath.Abs("..")
	if err != nil {
		panic(err)
	}
	return abs
}

// fakeActivateScript accepts the same flags the executive invokes the
// activate binary with, writes an empty environment diff pair, and exits
// immediately — standing in for the real `activate` shell bootstrap.
const fakeActivateScript = `#!/bin/sh
state_dir=""
while [ $# -gt 0 ]; do
  case "$1" in
    --activation-state-dir) state_dir="$2"; shift 2 ;;
    *) shift ;;
  esac
done
echo '{}' > "$state_dir/start.env.json"
echo '{}' > "$state_dir/end.env.json"
exit 0
`

type testEnv struct {
	t          *testing.T
	runtimeDir string
	binDir     string
	env        string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	runtimeDir := t.TempDir()
	binDir := t.TempDir()

	script := filepath.Join(binDir, "activate")
	require.NoError(t, os.WriteFile(script, []byte(fakeActivateScript), 0o755))

	return &testEnv{
		t:          t,
		runtimeDir: runtimeDir,
		binDir:     binDir,
		env:        filepath.Join(t.TempDir(), "env"),
	}
}

func (e *testEnv) envVars() []string {
	return append(os.Environ(),
		"FLOX_RUNTIME_DIR="+e.runtimeDir,
		"PATH="+e.binDir+":"+os.Getenv("PATH"),
	)
}

func (e *testEnv) run(args ...string) (string, error) {
	cmd := exec.Command(activationsBin, args...)
	cmd.Env = e.envVars()
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

func (e *testEnv) runOK(args ...string) string {
	e.t.Helper()
	out, err := e.run(args...)
	require.NoError(e.t, err, "flox-activations %v\n%s", args, out)
	return out
}

// parseStartOrAttach extracts FLOX_ACTIVATION_ID from start-or-attach's
// export-style output.
func parseStartOrAttach(out string) (id string) {
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "FLOX_ACTIVATION_ID="); ok {
			id = v
		}
	}
	return id
}

// TestStartCreatesActivation exercises start-or-attach with a real attaching
// pid (this test process's own pid, always alive) and checks that `list`
// reports exactly one activation.
func TestStartCreatesActivation(t *testing.T) {
	env := newTestEnv(t)

	out := env.runOK("start-or-attach",
		"--env", env.env,
		"--store-path", "/store/a",
		"--pid", strconv.Itoa(os.Getpid()),
		"--activate-bin", filepath.Join(env.binDir, "activate"),
	)
	id := parseStartOrAttach(out)
	assert.NotEmpty(t, id)

	list, err := env.run("list", "--env", env.env)
	require.NoError(t, err)
	assert.Contains(t, list, "/store/a")

	// Pause briefly before returning. The forked executive keeps watching
	// this test process's pid and tears the activation down only once that
	// process has exited.
	time.Sleep(200 * time.Millisecond)
}

// TestAttachJoinsReadyActivation verifies that once an activation is marked
// ready, attach-exists for the same store path reports that activation's id,
// the signal a later caller uses to attach instead of starting a new one.
func TestAttachJoinsReadyActivation(t *testing.T) {
	env := newTestEnv(t)

	out := env.runOK("start-or-attach",
		"--env", env.env,
		"--store-path", "/store/b",
		"--pid", strconv.Itoa(os.Getpid()),
		"--activate-bin", filepath.Join(env.binDir, "activate"),
	)
	firstID := parseStartOrAttach(out)
	require.NotEmpty(t, firstID)

	env.runOK("set-ready", "--env", env.env, "--id", firstID)

	exists, err := env.run("attach-exists", "--env", env.env, "--store-path", "/store/b")
	require.NoError(t, err)
	assert.Equal(t, firstID, exists)

	time.Sleep(200 * time.Millisecond)
}

// TestPruneRemovesDeadAttachment starts an activation attached to a pid that
// is guaranteed already dead, then checks prune removes it.
func TestPruneRemovesDeadAttachment(t *testing.T) {
	env := newTestEnv(t)

	deadPID := spawnAndWaitDead(t)

	env.runOK("start-or-attach",
		"--env", env.env,
		"--store-path", "/store/c",
		"--pid", strconv.Itoa(deadPID),
		"--activate-bin", filepath.Join(env.binDir, "activate"),
	)

	env.runOK("prune", "--env", env.env)

	list, err := env.run("list", "--env", env.env)
	require.NoError(t, err)
	assert.NotContains(t, list, "/store/c")
}

// spawnAndWaitDead starts and reaps a short-lived child, returning a pid
// that is guaranteed to no longer be running.
func spawnAndWaitDead(t *testing.T) int {
	t.Helper()
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	_ = cmd.Wait()
	return pid
}
