package procwatch

import (
	"context"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startProcess spawns a short-lived child the test can later kill, mirroring
// the original implementation's start_process/stop_process test helpers.
func startProcess(t *testing.T, seconds int) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", strconv.Itoa(seconds))
	require.NoError(t, cmd.Start())
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})
	return cmd
}

func TestAwaitExitFiresOnProcessExit(t *testing.T) {
	cmd := startProcess(t, 2)
	pid := cmd.Process.Pid

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := AwaitExit(ctx, pid, nil)

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("AwaitExit did not fire within 3s of process exit")
	}
}

func TestAwaitExitOnAlreadyDeadPidFiresImmediately(t *testing.T) {
	cmd := startProcess(t, 2)
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := AwaitExit(ctx, pid, nil)
	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("AwaitExit did not fire immediately for an already-dead pid")
	}
}

// S6: when the native mechanism is unavailable, the polling fallback
// (pollHandle, driven directly here) still converges. The deadline is 2x the
// poll interval, multiplied by 4 to absorb scheduling delay.
func TestAwaitExitPollingFallbackConverges(t *testing.T) {
	cmd := startProcess(t, 2)
	pid := cmd.Process.Pid

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		pollHandle{pid: pid}.Wait(ctx)
	}()

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	select {
	case <-done:
	case <-time.After(2 * pollInterval * 4):
		t.Fatal("polling fallback did not converge in time")
	}
}

func TestPidIsRunningDistinguishesLiveFromExited(t *testing.T) {
	cmd := startProcess(t, 2)
	pid := cmd.Process.Pid

	assert.True(t, PidIsRunning(pid))

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	assert.Eventually(t, func() bool {
		return !PidIsRunning(pid)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestAwaitExitRespectsExpiration(t *testing.T) {
	cmd := startProcess(t, 2)
	pid := cmd.Process.Pid
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	})

	exp := time.Now().Add(150 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	done := AwaitExit(ctx, pid, &exp)

	require.NoError(t, cmd.Process.Kill())
	_ = cmd.Wait()

	<-done
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}
