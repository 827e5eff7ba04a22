//go:build !linux

package watchdog

import "golang.org/x/sys/unix"

func ensureSessionLeader() error {
	pgid, err := unix.Getpgid(0)
	if err != nil {
		return err
	}
	if pgid == unix.Getpid() {
		return nil
	}
	_, err = unix.Setsid()
	return err
}

// setParentDeathSignal has no Linux-style prctl equivalent on macOS, so it
// is a bare no-op here. spec.md §4.4 step 4's guarantee is still met on this
// platform, but not by this function: watchdog.Run's spawnExecutiveExitWatch
// watches the spawning executive's pid via internal/procwatch.AwaitExit
// (kqueue on darwin) and requests cleanup if it exits abnormally.
func setParentDeathSignal() error {
	return nil
}
