//go:build !linux

package executive

import "golang.org/x/sys/unix"

func isSessionLeader() (bool, error) {
	pgid, err := unix.Getpgid(0)
	if err != nil {
		return false, err
	}
	return pgid == unix.Getpid(), nil
}

func ensureSessionLeader() error {
	leader, err := isSessionLeader()
	if err != nil {
		return err
	}
	if leader {
		return nil
	}
	_, err = unix.Setsid()
	return err
}

// setParentDeathSignal has no equivalent outside Linux; spec.md §4.4 step 4
// substitutes a kqueue interest on the spawning pid on macOS instead (see
// internal/watchdog).
func setParentDeathSignal(sig unix.Signal) error {
	return nil
}
