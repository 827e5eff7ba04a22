//go:build linux

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

// setParentDeathSignal arranges for SIGUSR1 to be delivered to this
// process if its spawning process dies (spec.md §4.4 step 3).
func setParentDeathSignal() error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(unix.SIGUSR1), 0, 0, 0)
}
