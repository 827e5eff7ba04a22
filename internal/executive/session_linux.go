//go:build linux

package executive

import "golang.org/x/sys/unix"

// isSessionLeader reports whether the calling process is already a session
// leader (pid == getpgid(0)), the invariant spec.md §9 requires callers to
// check before calling setsid().
func isSessionLeader() (bool, error) {
	pgid, err := unix.Getpgid(0)
	if err != nil {
		return false, err
	}
	return pgid == unix.Getpid(), nil
}

// ensureSessionLeader calls setsid() only if this process is not already a
// session leader, per spec.md §9's double-fork/session-leadership note.
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

// setParentDeathSignal arranges for sig to be delivered to this process
// when its parent dies (Linux-only prctl(PR_SET_PDEATHSIG, ...)).
func setParentDeathSignal(sig unix.Signal) error {
	return unix.Prctl(unix.PR_SET_PDEATHSIG, uintptr(sig), 0, 0, 0)
}
