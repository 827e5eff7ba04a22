package executive

import "syscall"

// ReapChildren nonblockingly waits for any already-exited direct children,
// per spec.md §4.3: "do not use blocking wait while this handler is
// installed." WNOHANG means the call returns immediately, with ECHILD when
// there are no children left to reap at all.
func ReapChildren() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}
