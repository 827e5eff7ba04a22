package watchdog

import "syscall"

// reapChildren nonblockingly reaps already-exited direct children so we
// never accumulate zombies while SIGCHLD is captured (spec.md §4.4 step 2).
func reapChildren() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WNOHANG, nil)
		if pid <= 0 || err != nil {
			return
		}
	}
}
