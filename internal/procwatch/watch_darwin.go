//go:build darwin

package procwatch

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// kqueueHandle watches a single pid for NOTE_EXIT via kqueue's EVFILT_PROC
// filter (tier 2, macOS). There is no system-wide wait primitive on Darwin
// equivalent to Linux's pidfd, so one kqueue is opened per watched pid.
type kqueueHandle struct {
	kqfd int
	pid  int
}

// openWaitHandle registers an EVFILT_PROC/NOTE_EXIT filter for pid. EPERM
// (process owned by another user) and ESRCH (already gone) both surface as
// an error from kevent's EV_ADD call; the caller reports exit immediately
// in the ESRCH case and falls back to polling otherwise, since no
// information was actually obtained.
func openWaitHandle(pid int) (waitHandle, error) {
	kqfd, err := syscall.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("kqueue: %w", err)
	}

	kev := syscall.Kevent_t{
		Ident:  uint64(pid),
		Filter: syscall.EVFILT_PROC,
		Flags:  syscall.EV_ADD | syscall.EV_ENABLE | syscall.EV_ONESHOT,
		Fflags: syscall.NOTE_EXIT,
	}
	if _, err := syscall.Kevent(kqfd, []syscall.Kevent_t{kev}, nil, nil); err != nil {
		syscall.Close(kqfd)
		if err == syscall.ESRCH {
			return nil, fmt.Errorf("kevent EV_ADD pid %d: %w", pid, err)
		}
		// EPERM or anything else: we could not get a kernel-backed signal
		// for this pid, fall back to polling rather than failing outright.
		return pollHandle{pid: pid}, nil
	}
	return kqueueHandle{kqfd: kqfd, pid: pid}, nil
}

func (h kqueueHandle) Wait(ctx context.Context) {
	events := make([]syscall.Kevent_t, 1)
	timeout := syscall.Timespec{Nsec: 100_000_000} // 100ms, keeps ctx checks prompt

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := syscall.Kevent(h.kqfd, nil, events, &timeout)
		if err != nil {
			if err == syscall.EINTR {
				continue
			}
			return
		}
		if n > 0 {
			return
		}
	}
}

func (h kqueueHandle) Close() {
	syscall.Close(h.kqfd)
}

// PidIsRunning reports whether pid refers to a live process by sending
// signal 0, the POSIX idiom for existence-checking without actually
// signaling (kill(2): "if sig is 0 ... error checking is performed but no
// signal is actually sent"). A zombie still answers this check positively,
// so the ps-based isZombie check below is consulted to exclude
// zombies, mirroring the Linux tier's "Z state is not running" rule.
func PidIsRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	return !isZombie(pid)
}

// isZombie shells out to ps, since Darwin has no /proc to read process
// state from directly. Any failure to determine zombie-ness is treated as
// "not a zombie" — PidIsRunning already confirmed the pid answers signal 0.
func isZombie(pid int) bool {
	out, err := exec.Command("ps", "-o", "state=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(string(out)), "Z")
}
