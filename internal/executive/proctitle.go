//go:build linux

package executive

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setProcTitle best-effort renames the calling process as seen by `ps` and
// similar tools. On Linux this uses PR_SET_NAME (prctl), which only
// affects the kernel's 16-byte comm field — good enough for the
// diagnostic purpose spec.md §4.3 step 6 describes ("set the process
// title to executive: <original argv>"); it is not the full argv-rewrite
// technique some daemons use, and failures are logged, not fatal.
func setProcTitle(title string) error {
	buf := make([]byte, 16)
	n := copy(buf, title)
	if n < len(buf) {
		buf[n] = 0
	} else {
		buf[len(buf)-1] = 0
	}
	return unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(&buf[0])), 0, 0, 0)
}
