//go:build !linux

package executive

// setProcTitle is a no-op outside Linux: there is no portable equivalent
// to PR_SET_NAME, and macOS offers nothing a Go process can use without an
// extra native dependency (see DESIGN.md).
func setProcTitle(title string) error {
	return nil
}
