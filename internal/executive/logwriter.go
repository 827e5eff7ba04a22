package executive

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogWriter is the executive's durable per-activation trace. It writes
// explicitly and flushes after every line, because by the time the
// executive has daemonized no higher-level logging sink can be trusted to
// still have a valid stdout/stderr.
type LogWriter struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogWriter opens (creating if necessary) logDir/executive-<activationID>.log
// for append, and writes the startup banner.
func NewLogWriter(logDir, activationID, envPath string) (*LogWriter, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	path := filepath.Join(logDir, fmt.Sprintf("executive-%s.log", activationID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open executive log file: %w", err)
	}

	w := &LogWriter{file: f}
	w.Log(fmt.Sprintf("starting executive env %s activation_id %s", envPath, activationID))
	return w, nil
}

// Log writes a single timestamped, pid-prefixed line. The pid is included
// on every line to help diagnose cases where multiple executives
// accidentally write to the same file.
func (w *LogWriter) Log(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := fmt.Sprintf("[%s] pid=%d %s\n", time.Now().Format("2006-01-02 15:04:05.000"), os.Getpid(), msg)
	_, _ = w.file.WriteString(line)
	_ = w.file.Sync()
}

// Logf is a Printf-style convenience wrapper around Log.
func (w *LogWriter) Logf(format string, args ...any) {
	w.Log(fmt.Sprintf(format, args...))
}

// Shutdown writes the closing banner. The file itself is left open since
// the caller may log further best-effort cleanup messages afterwards.
func (w *LogWriter) Shutdown(activationID string) {
	w.Log(fmt.Sprintf("shutting down executive activation_id %s", activationID))
}

// Close releases the underlying file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
