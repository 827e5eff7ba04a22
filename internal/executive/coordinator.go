package executive

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/flox/flox-activations/internal/procwatch"
)

// EventCoordinator multiplexes process-exit events, registry filesystem
// changes, and signals onto one channel. Grounded on event_coordinator.rs:
// no producer goroutine holds a reference back to the coordinator, only to
// the bare events channel and a context — cancellation is a broadcast via
// context, never a call back into the coordinator (spec.md §9 "cyclic
// references").
type EventCoordinator struct {
	events chan Event

	mu        sync.Mutex
	knownPIDs map[int]context.CancelFunc

	registryPath string
	watcher      *fsnotify.Watcher
}

// NewEventCoordinator constructs a coordinator with a buffered channel —
// buffered so that a burst of fsnotify events or simultaneous pid exits
// does not block a producer goroutine on a slow consumer until 64 events
// are pending.
func NewEventCoordinator(registryPath string) *EventCoordinator {
	return &EventCoordinator{
		events:       make(chan Event, 64),
		knownPIDs:    make(map[int]context.CancelFunc),
		registryPath: registryPath,
	}
}

// Events returns the receive-only event channel the monitoring loop reads
// from.
func (c *EventCoordinator) Events() <-chan Event {
	return c.events
}

// EnsureMonitoringPIDs starts a watcher for every pid in pids that is not
// already known, and cancels+drops any previously-known pid absent from
// pids (attachment removed by a concurrent writer). Idempotent per
// spec.md R3: a second call with the same pid set is a no-op.
func (c *EventCoordinator) EnsureMonitoringPIDs(ctx context.Context, pids []int, expirations map[int]*time.Time) {
	want := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		want[pid] = struct{}{}
		c.startMonitoring(ctx, pid, expirations[pid])
	}

	c.mu.Lock()
	for pid, cancel := range c.knownPIDs {
		if _, ok := want[pid]; !ok {
			cancel()
			delete(c.knownPIDs, pid)
		}
	}
	c.mu.Unlock()
}

// startMonitoring spawns a single per-pid watcher if pid is not already
// tracked.
func (c *EventCoordinator) startMonitoring(ctx context.Context, pid int, expiration *time.Time) {
	c.mu.Lock()
	if _, exists := c.knownPIDs[pid]; exists {
		c.mu.Unlock()
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	c.knownPIDs[pid] = cancel
	c.mu.Unlock()

	events := c.events
	go func() {
		done := procwatch.AwaitExit(watchCtx, pid, expiration)
		<-done

		select {
		case <-watchCtx.Done():
			// Canceled because the pid was pruned by someone else, or the
			// coordinator is shutting down — don't report a stale exit.
		case events <- Event{Kind: EventProcessExited, PID: pid}:
		}
	}()
}

// StopMonitoring cancels the watcher for pid, if any.
func (c *EventCoordinator) StopMonitoring(pid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cancel, ok := c.knownPIDs[pid]; ok {
		cancel()
		delete(c.knownPIDs, pid)
	}
}

// StartRegistryWatcher watches the PARENT directory of the registry file,
// not the file itself: atomic rename-based publication (I2) does not fire
// a modify event on the target path, only create/rename events on the
// directory. Events are filtered to the registry's basename and forwarded
// as EventStateFileChanged.
func (c *EventCoordinator) StartRegistryWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	dir := filepath.Dir(c.registryPath)
	base := filepath.Base(c.registryPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	c.watcher = watcher

	events := c.events
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
					continue
				}
				events <- Event{Kind: EventStateFileChanged}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// StopRegistryWatcher closes the fsnotify watcher, if one was started.
func (c *EventCoordinator) StopRegistryWatcher() {
	if c.watcher != nil {
		c.watcher.Close()
	}
}

// SpawnSignalHandler installs handlers for SIGINT, SIGTERM, SIGQUIT,
// SIGCHLD, and SIGUSR1 and translates them into events on the shared
// channel. This is the dedicated signal-translation goroutine required by
// spec.md §9 ("signal handling as global state"): signals are inherently
// process-global, so exactly one goroutine per daemon owns them.
func (c *EventCoordinator) SpawnSignalHandler(ctx context.Context) {
	sigCh := make(chan os.Signal, 8)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGCHLD, syscall.SIGUSR1)

	events := c.events
	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-sigCh:
				if !ok {
					return
				}
				switch sig {
				case syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
					events <- Event{Kind: EventTerminationSignal}
				case syscall.SIGCHLD:
					events <- Event{Kind: EventSigChld}
				case syscall.SIGUSR1:
					events <- Event{Kind: EventStartServices}
				}
			}
		}
	}()
}

// InjectForTest delivers an event directly, bypassing every real producer.
// Exposed for tests only.
func (c *EventCoordinator) InjectForTest(ev Event) {
	c.events <- ev
}
