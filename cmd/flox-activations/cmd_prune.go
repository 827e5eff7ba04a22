package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/flox/flox-activations/internal/activations"
	"github.com/flox/flox-activations/internal/executive"
	"github.com/flox/flox-activations/internal/procwatch"
)

// stdLogAdapter satisfies executive's logFunc interface over the standard
// log package, since this command has no *executive.LogWriter of its own.
type stdLogAdapter struct{}

func (stdLogAdapter) Logf(format string, args ...any) { log.Printf(format, args...) }

// cmdPrune removes dead pids and now-empty activations. It is exposed as a
// CLI subcommand mainly for tests and manual recovery; the executive and
// watchdog prune continuously on their own during normal operation. Unlike
// those, this command may run with no supervising executive/watchdog left
// alive at all, so it is the only thing that removes a dropped start_id's
// runtime-state directory in that case (spec.md §4.1).
func cmdPrune() {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	runtimeDir := fs.String("runtime-dir", defaultRuntimeDir(), "runtime directory (env: FLOX_RUNTIME_DIR)")
	env := fs.String("env", "", "environment path (required)")
	_ = fs.Parse(os.Args[2:])

	if *env == "" {
		log.Fatalf("flox-activations prune: --env is required")
	}

	registryPath := activations.RegistryPath(*runtimeDir, *env)
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		log.Fatalf("flox-activations prune: %v", err)
	}
	if reg == nil {
		lock.Unlock()
		return
	}

	checked, err := reg.CheckVersion()
	if err != nil {
		lock.Unlock()
		log.Fatalf("flox-activations prune: %v", err)
	}

	removed, _ := checked.Prune(time.Now(), procwatch.PidIsRunning)
	for _, id := range removed {
		log.Printf("flox-activations prune: removed empty activation %s", id)
	}
	if len(removed) > 0 {
		executive.CleanupStartState(*runtimeDir, *env, removed, stdLogAdapter{})
	}

	if checked.IsEmpty() {
		lock.Unlock()
		if err := activations.RemoveRegistryDir(activations.RegistryDir(*runtimeDir, *env), log.Printf); err != nil {
			log.Fatalf("flox-activations prune: %v", err)
		}
		return
	}

	if err := activations.Write(reg, registryPath, lock); err != nil {
		log.Fatalf("flox-activations prune: %v", err)
	}
}
