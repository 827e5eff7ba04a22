package main

import (
	"flag"
	"log"
	"os"

	"github.com/flox/flox-activations/internal/activations"
)

// cmdSetReady marks an activation ready once its activate script has
// finished setting up the environment, unblocking any future start-or-attach
// callers racing to attach instead of starting a fresh activation.
func cmdSetReady() {
	fs := flag.NewFlagSet("set-ready", flag.ExitOnError)
	runtimeDir := fs.String("runtime-dir", defaultRuntimeDir(), "runtime directory (env: FLOX_RUNTIME_DIR)")
	env := fs.String("env", "", "environment path (required)")
	id := fs.String("id", "", "activation id (required)")
	_ = fs.Parse(os.Args[2:])

	if *env == "" || *id == "" {
		log.Fatalf("flox-activations set-ready: --env and --id are required")
	}

	registryPath := activations.RegistryPath(*runtimeDir, *env)
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		log.Fatalf("flox-activations set-ready: %v", err)
	}
	if reg == nil {
		lock.Unlock()
		log.Fatalf("flox-activations set-ready: no registry for %s", *env)
	}

	checked, err := reg.CheckVersion()
	if err != nil {
		lock.Unlock()
		log.Fatalf("flox-activations set-ready: %v", err)
	}

	if err := checked.SetReady(*id); err != nil {
		lock.Unlock()
		log.Fatalf("flox-activations set-ready: %v", err)
	}

	if err := activations.Write(reg, registryPath, lock); err != nil {
		log.Fatalf("flox-activations set-ready: %v", err)
	}
}
