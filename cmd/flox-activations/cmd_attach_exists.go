package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/flox/flox-activations/internal/activations"
)

// cmdAttachExists queries whether a ready activation already exists for a
// store path, exiting 0 if so and 1 otherwise, so the calling shell script
// can decide whether to run an activate script or merely attach.
func cmdAttachExists() {
	fs := flag.NewFlagSet("attach-exists", flag.ExitOnError)
	runtimeDir := fs.String("runtime-dir", defaultRuntimeDir(), "runtime directory (env: FLOX_RUNTIME_DIR)")
	env := fs.String("env", "", "environment path (required)")
	storePath := fs.String("store-path", "", "store path (required)")
	_ = fs.Parse(os.Args[2:])

	if *env == "" || *storePath == "" {
		log.Fatalf("flox-activations attach-exists: --env and --store-path are required")
	}

	registryPath := activations.RegistryPath(*runtimeDir, *env)
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		log.Fatalf("flox-activations attach-exists: %v", err)
	}
	defer lock.Unlock()

	if reg == nil {
		os.Exit(1)
	}

	checked, err := reg.CheckVersion()
	if err != nil {
		log.Fatalf("flox-activations attach-exists: %v", err)
	}

	a := checked.ActivationForStorePath(*storePath)
	if a == nil || !a.Ready {
		os.Exit(1)
	}

	fmt.Println(a.ID)
	os.Exit(0)
}
