package main

import (
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/flox/flox-activations/internal/activations"
	"github.com/flox/flox-activations/internal/executive"
	"github.com/flox/flox-activations/internal/services"
)

// cmdExecutive is the hidden entrypoint exec'd by start-or-attach
// (spec.md §4.3): it never runs interactively, only as a forked child in
// its own session.
func cmdExecutive() {
	fs := flag.NewFlagSet("executive", flag.ExitOnError)
	runtimeDir := fs.String("runtime-dir", defaultRuntimeDir(), "runtime directory")
	env := fs.String("env", "", "environment path (required)")
	storePath := fs.String("store-path", "", "store path (required)")
	shell := fs.String("shell", "", "shell executable")
	mode := fs.String("mode", "dev", "activation mode")
	activateBin := fs.String("activate-bin", "activate", "path to the activate script/binary")
	activationID := fs.String("activation-id", "", "activation id (required)")
	startID := fs.String("start-id", "", "start id (required)")
	logDir := fs.String("log-dir", "", "log directory (required)")
	parentPID := fs.Int("parent-pid", 0, "pid to signal once the activation script completes")
	servicesSocket := fs.String("services-socket", "", "path to the process-compose Unix socket")
	startServices := fs.Bool("start-services", false, "start services immediately rather than waiting for SIGUSR1")
	_ = fs.Parse(os.Args[2:])

	if *env == "" || *storePath == "" || *activationID == "" || *startID == "" || *logDir == "" {
		log.Fatalf("flox-activations executive: --env, --store-path, --activation-id, --start-id, and --log-dir are required")
	}

	stateDir := activations.StartStateDir(*runtimeDir, *env, *startID)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		log.Fatalf("flox-activations executive: create state dir: %v", err)
	}

	socket := *servicesSocket
	if socket == "" {
		socket = services.DefaultSocketPath(stateDir)
	}

	data := executive.ActivationData{
		Env:                *env,
		StorePath:          *storePath,
		Shell:              *shell,
		Mode:               *mode,
		OriginalArgv:       append([]string{os.Args[0]}, os.Args[1:]...),
		RuntimeDir:         *runtimeDir,
		ActivationStateDir: stateDir,
		ServicesSocket:     socket,
		StartServices:      *startServices,
		ActivationID:       *activationID,
		StartID:            *startID,
		ParentPID:          *parentPID,
		LogDir:             *logDir,
		ActivateBin:        *activateBin,
	}

	if err := executive.Run(data); err != nil {
		log.Fatalf("flox-activations executive (pid %s): %v", strconv.Itoa(os.Getpid()), err)
	}
}
