package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/flox/flox-activations/internal/activations"
)

// cmdStartOrAttach implements spec.md §1's short-lived parent: it mutates
// the registry under lock, and if it is the first attacher, forks the
// executive (and the watchdog) detached into their own sessions, then
// blocks for SIGUSR1 ("ready") before printing the result and exiting.
func cmdStartOrAttach() {
	fs := flag.NewFlagSet("start-or-attach", flag.ExitOnError)
	runtimeDir := fs.String("runtime-dir", defaultRuntimeDir(), "runtime directory (env: FLOX_RUNTIME_DIR)")
	env := fs.String("env", "", "environment path (required)")
	storePath := fs.String("store-path", "", "store path identifying this build (required)")
	pid := fs.Int("pid", 0, "pid attaching (required)")
	shell := fs.String("shell", os.Getenv("SHELL"), "shell executable exec'd by the activation script")
	mode := fs.String("mode", "dev", "activation mode")
	activateBin := fs.String("activate-bin", "activate", "path to the activate script/binary")
	expirationStr := fs.String("expiration", "", "RFC3339 instant before which the executive does not start watching this pid for exit")
	_ = fs.Parse(os.Args[2:])

	if *env == "" || *storePath == "" || *pid == 0 {
		log.Fatalf("flox-activations start-or-attach: --env, --store-path, and --pid are required")
	}

	var expiration *time.Time
	if *expirationStr != "" {
		t, err := time.Parse(time.RFC3339, *expirationStr)
		if err != nil {
			log.Fatalf("flox-activations start-or-attach: invalid --expiration: %v", err)
		}
		expiration = &t
	}

	registryPath := activations.RegistryPath(*runtimeDir, *env)
	reg, lock, err := activations.Read(registryPath)
	if err != nil {
		log.Fatalf("flox-activations start-or-attach: %v", err)
	}
	if reg == nil {
		reg = &activations.Registry{Version: activations.SchemaVersion}
	}
	checked, err := reg.CheckVersion()
	if err != nil {
		lock.Unlock()
		log.Fatalf("flox-activations start-or-attach: %v", err)
	}

	res := checked.StartOrAttach(*pid, *storePath, expiration)
	if err := activations.Write(reg, registryPath, lock); err != nil {
		log.Fatalf("flox-activations start-or-attach: %v", err)
	}

	stateDir := activations.StartStateDir(*runtimeDir, *env, res.StartID)
	logDir := stateDir + "/logs"

	if res.Started {
		if err := spawnExecutive(spawnArgs{
			runtimeDir:   *runtimeDir,
			env:          *env,
			storePath:    *storePath,
			shell:        *shell,
			mode:         *mode,
			activateBin:  *activateBin,
			activationID: res.ID,
			startID:      res.StartID,
			logDir:       logDir,
			parentPID:    os.Getpid(),
		}); err != nil {
			log.Fatalf("flox-activations start-or-attach: failed to start executive: %v", err)
		}
	}

	fmt.Printf("FLOX_ACTIVATION_ID=%s\nFLOX_ACTIVATION_START_ID=%s\nFLOX_ACTIVATION_STATE_DIR=%s\n", res.ID, res.StartID, stateDir)
}

type spawnArgs struct {
	runtimeDir, env, storePath, shell, mode, activateBin string
	activationID, startID, logDir                        string
	parentPID                                             int
}

// spawnExecutive forks this same binary into `executive` mode, detached
// into its own session, then blocks until the executive signals readiness
// (SIGUSR1) or exits early with an error — mirroring the original's
// fork-and-wait-for-SIGUSR1 handshake (spec.md §4.3 step 6).
func spawnExecutive(a spawnArgs) error {
	self, err := os.Executable()
	if err != nil {
		self = os.Args[0]
	}

	readyCh := make(chan os.Signal, 1)
	signal.Notify(readyCh, syscall.SIGUSR1)
	defer signal.Stop(readyCh)

	cmd := exec.Command(self, "executive",
		"--runtime-dir", a.runtimeDir,
		"--env", a.env,
		"--store-path", a.storePath,
		"--shell", a.shell,
		"--mode", a.mode,
		"--activate-bin", a.activateBin,
		"--activation-id", a.activationID,
		"--start-id", a.startID,
		"--log-dir", a.logDir,
		"--parent-pid", fmt.Sprint(a.parentPID),
	)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start executive: %w", err)
	}

	if err := spawnWatchdog(a, cmd.Process.Pid); err != nil {
		log.Printf("flox-activations: warning: failed to start watchdog: %v", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	select {
	case <-readyCh:
		return nil
	case err := <-exited:
		return fmt.Errorf("executive exited before signaling readiness: %w", err)
	}
}

// spawnWatchdog forks the flox-watchdog binary, detached into its own
// session, satisfying I6: every ready activation has exactly one watchdog
// launched during its lifetime. executivePID is the pid the watchdog should
// watch for abnormal exit (spec.md §4.4 step 4): on Linux this is belt and
// braces alongside prctl(PR_SET_PDEATHSIG), and on platforms with no
// parent-death signal it is the only mechanism.
func spawnWatchdog(a spawnArgs, executivePID int) error {
	cmd := exec.Command("flox-watchdog",
		"--runtime-dir", a.runtimeDir,
		"--env", a.env,
		"--activation-id", a.activationID,
		"--log-dir", a.logDir,
		"--executive-pid", fmt.Sprint(executivePID),
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd.Start()
}
