// flox-watchdog is the independent sentinel process that outlives the
// executive and guarantees activation cleanup even if the executive dies
// abnormally.
//
// Usage:
//
//	flox-watchdog --env <path> --activation-id <id> --log-dir <dir> [--runtime-dir <dir>]
package main

import (
	"flag"
	"log"
	"os"

	"github.com/flox/flox-activations/internal/activations"
	"github.com/flox/flox-activations/internal/watchdog"
)

func defaultRuntimeDir() string {
	if env := os.Getenv("FLOX_RUNTIME_DIR"); env != "" {
		return env
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/flox/run"
	}
	return "/tmp/flox/run"
}

func main() {
	runtimeDir := flag.String("runtime-dir", defaultRuntimeDir(), "runtime directory (env: FLOX_RUNTIME_DIR)")
	env := flag.String("env", "", "environment path being guarded (required)")
	activationID := flag.String("activation-id", "", "activation id being guarded (required)")
	servicesSocket := flag.String("services-socket", "", "path to the process-compose Unix socket")
	logDir := flag.String("log-dir", "", "directory for per-activation log files (required)")
	executivePID := flag.Int("executive-pid", 0, "pid of the executive that spawned this watchdog, watched for abnormal exit")
	flag.Parse()

	if *env == "" || *activationID == "" || *logDir == "" {
		log.Fatalf("flox-watchdog: --env, --activation-id, and --log-dir are required")
	}

	cfg := watchdog.Config{
		Env:                *env,
		RuntimeDir:         *runtimeDir,
		ActivationID:       *activationID,
		ActivationStateDir: activations.StartStateDir(*runtimeDir, *env, *activationID),
		ServicesSocket:     *servicesSocket,
		LogDir:             *logDir,
		ExecutivePID:       *executivePID,
	}

	if err := watchdog.Run(cfg); err != nil {
		log.Fatalf("flox-watchdog: %v", err)
	}
}
