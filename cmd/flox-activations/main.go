// flox-activations is the CLI surface over the activation registry.
//
// Usage:
//
//	flox-activations start-or-attach --env <path> --pid <pid> --store-path <path> [--runtime-dir <dir>] [--expiration <RFC3339>]
//	flox-activations set-ready --env <path> --id <activation-id> [--runtime-dir <dir>]
//	flox-activations attach-exists --env <path> --store-path <path> [--runtime-dir <dir>]
//	flox-activations prune --env <path> [--runtime-dir <dir>]
//	flox-activations list --env <path> [--runtime-dir <dir>]
//	flox-activations executive ...   (internal, exec'd by start-or-attach)
package main

import (
	"fmt"
	"os"
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
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "start-or-attach":
		cmdStartOrAttach()
	case "set-ready":
		cmdSetReady()
	case "attach-exists":
		cmdAttachExists()
	case "prune":
		cmdPrune()
	case "list":
		cmdList()
	case "executive":
		cmdExecutive()
	default:
		fmt.Fprintf(os.Stderr, "flox-activations: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `flox-activations – activation registry CLI

  start-or-attach --env <path> --pid <pid> --store-path <path> [--expiration <RFC3339>]
                              Start a new activation or attach to a ready one
  set-ready --env <path> --id <id>
                              Mark an activation ready
  attach-exists --env <path> --store-path <path>
                              Query whether a ready activation exists (exit 0/1)
  prune --env <path>         Remove dead pids and empty activations
  list --env <path>          List activations (table, or JSON when not a terminal)`)
}
