// Package services wraps the process-compose binary used to run an
// environment's background services, the same way the teacher's daemon
// wraps docker: shell out, capture combined output, and treat a non-zero
// exit as an error.
package services

import (
	"fmt"
	"os"
	"os/exec"
)

// binEnvVar lets operators point at a specific process-compose binary,
// falling back to whatever is on PATH.
const binEnvVar = "PROCESS_COMPOSE_BIN"

func binary() string {
	if bin := os.Getenv(binEnvVar); bin != "" {
		return bin
	}
	return "process-compose"
}

// DefaultSocketPath returns the conventional process-compose socket path
// for a per-start_id runtime-state directory, used whenever a caller has not
// been handed an explicit --services-socket.
func DefaultSocketPath(stateDir string) string {
	return stateDir + "/services.sock"
}

// ConfigPath returns the path to the service-config.yaml for environment
// dir, or "" if it does not exist.
func ConfigPath(envDir string) string {
	p := envDir + "/service-config.yaml"
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Start runs process-compose up against configPath, binding its API to
// socketPath. If toStart is non-empty, only those services are started;
// otherwise process-compose starts every service in the config.
func Start(configPath, socketPath string, toStart []string) error {
	args := []string{"up", "-d", "--config", configPath, "--unix-socket", socketPath}
	args = append(args, toStart...)

	cmd := exec.Command(binary(), args...)
	cmd.Env = append(os.Environ(), "NO_COLOR=1")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("process-compose up: %w: %s", err, out)
	}
	return nil
}

// Down shuts process-compose down over its unix socket. Callers should
// check that socketPath exists first — a missing socket means
// process-compose was never started, which is not an error.
func Down(socketPath string) error {
	cmd := exec.Command(binary(), "down", "--unix-socket", socketPath)
	cmd.Env = append(os.Environ(), "NO_COLOR=1")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("process-compose down: %w: %s", err, out)
	}
	return nil
}

// SocketExists reports whether a process-compose socket is present at path.
func SocketExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
