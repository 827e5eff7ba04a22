package executive

// ActivationData describes one activation request, the data an external
// CLI collaborator hands to the executive before it forks (spec.md §1,
// §4.3). Field names mirror the original implementation's ActivateData.
type ActivationData struct {
	// Env is the path to the environment being activated.
	Env string
	// StorePath identifies the concrete build of Env.
	StorePath string
	// Shell is the path to the user's shell executable, passed through to
	// the activation script's --shell argument.
	Shell string
	// Mode is the activation mode string (e.g. "dev", "run"), passed
	// through to the activation script's --mode argument.
	Mode string
	// OriginalArgv is the argv of the invoking command, used to build the
	// "executive: <argv>" process title.
	OriginalArgv []string

	// RuntimeDir is FLOX_RUNTIME_DIR: the root under which the registry and
	// all per-start runtime-state directories live.
	RuntimeDir string
	// ActivationStateDir is the per-start_id runtime-state directory.
	ActivationStateDir string
	// ServicesSocket is the path the service supervisor binds its Unix
	// socket to, whether or not services are actually started.
	ServicesSocket string
	// StartServices, when true, starts the listed services immediately on
	// activation rather than waiting for SIGUSR1.
	StartServices bool
	// ServicesToStart optionally restricts which services are started; nil
	// means "all services in service-config.yaml".
	ServicesToStart []string

	// ActivationID and StartID identify this activation/start in the
	// registry.
	ActivationID string
	StartID      string

	// ParentPID is the pid of the invoking process; SIGUSR1 is sent to it
	// once the activation script completes.
	ParentPID int

	// LogDir is where the executive's LogWriter creates its log file.
	LogDir string

	// ActivateBin is the path to the `activate` script/binary exec'd as the
	// activation child.
	ActivateBin string
}
