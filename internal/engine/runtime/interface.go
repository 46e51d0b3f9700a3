// Package runtime provides the Runtime interface for engine process backends.
package runtime

import (
	"context"
	"fmt"
	"io"
	"sort"
)

// Runtime defines how the engine is spawned.
// Implementations include raw OS processes and Docker containers.
type Runtime interface {
	// Name identifies the runtime in logs and status output.
	Name() string

	// Start spawns the engine and returns a handle. It does not wait for the
	// engine to accept connections.
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// StartOptions contains the parameters for starting the engine.
type StartOptions struct {
	// Image is used by container runtimes only.
	Image   string
	Command []string
	Dir     string
	// Env is overlaid on the parent environment.
	Env map[string]string
	// Ports the engine listens on; container runtimes publish them on loopback.
	Ports []int

	// Stdout and Stderr receive the raw output streams. Nil discards.
	Stdout io.Writer
	Stderr io.Writer
}

// ExitCodeLost is reported when the runtime lost track of a running engine,
// e.g. the container daemon connection dropped. It counts as an abnormal exit.
const ExitCodeLost = 128

// ExitResult holds the outcome of a terminated engine.
type ExitResult struct {
	// ExitCode is the process exit status, 128+N when killed by signal N,
	// ExitCodeLost when the engine was lost, or -1 when no status could be
	// observed.
	ExitCode int
	Signal   string
	Error    error
}

// Handle represents a running engine.
type Handle interface {
	// ID is an opaque runtime identifier ("pid-1234", a container id).
	ID() string

	// PID is the host process id, 0 when not applicable.
	PID() int

	// Wait blocks until the engine exits or ctx is done.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop asks the engine to terminate and forces it once ctx expires.
	Stop(ctx context.Context) error
}

func mapToEnvList(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(m))
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, m[k]))
	}
	return env
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}
