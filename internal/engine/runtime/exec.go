package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// ExecRuntime implements the Runtime interface using raw OS processes.
// The process is not bound to the Start context: its lifetime is owned by
// whoever holds the handle.
type ExecRuntime struct {
	// WaitDelay bounds how long Wait blocks on output pipes after the
	// process has exited (grandchildren holding the pipes open).
	WaitDelay time.Duration
}

// NewExecRuntime creates a new process-based runtime.
func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{WaitDelay: 2 * time.Second}
}

// ExecHandle is a running OS process.
type ExecHandle struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu      sync.Mutex
	result  ExitResult
	stopped bool
}

func (e *ExecRuntime) Name() string { return "exec" }

// Start implements Runtime.Start using os/exec.
func (e *ExecRuntime) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if len(opts.Command) == 0 {
		return nil, errors.New("command is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = mergeEnv(os.Environ(), opts.Env)
	cmd.Stdout = writerOrDiscard(opts.Stdout)
	cmd.Stderr = writerOrDiscard(opts.Stderr)
	cmd.WaitDelay = e.WaitDelay
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", opts.Command[0], err)
	}

	h := &ExecHandle{cmd: cmd, done: make(chan struct{})}
	go h.reap()
	return h, nil
}

func (h *ExecHandle) reap() {
	waitErr := h.cmd.Wait()

	h.mu.Lock()
	h.result = exitResult(h.cmd.ProcessState, waitErr)
	h.mu.Unlock()

	close(h.done)
}

func (h *ExecHandle) ID() string { return fmt.Sprintf("pid-%d", h.cmd.Process.Pid) }

func (h *ExecHandle) PID() int { return h.cmd.Process.Pid }

// Wait blocks until the process exits. On ctx expiry it returns exit code -1
// together with the context error; the process keeps running.
func (h *ExecHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

// Stop sends SIGTERM to the engine's process group (Kill on Windows) and
// waits for the exit. If ctx expires first the group is killed.
func (h *ExecHandle) Stop(ctx context.Context) error {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		<-h.done
		return nil
	}
	h.stopped = true
	h.mu.Unlock()

	select {
	case <-h.done:
		return nil
	default:
	}

	if err := terminateProcess(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal process %d: %w", h.PID(), err)
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		if err := killProcess(h.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill process %d: %w", h.PID(), err)
		}
		<-h.done
		return nil
	}
}

func exitResult(state *os.ProcessState, waitErr error) ExitResult {
	if state == nil {
		return ExitResult{ExitCode: -1, Error: waitErr}
	}
	if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		sig := status.Signal()
		return ExitResult{
			ExitCode: 128 + int(sig),
			Signal:   sig.String(),
			Error:    fmt.Errorf("terminated by signal: %s", sig),
		}
	}
	return ExitResult{ExitCode: state.ExitCode()}
}

// mergeEnv applies overlay on top of base, replacing existing keys.
func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return base
	}
	env := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := overlay[key]; replaced {
			continue
		}
		env = append(env, kv)
	}
	return append(env, mapToEnvList(overlay)...)
}
