// Package supervisor owns the lifecycle of the compute-engine subprocess:
// spawn, exit observation, delayed restart and shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"backdesk/internal/engine/runtime"
	"backdesk/internal/launch"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// State is the supervisor lifecycle state.
type State string

const (
	StateStopped  State = "STOPPED"
	StateStarting State = "STARTING"
	StateRunning  State = "RUNNING"
	StateCrashed  State = "CRASHED"
	// StateFailed is entered once MaxRestarts consecutive failures are exceeded.
	StateFailed State = "FAILED"
)

// ErrInvalidState is returned when an operation is not allowed in the current state.
var ErrInvalidState = errors.New("invalid supervisor state")

// Config holds the restart policy and spawn parameters.
type Config struct {
	// RestartDelay is the fixed delay before a crashed engine is started again.
	RestartDelay time.Duration
	// MaxRestarts caps consecutive failures. 0 retries forever.
	MaxRestarts int
	// StableAfter is how long a run must last to reset the failure count.
	StableAfter time.Duration
	// StopTimeout bounds graceful termination before the engine is killed.
	StopTimeout time.Duration

	// Engine output throttling. LogLinesPerSecond <= 0 disables it.
	LogLinesPerSecond float64
	LogBurst          int

	// Image and Ports are passed to container runtimes.
	Image string
	Ports []int
	// Env is overlaid on the resolved launch environment.
	Env map[string]string
}

// Resolver produces a fresh launch spec for every spawn attempt.
type Resolver func() launch.Spec

// Snapshot is a point-in-time copy of the supervisor state.
type Snapshot struct {
	State               State
	Runtime             string
	HandleID            string
	PID                 int
	StartedAt           time.Time
	Restarts            int
	ConsecutiveFailures int
	// LastExitCode is nil until an exit with a status has been observed.
	LastExitCode *int
	LastError    string
}

// proc is the single live engine instance.
type proc struct {
	handle    runtime.Handle
	id        string
	startedAt time.Time
	stdout    *lineWriter
	stderr    *lineWriter
	done      chan struct{}
}

// Supervisor runs at most one engine process at a time.
type Supervisor struct {
	rt      runtime.Runtime
	resolve Resolver
	cfg     Config
	logger  *slog.Logger
	metrics *instruments

	// afterFunc schedules restarts. Replaced in tests.
	afterFunc func(time.Duration, func())
	now       func() time.Time

	mu       sync.Mutex
	state    State
	current  *proc
	gen      uint64
	restarts int
	failures int
	lastExit *int
	lastErr  string
}

// New creates a supervisor in the STOPPED state.
func New(rt runtime.Runtime, resolve Resolver, cfg Config, logger *slog.Logger) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 3 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Supervisor{
		rt:      rt,
		resolve: resolve,
		cfg:     cfg,
		logger:  logger.With("component", "supervisor"),
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		now:   time.Now,
		state: StateStopped,
	}
	s.metrics = newInstruments(otel.Meter(meterName), s)
	return s
}

// Start spawns the engine. It is valid from STOPPED, CRASHED and FAILED and
// returns as soon as the process is spawned; the engine is RUNNING
// optimistically until an exit proves otherwise.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateCrashed, StateFailed:
	default:
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot start while %s", ErrInvalidState, state)
	}
	postCrash := s.state != StateStopped
	if s.state == StateFailed {
		s.failures = 0
	}
	s.gen++
	gen := s.gen
	s.state = StateStarting
	s.mu.Unlock()

	return s.spawn(ctx, gen, postCrash)
}

// Stop terminates the live engine, if any, and moves to STOPPED. Any pending
// restart becomes stale. Calling Stop again is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.gen++
	p := s.current
	s.current = nil
	s.state = StateStopped
	s.mu.Unlock()

	if p == nil {
		return nil
	}

	s.logger.Info("stopping engine", "handle", p.id, "pid", p.handle.PID())

	stopCtx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
	defer cancel()

	err := p.handle.Stop(stopCtx)
	select {
	case <-p.done:
	case <-stopCtx.Done():
		s.logger.Warn("engine did not exit before stop timeout", "handle", p.id)
	}
	if err != nil {
		return fmt.Errorf("failed to stop engine %s: %w", p.id, err)
	}
	return nil
}

// Restart stops the engine and starts it again.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.Start(ctx)
}

// Snapshot returns the current state.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:               s.state,
		Runtime:             s.rt.Name(),
		Restarts:            s.restarts,
		ConsecutiveFailures: s.failures,
		LastError:           s.lastErr,
	}
	if s.lastExit != nil {
		code := *s.lastExit
		snap.LastExitCode = &code
	}
	if p := s.current; p != nil {
		snap.HandleID = p.id
		snap.PID = p.handle.PID()
		snap.StartedAt = p.startedAt
	}
	return snap
}

func (s *Supervisor) spawn(ctx context.Context, gen uint64, postCrash bool) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "engine.start",
		trace.WithAttributes(
			attribute.String("engine.runtime", s.rt.Name()),
			attribute.Bool("engine.restart", postCrash),
		),
	)
	defer span.End()

	spec := s.resolve()
	env := make(map[string]string, len(spec.Env)+len(s.cfg.Env))
	for k, v := range spec.Env {
		env[k] = v
	}
	for k, v := range s.cfg.Env {
		env[k] = v
	}

	id := uuid.NewString()
	logger := s.logger.With("handle", id)

	var limiter *rate.Limiter
	if s.cfg.LogLinesPerSecond > 0 {
		burst := s.cfg.LogBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(s.cfg.LogLinesPerSecond), burst)
	}
	stdout := newLineWriter(logger, "stdout", limiter, s.metrics.dropped)
	stderr := newLineWriter(logger, "stderr", limiter, s.metrics.dropped)

	logger.Info("spawning engine",
		"runtime", s.rt.Name(),
		"interpreter", spec.Interpreter,
		"script", spec.Script,
		"workdir", spec.WorkDir,
	)

	h, err := s.rt.Start(ctx, runtime.StartOptions{
		Image:   s.cfg.Image,
		Command: spec.Command(),
		Dir:     spec.WorkDir,
		Env:     env,
		Ports:   s.cfg.Ports,
		Stdout:  stdout,
		Stderr:  stderr,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "spawn failed")
		s.onSpawnError(gen, err)
		return fmt.Errorf("failed to spawn engine: %w", err)
	}

	p := &proc{
		handle:    h,
		id:        id,
		startedAt: s.now(),
		stdout:    stdout,
		stderr:    stderr,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	if gen != s.gen {
		// Stop was called while spawning.
		s.mu.Unlock()
		logger.Info("engine stopped during start")
		go s.observe(p)
		stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
		defer cancel()
		if err := h.Stop(stopCtx); err != nil {
			logger.Error("failed to stop engine", "error", err)
		}
		return fmt.Errorf("%w: stopped during start", ErrInvalidState)
	}
	s.current = p
	s.state = StateRunning
	if postCrash {
		s.restarts++
	}
	s.mu.Unlock()

	span.SetAttributes(attribute.String("engine.handle", id), attribute.Int("engine.pid", h.PID()))
	s.metrics.spawned(ctx, postCrash)
	logger.Info("engine running", "pid", h.PID(), "runtime_id", h.ID())

	go s.observe(p)
	return nil
}

// observe waits for the process to exit and hands the result to onExit.
func (s *Supervisor) observe(p *proc) {
	defer close(p.done)

	res, err := p.handle.Wait(context.Background())
	p.stdout.Flush()
	p.stderr.Flush()

	var code *int
	if err == nil && res.ExitCode >= 0 {
		c := res.ExitCode
		code = &c
	}
	s.onExit(p, code, res)
}

func (s *Supervisor) onExit(p *proc, code *int, res runtime.ExitResult) {
	logger := s.logger.With("handle", p.id)
	s.metrics.exited(code)

	s.mu.Lock()
	if code != nil {
		c := *code
		s.lastExit = &c
	}
	if s.current != p {
		s.mu.Unlock()
		logger.Debug("ignoring exit of stale engine", "exit_code", fmtCode(code))
		return
	}
	s.current = nil

	if code == nil || *code == 0 {
		s.state = StateStopped
		s.failures = 0
		s.mu.Unlock()
		logger.Info("engine exited", "exit_code", fmtCode(code))
		return
	}

	if s.cfg.StableAfter > 0 && s.now().Sub(p.startedAt) >= s.cfg.StableAfter {
		s.failures = 0
	}
	switch {
	case res.Signal != "":
		s.lastErr = fmt.Sprintf("exit code %d (%s)", *code, res.Signal)
	case res.Error != nil:
		s.lastErr = fmt.Sprintf("exit code %d: %v", *code, res.Error)
	default:
		s.lastErr = fmt.Sprintf("exit code %d", *code)
	}
	schedule := s.crashLocked()
	s.mu.Unlock()

	logger.Error("engine exited abnormally", "exit_code", *code, "signal", res.Signal)
	schedule()
}

func (s *Supervisor) onSpawnError(gen uint64, err error) {
	s.metrics.spawnFailed()

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		s.logger.Info("engine spawn failed after stop", "error", err)
		return
	}
	s.lastErr = err.Error()
	schedule := s.crashLocked()
	s.mu.Unlock()

	s.logger.Error("failed to spawn engine", "error", err)
	schedule()
}

// crashLocked records a failure and returns the restart to schedule once
// the lock is released. Must be called with s.mu held.
func (s *Supervisor) crashLocked() func() {
	s.failures++
	if s.cfg.MaxRestarts > 0 && s.failures > s.cfg.MaxRestarts {
		s.state = StateFailed
		failures := s.failures
		return func() {
			s.logger.Error("engine keeps failing, giving up", "consecutive_failures", failures)
		}
	}

	s.state = StateCrashed
	gen := s.gen
	delay := s.cfg.RestartDelay
	return func() {
		s.logger.Info("scheduling engine restart", "delay", delay)
		s.afterFunc(delay, func() { s.fireRestart(gen) })
	}
}

// fireRestart runs when the restart delay elapses. The guard is evaluated
// against the state at fire time.
func (s *Supervisor) fireRestart(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.current != nil || s.state != StateCrashed {
		s.mu.Unlock()
		s.logger.Debug("dropping stale restart")
		return
	}
	s.gen++
	next := s.gen
	s.state = StateStarting
	s.mu.Unlock()

	s.metrics.restarted()
	if err := s.spawn(context.Background(), next, true); err != nil {
		s.logger.Debug("restart attempt failed", "error", err)
	}
}

func fmtCode(code *int) any {
	if code == nil {
		return "none"
	}
	return *code
}
