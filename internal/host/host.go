// Package host sequences the window against the engine supervisor and reacts
// to application lifecycle events.
package host

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Supervisor is the engine lifecycle the host drives.
type Supervisor interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Window is the presentation surface.
type Window interface {
	// Show brings an existing window to the front.
	Show()
}

// WindowFactory creates the presentation window.
type WindowFactory interface {
	CreateWindow(ctx context.Context) (Window, error)
}

// Quitter terminates the host application.
type Quitter interface {
	Quit()
}

// Config controls window sequencing.
type Config struct {
	// GOOS selects the platform convention for "all windows closed".
	GOOS string
	// GraceDelay is waited before the first window when no probe is set.
	GraceDelay time.Duration
	// Probe, when set, gates the first window on engine readiness.
	Probe            Prober
	ReadinessTimeout time.Duration
}

// Host owns the window handle and forwards lifecycle events to the supervisor.
type Host struct {
	sup     Supervisor
	windows WindowFactory
	quitter Quitter
	cfg     Config
	logger  *slog.Logger

	wg sync.WaitGroup

	mu       sync.Mutex
	window   Window
	quitting bool
}

// New creates a host.
func New(sup Supervisor, windows WindowFactory, quitter Quitter, cfg Config, logger *slog.Logger) *Host {
	if cfg.GraceDelay <= 0 {
		cfg.GraceDelay = time.Second
	}
	if cfg.ReadinessTimeout <= 0 {
		cfg.ReadinessTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		sup:     sup,
		windows: windows,
		quitter: quitter,
		cfg:     cfg,
		logger:  logger.With("component", "host"),
	}
}

// OnReady starts the engine and schedules the first window. It does not wait
// for either.
func (h *Host) OnReady(ctx context.Context) {
	if err := h.sup.Start(ctx); err != nil {
		// the supervisor schedules its own retry
		h.logger.Error("engine start failed", "error", err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if !h.waitForEngine(ctx) {
			return
		}
		h.createWindow(ctx)
	}()
}

// OnWindowClosed drops the window handle. With no window left this is the
// "all windows closed" event.
func (h *Host) OnWindowClosed(ctx context.Context) {
	h.mu.Lock()
	h.window = nil
	h.mu.Unlock()

	h.OnWindowAllClosed(ctx)
}

// OnWindowAllClosed stops the engine and quits, except on darwin where the
// application stays alive without windows.
func (h *Host) OnWindowAllClosed(ctx context.Context) {
	if h.cfg.GOOS == "darwin" {
		return
	}
	h.mu.Lock()
	h.quitting = true
	h.mu.Unlock()

	h.stopEngine(ctx)
	h.quitter.Quit()
}

// OnBeforeQuit stops the engine. Safe to call repeatedly.
func (h *Host) OnBeforeQuit(ctx context.Context) {
	h.mu.Lock()
	h.quitting = true
	h.mu.Unlock()

	h.stopEngine(ctx)
}

// OnQuit stops the engine. Safe to call repeatedly.
func (h *Host) OnQuit(ctx context.Context) {
	h.OnBeforeQuit(ctx)
}

// OnActivate recreates the window when none is open. The engine is assumed
// to still be running.
func (h *Host) OnActivate(ctx context.Context) {
	h.mu.Lock()
	w := h.window
	h.mu.Unlock()

	if w != nil {
		w.Show()
		return
	}
	h.createWindow(ctx)
}

// Wait blocks until a pending window creation has finished.
func (h *Host) Wait() {
	h.wg.Wait()
}

// HasWindow reports whether a window is open.
func (h *Host) HasWindow() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.window != nil
}

func (h *Host) waitForEngine(ctx context.Context) bool {
	if h.cfg.Probe != nil {
		if err := WaitReady(ctx, h.cfg.Probe, h.cfg.ReadinessTimeout); err != nil {
			if ctx.Err() != nil {
				return false
			}
			h.logger.Warn("opening window before engine is ready", "error", err)
		}
		return true
	}

	select {
	case <-ctx.Done():
		return false
	case <-time.After(h.cfg.GraceDelay):
		return true
	}
}

func (h *Host) createWindow(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.window != nil || h.quitting {
		return
	}
	w, err := h.windows.CreateWindow(ctx)
	if err != nil {
		// Not escalated: the engine is unaffected by UI failures.
		h.logger.Error("failed to create window", "error", err)
		return
	}
	h.window = w
	h.logger.Info("window created")
}

func (h *Host) stopEngine(ctx context.Context) {
	if err := h.sup.Stop(ctx); err != nil {
		h.logger.Error("failed to stop engine", "error", err)
	}
}
