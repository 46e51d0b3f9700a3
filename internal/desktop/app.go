// Package desktop binds the host and the bridge to a Wails window.
package desktop

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"backdesk/internal/bridge"
	"backdesk/internal/host"

	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// ErrNotStarted is returned when the window is requested before Wails has
// handed over its context.
var ErrNotStarted = errors.New("desktop runtime not started")

// App is the Wails application. Its exported methods are bound to the
// frontend as the bridge channels.
type App struct {
	bridge *bridge.Bridge
	host   *host.Host
	logger *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	closing bool
}

// NewApp creates a new App application struct.
func NewApp() *App {
	return &App{logger: slog.Default()}
}

// WithBridge connects the bridge served to the frontend.
func (a *App) WithBridge(b *bridge.Bridge) *App {
	a.bridge = b
	return a
}

// WithHost connects the lifecycle host.
func (a *App) WithHost(h *host.Host) *App {
	a.host = h
	return a
}

// WithLogger sets the logger.
func (a *App) WithLogger(l *slog.Logger) *App {
	a.logger = l.With("component", "desktop")
	return a
}

// GetBackendURL serves the get-backend-url channel.
func (a *App) GetBackendURL() (string, error) {
	return a.bridge.BackendURL(a.context())
}

// GetAppVersion serves the get-app-version channel.
func (a *App) GetAppVersion() string {
	return a.bridge.AppVersion()
}

// GetPlatform returns the host operating system.
func (a *App) GetPlatform() string {
	return a.bridge.Platform()
}

// CreateWindow shows the main window, which Wails creates hidden.
func (a *App) CreateWindow(ctx context.Context) (host.Window, error) {
	wctx := a.wailsContext()
	if wctx == nil {
		return nil, ErrNotStarted
	}
	runtime.WindowShow(wctx)
	return a, nil
}

// Show brings the window to the front.
func (a *App) Show() {
	if wctx := a.wailsContext(); wctx != nil {
		runtime.WindowUnminimise(wctx)
		runtime.WindowShow(wctx)
	}
}

// Quit ends the Wails event loop. It is a no-op when the application is
// already closing.
func (a *App) Quit() {
	a.mu.Lock()
	closing := a.closing
	wctx := a.ctx
	a.mu.Unlock()

	if closing || wctx == nil {
		return
	}
	runtime.Quit(wctx)
}

func (a *App) startup(ctx context.Context) {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	a.host.OnReady(ctx)
}

func (a *App) domReady(ctx context.Context) {
	a.logger.Info("page finished loading")
}

// beforeClose runs when the window is closed or the app is asked to quit.
// Closing is never prevented.
func (a *App) beforeClose(ctx context.Context) bool {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return false
	}
	a.closing = true
	a.mu.Unlock()

	a.host.OnWindowClosed(ctx)
	a.host.OnBeforeQuit(ctx)
	return false
}

func (a *App) shutdown(ctx context.Context) {
	a.host.OnQuit(ctx)
}

func (a *App) secondInstance(data options.SecondInstanceData) {
	a.logger.Info("second instance launched", "args", data.Args)
	a.host.OnActivate(a.context())
}

func (a *App) wailsContext() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

func (a *App) context() context.Context {
	if ctx := a.wailsContext(); ctx != nil {
		return ctx
	}
	return context.Background()
}
