package desktop

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/logger"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
)

// Options describes the main window and where its content comes from.
type Options struct {
	Title  string
	Width  int
	Height int
	GOOS   string

	// Development loads the UI from DevServerURL, otherwise from FrontendDir.
	Development  bool
	DevServerURL string
	FrontendDir  string
}

// Run blocks until the application quits.
func (a *App) Run(opts Options) error {
	assets, err := a.assetOptions(opts)
	if err != nil {
		return err
	}

	return wails.Run(&options.App{
		Title:       opts.Title,
		Width:       opts.Width,
		Height:      opts.Height,
		StartHidden: true,
		// macOS keeps the app alive without windows
		HideWindowOnClose: opts.GOOS == "darwin",
		AssetServer:       assets,
		Logger:            newWailsLogger(a.logger),
		LogLevel:          logger.INFO,
		OnStartup:         a.startup,
		OnDomReady:        a.domReady,
		OnBeforeClose:     a.beforeClose,
		OnShutdown:        a.shutdown,
		SingleInstanceLock: &options.SingleInstanceLock{
			UniqueId:               "backdesk-6a3c1f0e",
			OnSecondInstanceLaunch: a.secondInstance,
		},
		Bind: []interface{}{a},
	})
}

func (a *App) assetOptions(opts Options) (*assetserver.Options, error) {
	if opts.Development {
		proxy, err := devServerProxy(opts.DevServerURL, a.logger)
		if err != nil {
			return nil, err
		}
		return &assetserver.Options{Handler: proxy}, nil
	}

	index := filepath.Join(opts.FrontendDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		// The window still opens; the failure shows up as a blank page.
		a.logger.Error("failed to load frontend", "path", index, "error", err)
	}
	return &assetserver.Options{Assets: os.DirFS(opts.FrontendDir)}, nil
}

// devServerProxy forwards every asset request to the frontend dev server.
func devServerProxy(raw string, log *slog.Logger) (http.Handler, error) {
	target, err := url.Parse(raw)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid dev server url %q", raw)
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("failed to load page from dev server", "url", r.URL.String(), "error", err)
		http.Error(w, "frontend dev server unavailable", http.StatusBadGateway)
	}
	return proxy, nil
}
