// Package main is the entry point for backdesk.
// backdesk opens the UI window and keeps the backtesting engine running
// behind it. With --headless it only supervises the engine and serves the
// local API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	goruntime "runtime"
	"strconv"
	"syscall"
	"time"

	"backdesk/internal/auth"
	"backdesk/internal/bridge"
	"backdesk/internal/config"
	"backdesk/internal/desktop"
	"backdesk/internal/engine/runtime"
	"backdesk/internal/host"
	"backdesk/internal/launch"
	"backdesk/internal/logger"
	"backdesk/internal/observability"
	"backdesk/internal/server"
	"backdesk/internal/server/handlers"
	"backdesk/internal/supervisor"
	"backdesk/internal/version"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file (default: backdesk.yaml in current or user config directory)")
	headless := flag.Bool("headless", false, "Run without a window: supervise the engine and serve the local API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg, closeLog := logger.NewWithOptions(logger.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})
	defer closeLog()
	slog.SetDefault(logg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "backdesk", cfg.OTELEndpoint)
	if err != nil {
		fatal(logg, "failed to init tracing", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Error("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		fatal(logg, "failed to init metrics", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			logg.Error("failed to shutdown metrics", "error", err)
		}
	}()

	// Engine launch
	mode, err := launch.ParseMode(cfg.Mode)
	if err != nil {
		fatal(logg, "invalid mode", err)
	}
	paths, err := launch.DefaultPaths(goruntime.GOOS)
	if err != nil {
		fatal(logg, "failed to locate engine", err)
	}
	if cfg.SourceRoot != "" {
		paths.SourceRoot = cfg.SourceRoot
	}
	if cfg.ResourcesDir != "" {
		paths.ResourcesDir = cfg.ResourcesDir
	}
	resolve := func() launch.Spec {
		if cfg.EngineRuntime == "docker" {
			return launch.Container()
		}
		return launch.Resolve(mode, goruntime.GOOS, paths)
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		fatal(logg, "failed to create engine runtime", err)
	}
	logg.Info("engine configured",
		"mode", string(mode),
		"runtime", rt.Name(),
		"url", cfg.EngineURL(),
		"command", resolve().Command(),
	)

	sup := supervisor.New(rt, resolve, supervisor.Config{
		RestartDelay:      cfg.RestartDelay,
		MaxRestarts:       cfg.MaxRestarts,
		StableAfter:       cfg.StableAfter,
		StopTimeout:       cfg.StopTimeout,
		LogLinesPerSecond: cfg.LogLinesPerSecond,
		LogBurst:          cfg.LogBurst,
		Image:             cfg.EngineImage,
		Ports:             []int{cfg.EnginePort},
		Env: map[string]string{
			"ENGINE_HOST": cfg.EngineHost,
			"ENGINE_PORT": strconv.Itoa(cfg.EnginePort),
		},
	}, logg)

	// Bridge
	endpoint := bridge.Endpoint{Scheme: cfg.EngineScheme, Host: cfg.EngineHost, Port: cfg.EnginePort}
	broker := bridge.NewStaticBroker(endpoint)
	br := bridge.New(broker, version.Get(), goruntime.GOOS)
	probe := host.NewHTTPProbe(endpoint.URL())

	// Local API
	token := cfg.BridgeToken
	if token == auth.Auto {
		path, err := auth.DefaultPath()
		if err == nil {
			token, err = auth.LoadOrCreate(path)
		}
		if err != nil {
			fatal(logg, "failed to prepare control token", err)
		}
		logg.Info("engine control token ready", "path", path, "fingerprint", auth.Fingerprint(token))
	}
	if token == "" {
		logg.Warn("engine control routes are not authenticated", "addr", cfg.BridgeAddr)
	}
	srv := server.New(cfg.BridgeAddr, handlers.New(sup, br, broker, probe), server.Options{
		Token:          token,
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.BridgeRateLimit,
		RateBurst:      cfg.BridgeRateBurst,
		Metrics:        metricsHandler,
		Logger:         logg,
	})
	go func() {
		if err := srv.Run(ctx); err != nil {
			logg.Error("local api stopped", "error", err)
		}
	}()

	// Source reload
	var watcher *supervisor.Watcher
	if cfg.Reload && mode == launch.ModeDevelopment {
		watcher, err = supervisor.NewWatcher(sup, reloadRoot(mode, paths), 500*time.Millisecond, logg)
		if err != nil {
			logg.Error("failed to watch engine sources", "error", err)
		} else {
			go watcher.Run(ctx)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if *headless {
		registerGauges(logg, nil, watcher)
		runHeadless(ctx, logg, cfg, sup, probe, quit)
		return
	}

	var hostProbe host.Prober
	if cfg.ReadinessProbe {
		hostProbe = probe
	}
	app := desktop.NewApp().WithBridge(br).WithLogger(logg)
	h := host.New(sup, app, app, host.Config{
		GOOS:             goruntime.GOOS,
		GraceDelay:       cfg.GraceDelay,
		Probe:            hostProbe,
		ReadinessTimeout: cfg.ReadinessTimeout,
	}, logg)
	app.WithHost(h)
	registerGauges(logg, h, watcher)

	go func() {
		<-quit
		logg.Info("signal received, quitting")
		app.Quit()
	}()

	frontendDir := cfg.FrontendDir
	if frontendDir == "" {
		frontendDir = filepath.Join(paths.ResourcesDir, "frontend", "out")
	}
	if err := app.Run(desktop.Options{
		Title:        cfg.WindowTitle,
		Width:        cfg.WindowWidth,
		Height:       cfg.WindowHeight,
		GOOS:         goruntime.GOOS,
		Development:  mode == launch.ModeDevelopment,
		DevServerURL: cfg.DevServerURL,
		FrontendDir:  frontendDir,
	}); err != nil {
		logg.Error("application failed", "error", err)
	}

	// The quit hooks stop the engine; this covers a failed window start.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.StopTimeout+5*time.Second)
	defer stopCancel()
	if err := sup.Stop(stopCtx); err != nil {
		logg.Error("failed to stop engine", "error", err)
	}
	logg.Info("backdesk exited")
}

func runHeadless(ctx context.Context, logg *slog.Logger, cfg *config.Config, sup *supervisor.Supervisor, probe host.Prober, quit <-chan os.Signal) {
	if err := sup.Start(ctx); err != nil {
		// The supervisor keeps retrying when a restart is scheduled.
		logg.Error("failed to start engine", "error", err)
	}
	go func() {
		if err := host.WaitReady(ctx, probe, cfg.ReadinessTimeout); err != nil {
			logg.Warn("engine not ready", "error", err)
			return
		}
		logg.Info("engine ready", "url", cfg.EngineURL())
	}()

	<-quit

	logg.Info("shutting down")
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout+5*time.Second)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		logg.Error("failed to stop engine", "error", err)
	}
	logg.Info("backdesk exited")
}

// reloadRoot is the engine's own source directory, not the whole checkout.
func reloadRoot(mode launch.Mode, paths launch.Paths) string {
	return launch.Resolve(mode, goruntime.GOOS, paths).WorkDir
}

func newRuntime(cfg *config.Config) (runtime.Runtime, error) {
	switch cfg.EngineRuntime {
	case "exec":
		return runtime.NewExecRuntime(), nil
	case "docker":
		return runtime.NewDockerRuntime()
	default:
		return nil, fmt.Errorf("unknown runtime %q", cfg.EngineRuntime)
	}
}

// registerGauges exposes window and reload state. Both are optional.
func registerGauges(logg *slog.Logger, h *host.Host, w *supervisor.Watcher) {
	meter := otel.Meter(observability.MeterName)
	_, err := meter.Int64ObservableGauge("backdesk.window.open",
		metric.WithDescription("1 while the main window exists"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			if h != nil && h.HasWindow() {
				obs.Observe(1)
			} else {
				obs.Observe(0)
			}
			return nil
		}),
	)
	if err != nil {
		logg.Error("failed to register window metric", "error", err)
	}

	_, err = meter.Int64ObservableCounter("backdesk.engine.reloads",
		metric.WithDescription("Engine restarts triggered by source changes"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			if w != nil {
				obs.Observe(int64(w.Reloads()))
			}
			return nil
		}),
	)
	if err != nil {
		logg.Error("failed to register reload metric", "error", err)
	}
}

func fatal(logg *slog.Logger, msg string, err error) {
	logg.Error(msg, "error", err)
	os.Exit(1)
}
