// Package server exposes the local HTTP surface: health probes, metrics,
// bridge channels, engine control and the engine proxy routes.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"backdesk/internal/server/handlers"
	"backdesk/internal/server/middleware"
)

// Options configures the server.
type Options struct {
	// Bearer token required by the engine control routes and the proxy
	// routes that change engine data. Empty disables the check.
	Token string

	// Browser origins allowed to call the API. Requests carrying any other
	// Origin are rejected.
	AllowedOrigins []string

	// Per-client limit on the proxy routes
	RateLimit float64
	RateBurst int

	// Served on GET /metrics when set
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the HTTP server for the local API.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// New creates a new server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	authMW := middleware.RequireToken(opts.Token)
	rateMW := middleware.NewRateLimiter(middleware.WithLimit(opts.RateLimit, opts.RateBurst)).Middleware()

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	mux.HandleFunc("GET /bridge", h.ListChannels)
	mux.HandleFunc("GET /bridge/{channel}", h.InvokeChannel)

	mux.HandleFunc("GET /engine/status", h.EngineStatus)
	mux.Handle("POST /engine/start", authMW(http.HandlerFunc(h.StartEngine)))
	mux.Handle("POST /engine/stop", authMW(http.HandlerFunc(h.StopEngine)))
	mux.Handle("POST /engine/restart", authMW(http.HandlerFunc(h.RestartEngine)))

	// Engine proxy
	mux.Handle("GET /api/backtests", rateMW(http.HandlerFunc(h.ListBacktests)))
	mux.Handle("POST /api/backtests", rateMW(authMW(http.HandlerFunc(h.CreateBacktest))))
	mux.Handle("GET /api/backtests/{name}", rateMW(http.HandlerFunc(h.GetBacktest)))
	mux.Handle("DELETE /api/backtests/{name}", rateMW(authMW(http.HandlerFunc(h.DeleteBacktest))))
	mux.Handle("GET /api/strategies", rateMW(http.HandlerFunc(h.ListStrategies)))
	mux.Handle("POST /api/strategies", rateMW(authMW(http.HandlerFunc(h.CreateStrategy))))
	mux.Handle("DELETE /api/strategies/{name}", rateMW(authMW(http.HandlerFunc(h.DeleteStrategy))))

	var handler http.Handler = mux
	handler = middleware.RejectCrossOrigin(opts.AllowedOrigins)(handler)
	handler = middleware.RequestID(opts.Logger)(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     handler,
			ReadTimeout: 10 * time.Second,
			// Backtests are computed while the request is open
			WriteTimeout: 6 * time.Minute,
		},
		log: opts.Logger,
	}
}

// Handler returns the root handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)

	s.log.Info("local api listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
