// Package handlers contains HTTP handlers for the local bridge API.
package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"backdesk/internal/bridge"
	"backdesk/internal/logger"
	"backdesk/internal/supervisor"
	"backdesk/pkg/api"
)

// Engine is the supervisor surface exposed over HTTP.
type Engine interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Restart(ctx context.Context) error
	Snapshot() supervisor.Snapshot
	Stats(ctx context.Context) (supervisor.ProcessStats, error)
}

// Bridge serves the bridge channels.
type Bridge interface {
	Invoke(ctx context.Context, channel string) (string, error)
	Channels() []string
}

// Prober checks that the engine accepts requests.
type Prober interface {
	Ready(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	engine Engine
	bridge Bridge
	broker bridge.Broker
	probe  Prober
	client *http.Client
}

// New creates a new Handlers instance.
func New(engine Engine, br Bridge, broker bridge.Broker, probe Prober) *Handlers {
	return &Handlers{
		engine: engine,
		bridge: br,
		broker: broker,
		probe:  probe,
		client: &http.Client{
			// Backtests run synchronously in the engine
			Timeout: 5 * time.Minute,
		},
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

func (h *Handlers) log(r *http.Request) *slog.Logger {
	return logger.FromContext(r.Context(), slog.Default())
}
