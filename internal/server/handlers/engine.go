package handlers

import (
	"context"
	"errors"
	"net/http"

	"backdesk/internal/supervisor"
	"backdesk/pkg/api"
)

// EngineStatus handles GET /engine/status.
func (h *Handlers) EngineStatus(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, h.status(r.Context()))
}

// StartEngine handles POST /engine/start.
func (h *Handlers) StartEngine(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "start", h.engine.Start)
}

// StopEngine handles POST /engine/stop.
func (h *Handlers) StopEngine(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "stop", h.engine.Stop)
}

// RestartEngine handles POST /engine/restart.
func (h *Handlers) RestartEngine(w http.ResponseWriter, r *http.Request) {
	h.control(w, r, "restart", h.engine.Restart)
}

func (h *Handlers) control(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context) error) {
	// Detach from the request: the engine outlives the HTTP call
	ctx := context.WithoutCancel(r.Context())

	if err := fn(ctx); err != nil {
		if errors.Is(err, supervisor.ErrInvalidState) {
			h.httpError(w, err.Error(), http.StatusConflict)
			return
		}
		h.log(r).Error("engine control failed", "action", action, "error", err)
		h.respondJson(w, http.StatusBadGateway, api.ErrorResponse{
			Error:   "Failed to " + action + " engine",
			Code:    "502",
			Details: err.Error(),
		})
		return
	}

	h.log(r).Info("engine control", "action", action)
	h.respondJson(w, http.StatusOK, h.status(ctx))
}

func (h *Handlers) status(ctx context.Context) api.EngineStatusResponse {
	snap := h.engine.Snapshot()

	resp := api.EngineStatusResponse{
		State:               string(snap.State),
		Runtime:             snap.Runtime,
		HandleID:            snap.HandleID,
		PID:                 snap.PID,
		Restarts:            snap.Restarts,
		ConsecutiveFailures: snap.ConsecutiveFailures,
		LastExitCode:        snap.LastExitCode,
		LastError:           snap.LastError,
	}
	if !snap.StartedAt.IsZero() {
		startedAt := snap.StartedAt
		resp.StartedAt = &startedAt
	}
	if e, err := h.broker.Resolve(ctx); err == nil {
		resp.URL = e.URL()
	}
	if stats, err := h.engine.Stats(ctx); err == nil {
		resp.Stats = &api.ProcessStats{
			CPUPercent: stats.CPUPercent,
			RSSBytes:   stats.RSSBytes,
			Threads:    stats.Threads,
		}
	}
	return resp
}
