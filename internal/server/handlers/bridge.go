package handlers

import (
	"errors"
	"net/http"

	"backdesk/internal/bridge"
	"backdesk/pkg/api"
)

// ListChannels handles GET /bridge.
func (h *Handlers) ListChannels(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, api.BridgeChannelsResponse{Channels: h.bridge.Channels()})
}

// InvokeChannel handles GET /bridge/{channel}.
func (h *Handlers) InvokeChannel(w http.ResponseWriter, r *http.Request) {
	channel := r.PathValue("channel")

	value, err := h.bridge.Invoke(r.Context(), channel)
	if err != nil {
		if errors.Is(err, bridge.ErrUnknownChannel) {
			h.httpError(w, "Unknown channel", http.StatusNotFound)
			return
		}
		h.log(r).Error("bridge request failed", "channel", channel, "error", err)
		h.httpError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.respondJson(w, http.StatusOK, api.BridgeResponse{Channel: channel, Value: value})
}
