package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"backdesk/internal/logger"
)

const (
	maxUploadSize   = 64 << 20
	maxResponseSize = 64 << 20
)

// ListBacktests handles GET /api/backtests.
func (h *Handlers) ListBacktests(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodGet, "/getAll", nil, "", "Failed to fetch backtests")
}

// CreateBacktest handles POST /api/backtests (multipart: name, amount,
// strategy_name, file).
func (h *Handlers) CreateBacktest(w http.ResponseWriter, r *http.Request) {
	body, contentType, ok := h.readUpload(w, r, func(form *multipart.Form) string {
		amount, err := strconv.ParseFloat(formValue(form, "amount"), 64)
		if formValue(form, "name") == "" || err != nil || amount == 0 ||
			formValue(form, "strategy_name") == "" || len(form.File["file"]) == 0 {
			return "Missing required fields"
		}
		return ""
	})
	if !ok {
		return
	}
	h.forward(w, r, http.MethodPost, "/create", bytes.NewReader(body), contentType, "Failed to create backtest")
}

// GetBacktest handles GET /api/backtests/{name}.
func (h *Handlers) GetBacktest(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodGet, "/get/"+url.PathEscape(r.PathValue("name")), nil, "", "Failed to fetch backtest")
}

// DeleteBacktest handles DELETE /api/backtests/{name}.
func (h *Handlers) DeleteBacktest(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodDelete, "/delete/"+url.PathEscape(r.PathValue("name")), nil, "", "Failed to delete backtest")
}

// ListStrategies handles GET /api/strategies.
func (h *Handlers) ListStrategies(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodGet, "/getStrategies", nil, "", "Failed to fetch strategies")
}

// CreateStrategy handles POST /api/strategies (multipart: file).
func (h *Handlers) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	body, contentType, ok := h.readUpload(w, r, func(form *multipart.Form) string {
		if len(form.File["file"]) == 0 {
			return "Missing strategy file"
		}
		return ""
	})
	if !ok {
		return
	}
	h.forward(w, r, http.MethodPost, "/createStrategy", bytes.NewReader(body), contentType, "Failed to create strategy")
}

// DeleteStrategy handles DELETE /api/strategies/{name}.
func (h *Handlers) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	h.forward(w, r, http.MethodDelete, "/deleteStrategy/"+url.PathEscape(r.PathValue("name")), nil, "", "Failed to delete strategy")
}

// readUpload buffers a multipart body so it can be validated and then sent
// to the engine unchanged. validate returns a client-facing message for an
// invalid form.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request, validate func(*multipart.Form) string) ([]byte, string, bool) {
	contentType := r.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != "multipart/form-data" || params["boundary"] == "" {
		h.httpError(w, "Expected multipart/form-data", http.StatusBadRequest)
		return nil, "", false
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.httpError(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return nil, "", false
		}
		h.httpError(w, "Failed to read request body", http.StatusBadRequest)
		return nil, "", false
	}

	form, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(32 << 20)
	if err != nil {
		h.httpError(w, "Invalid multipart body", http.StatusBadRequest)
		return nil, "", false
	}
	defer form.RemoveAll()

	if msg := validate(form); msg != "" {
		h.httpError(w, msg, http.StatusBadRequest)
		return nil, "", false
	}
	return body, contentType, true
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// forward relays a request to the engine. Engine errors come back as
// {"error": <detail>} with the engine's status code.
func (h *Handlers) forward(w http.ResponseWriter, r *http.Request, method, path string, body io.Reader, contentType, fallback string) {
	log := h.log(r)

	endpoint, err := h.broker.Resolve(r.Context())
	if err != nil {
		log.Error("failed to resolve engine address", "error", err)
		h.httpError(w, "Engine unavailable", http.StatusBadGateway)
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), method, endpoint.URL()+path, body)
	if err != nil {
		h.httpError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if reqID := logger.RequestIDFromContext(r.Context()); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		log.Error("engine request failed", "method", method, "path", path, "error", err)
		h.httpError(w, "Engine unavailable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		log.Error("failed to read engine response", "path", path, "error", err)
		h.httpError(w, "Engine unavailable", http.StatusBadGateway)
		return
	}

	if resp.StatusCode >= http.StatusBadRequest {
		h.httpError(w, engineError(data, fallback), resp.StatusCode)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.StatusCode)
	w.Write(data)
}

// engineError extracts a message from an engine error body. FastAPI puts it
// in "detail", which is a string or a list of validation errors.
func engineError(body []byte, fallback string) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		if text := strings.TrimSpace(string(body)); text != "" {
			return text
		}
		return fallback
	}

	if len(payload.Detail) > 0 && string(payload.Detail) != "null" {
		var detail string
		if err := json.Unmarshal(payload.Detail, &detail); err == nil {
			return detail
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, payload.Detail); err == nil {
			return fmt.Sprintf("Invalid request: %s", compact.String())
		}
	}
	if payload.Error != "" {
		return payload.Error
	}
	return fallback
}
