package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backdesk/pkg/api"

	"github.com/spf13/viper"
)

func TestEngineControlCommands(t *testing.T) {
	for _, action := range []string{"start", "stop", "restart"} {
		t.Run(action, func(t *testing.T) {
			resetViper()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("expected POST method, got %s", r.Method)
				}
				if r.URL.Path != "/engine/"+action {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				if r.Header.Get("Authorization") != "Bearer test-token" {
					t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
				}
				json.NewEncoder(w).Encode(api.EngineStatusResponse{State: "RUNNING"})
			}))
			defer server.Close()

			viper.Set("url", server.URL)
			viper.Set("token", "test-token")

			output := execute(t, action)

			if !strings.Contains(output, "Engine "+action+" requested") || !strings.Contains(output, "RUNNING") {
				t.Errorf("unexpected output: %s", output)
			}
		})
	}
}

func TestRestartCommand_Unauthorized(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "" {
			t.Errorf("expected no Authorization header without a token, got %q", r.Header.Get("Authorization"))
		}
		http.Error(w, "Missing authorization header", http.StatusUnauthorized)
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "restart")

	if !strings.Contains(output, "Error (401): Missing authorization header") {
		t.Errorf("expected plain-text auth error, got: %s", output)
	}
}

func TestStartCommand_Conflict(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(api.ErrorResponse{
			Error: "invalid supervisor state: cannot start while RUNNING",
			Code:  "409",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	output := execute(t, "start")

	if !strings.Contains(output, "Error (409): invalid supervisor state: cannot start while RUNNING") {
		t.Errorf("unexpected output: %s", output)
	}
}

func TestURLAndVersionCommands(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		values := map[string]string{
			"/bridge/get-backend-url": "http://localhost:8000",
			"/bridge/get-app-version": "v1.4.0",
			"/bridge/get-platform":    "darwin",
		}
		value, ok := values[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Unknown channel", Code: "404"})
			return
		}
		json.NewEncoder(w).Encode(api.BridgeResponse{Channel: strings.TrimPrefix(r.URL.Path, "/bridge/"), Value: value})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	if output := execute(t, "url"); strings.TrimSpace(output) != "http://localhost:8000" {
		t.Errorf("unexpected url output: %q", output)
	}

	output := execute(t, "version")
	if !strings.Contains(output, "deskctl:") || !strings.Contains(output, "backdesk: v1.4.0 (darwin)") {
		t.Errorf("unexpected version output: %s", output)
	}
}

func TestVersionCommand_BackdeskUnavailable(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	viper.Set("url", url)

	output := execute(t, "version")
	if !strings.Contains(output, "deskctl:") || !strings.Contains(output, "backdesk: unavailable") {
		t.Errorf("unexpected version output: %s", output)
	}
}
