package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"backdesk/internal/bridge"
	"backdesk/internal/supervisor"
	"backdesk/pkg/api"
)

// Mock engine
type mockEngine struct {
	startErr   error
	stopErr    error
	restartErr error
	snapshot   supervisor.Snapshot
	stats      supervisor.ProcessStats
	statsErr   error

	// Spies
	calls []string
	ctxs  []context.Context
}

func (m *mockEngine) Start(ctx context.Context) error {
	m.calls = append(m.calls, "start")
	m.ctxs = append(m.ctxs, ctx)
	return m.startErr
}

func (m *mockEngine) Stop(ctx context.Context) error {
	m.calls = append(m.calls, "stop")
	m.ctxs = append(m.ctxs, ctx)
	return m.stopErr
}

func (m *mockEngine) Restart(ctx context.Context) error {
	m.calls = append(m.calls, "restart")
	m.ctxs = append(m.ctxs, ctx)
	return m.restartErr
}

func (m *mockEngine) Snapshot() supervisor.Snapshot { return m.snapshot }

func (m *mockEngine) Stats(ctx context.Context) (supervisor.ProcessStats, error) {
	return m.stats, m.statsErr
}

// Mock prober
type mockProber struct {
	err error
}

func (m *mockProber) Ready(ctx context.Context) error { return m.err }

func runningSnapshot() supervisor.Snapshot {
	code := 1
	return supervisor.Snapshot{
		State:               supervisor.StateRunning,
		Runtime:             "exec",
		HandleID:            "pid-4242",
		PID:                 4242,
		StartedAt:           time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Restarts:            2,
		ConsecutiveFailures: 0,
		LastExitCode:        &code,
	}
}

func newTestHandlers(engine *mockEngine, engineURL string) *Handlers {
	endpoint, err := bridge.ParseEndpoint(engineURL)
	if err != nil {
		panic(err)
	}
	broker := bridge.NewStaticBroker(endpoint)
	return New(engine, bridge.New(broker, "v1.2.0", "linux"), broker, &mockProber{})
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) api.ErrorResponse {
	t.Helper()
	var resp api.ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}
