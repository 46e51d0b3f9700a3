package desktop

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"backdesk/internal/bridge"
	"backdesk/internal/host"
)

type mockSupervisor struct {
	mu    sync.Mutex
	stops int
}

func (m *mockSupervisor) Start(ctx context.Context) error { return nil }

func (m *mockSupervisor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestApp(goos string) (*App, *mockSupervisor) {
	br := bridge.New(bridge.NewStaticBroker(bridge.Endpoint{Scheme: "http", Host: "localhost", Port: 8000}), "v0.3.1", goos)
	app := NewApp().WithBridge(br).WithLogger(discardLogger())
	sup := &mockSupervisor{}
	h := host.New(sup, app, app, host.Config{GOOS: goos}, discardLogger())
	app.WithHost(h)
	return app, sup
}

func TestBoundMethods(t *testing.T) {
	app, _ := newTestApp("linux")

	url, err := app.GetBackendURL()
	if err != nil {
		t.Fatalf("GetBackendURL failed: %v", err)
	}
	if url != "http://localhost:8000" {
		t.Errorf("expected http://localhost:8000, got %s", url)
	}
	if v := app.GetAppVersion(); v != "v0.3.1" {
		t.Errorf("expected v0.3.1, got %s", v)
	}
	if p := app.GetPlatform(); p != "linux" {
		t.Errorf("expected linux, got %s", p)
	}
}

func TestCreateWindow_BeforeStartup(t *testing.T) {
	app, _ := newTestApp("linux")

	_, err := app.CreateWindow(context.Background())
	if !errors.Is(err, ErrNotStarted) {
		t.Errorf("expected ErrNotStarted, got %v", err)
	}
	// Must not reach the Wails runtime without its context
	app.Quit()
	app.Show()
}

func TestBeforeClose_StopsEngineOnce(t *testing.T) {
	app, sup := newTestApp("linux")

	if prevent := app.beforeClose(context.Background()); prevent {
		t.Error("closing must not be prevented")
	}
	// all-windows-closed and before-quit both stop; the supervisor's Stop is idempotent
	if sup.stops != 2 {
		t.Errorf("expected 2 stop calls, got %d", sup.stops)
	}

	app.beforeClose(context.Background())
	if sup.stops != 2 {
		t.Errorf("expected repeated close to be ignored, got %d stops", sup.stops)
	}

	app.shutdown(context.Background())
	if sup.stops != 3 {
		t.Errorf("expected shutdown to stop the engine, got %d stops", sup.stops)
	}
}

func TestDevServerProxy(t *testing.T) {
	dev := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>dev " + r.URL.Path + "</html>"))
	}))
	defer dev.Close()

	proxy, err := devServerProxy(dev.URL, discardLogger())
	if err != nil {
		t.Fatalf("devServerProxy failed: %v", err)
	}

	rr := httptest.NewRecorder()
	proxy.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/backtests", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "<html>dev /backtests</html>" {
		t.Errorf("unexpected body: %s", rr.Body.String())
	}
}

func TestDevServerProxy_Unavailable(t *testing.T) {
	dev := httptest.NewServer(http.NotFoundHandler())
	url := dev.URL
	dev.Close()

	var logs bytes.Buffer
	proxy, err := devServerProxy(url, slog.New(slog.NewTextHandler(&logs, nil)))
	if err != nil {
		t.Fatalf("devServerProxy failed: %v", err)
	}

	rr := httptest.NewRecorder()
	proxy.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rr.Code)
	}
	if !strings.Contains(logs.String(), "failed to load page") {
		t.Errorf("expected load failure to be logged, got: %s", logs.String())
	}
}

func TestDevServerProxy_InvalidURL(t *testing.T) {
	if _, err := devServerProxy("localhost", discardLogger()); err == nil {
		t.Error("expected error for url without scheme")
	}
}

func TestAssetOptions_Packaged(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>out</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	app, _ := newTestApp("windows")

	opts, err := app.assetOptions(Options{FrontendDir: dir})
	if err != nil {
		t.Fatalf("assetOptions failed: %v", err)
	}
	if opts.Handler != nil {
		t.Error("packaged mode must not proxy")
	}
	data, err := fs.ReadFile(opts.Assets, "index.html")
	if err != nil {
		t.Fatalf("reading index.html: %v", err)
	}
	if string(data) != "<html>out</html>" {
		t.Errorf("unexpected index.html: %s", data)
	}
}

func TestAssetOptions_Development(t *testing.T) {
	app, _ := newTestApp("linux")

	opts, err := app.assetOptions(Options{Development: true, DevServerURL: "http://localhost:3000"})
	if err != nil {
		t.Fatalf("assetOptions failed: %v", err)
	}
	if opts.Handler == nil || opts.Assets != nil {
		t.Error("development mode must proxy to the dev server")
	}
}

func TestWailsLogger(t *testing.T) {
	var buf bytes.Buffer
	l := newWailsLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	l.Info("window ready")
	l.Warning("slow asset")
	l.Trace("ipc call")

	out := buf.String()
	for _, want := range []string{"level=INFO msg=\"window ready\"", "level=WARN msg=\"slow asset\"", "level=DEBUG msg=\"ipc call\"", "source=wails"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}
