package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeRestarter struct {
	mu       sync.Mutex
	state    State
	restarts int
}

func (f *fakeRestarter) Restart(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts++
	return nil
}

func (f *fakeRestarter) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{State: f.state}
}

func (f *fakeRestarter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.restarts
}

func startWatcher(t *testing.T, target Restarter, root string) *Watcher {
	t.Helper()
	w, err := NewWatcher(target, root, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return w
}

func TestWatcher_RestartsOnPythonChange(t *testing.T) {
	root := t.TempDir()
	target := &fakeRestarter{state: StateRunning}
	w := startWatcher(t, target, root)

	// Several rapid writes collapse into one restart
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(root, "server.py"), []byte("app = None\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	waitFor(t, "restart", func() bool { return target.count() == 1 })
	time.Sleep(150 * time.Millisecond)
	if target.count() != 1 {
		t.Errorf("expected 1 debounced restart, got %d", target.count())
	}
	if w.Reloads() != 1 {
		t.Errorf("expected 1 reload, got %d", w.Reloads())
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	target := &fakeRestarter{state: StateRunning}
	startWatcher(t, target, root)

	os.WriteFile(filepath.Join(root, "results.csv"), []byte("a,b\n"), 0o644)
	time.Sleep(200 * time.Millisecond)

	if target.count() != 0 {
		t.Errorf("expected no restart, got %d", target.count())
	}
}

func TestWatcher_SkipsStoppedEngine(t *testing.T) {
	root := t.TempDir()
	target := &fakeRestarter{state: StateStopped}
	startWatcher(t, target, root)

	os.WriteFile(filepath.Join(root, "strategy.py"), []byte("x = 1\n"), 0o644)
	time.Sleep(200 * time.Millisecond)

	if target.count() != 0 {
		t.Errorf("expected no restart of a stopped engine, got %d", target.count())
	}
}

func TestWatcher_SkipsVenv(t *testing.T) {
	root := t.TempDir()
	venv := filepath.Join(root, "venv", "lib")
	if err := os.MkdirAll(venv, 0o755); err != nil {
		t.Fatal(err)
	}
	target := &fakeRestarter{state: StateRunning}
	startWatcher(t, target, root)

	os.WriteFile(filepath.Join(venv, "site.py"), []byte("x = 1\n"), 0o644)
	time.Sleep(200 * time.Millisecond)

	if target.count() != 0 {
		t.Errorf("expected venv changes to be ignored, got %d", target.count())
	}
}

func TestWatcher_SkipsFrontendBuildOutput(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{".next", "out", "dist"} {
		if err := os.MkdirAll(filepath.Join(root, dir, "server"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	target := &fakeRestarter{state: StateRunning}
	w := startWatcher(t, target, root)

	for _, path := range w.watcher.WatchList() {
		if path != root {
			t.Errorf("expected only the root to be watched, also watching %s", path)
		}
	}

	os.WriteFile(filepath.Join(root, ".next", "server", "chunk.py"), []byte("x = 1\n"), 0o644)
	time.Sleep(200 * time.Millisecond)

	if target.count() != 0 {
		t.Errorf("expected build output changes to be ignored, got %d", target.count())
	}
}
