package supervisor

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Restarter is the part of the supervisor the reload watcher drives.
type Restarter interface {
	Restart(ctx context.Context) error
	Snapshot() Snapshot
}

// Watcher restarts the engine when its Python sources change. It is meant
// for development trees only.
type Watcher struct {
	target   Restarter
	root     string
	debounce time.Duration
	logger   *slog.Logger

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time
	reloads int
}

// skipDirs are never watched.
var skipDirs = map[string]bool{
	"venv":         true,
	".venv":        true,
	"__pycache__":  true,
	".git":         true,
	"node_modules": true,
	".next":        true,
	"out":          true,
	"dist":         true,
	"build":        true,
}

// NewWatcher creates a watcher for every directory below root.
func NewWatcher(target Restarter, root string, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	w := &Watcher{
		target:   target,
		root:     root,
		debounce: debounce,
		logger:   logger.With("component", "reload"),
		watcher:  fw,
		pending:  make(map[string]time.Time),
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return fw.Add(path)
	})
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", root, err)
	}
	return w, nil
}

// Run processes events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("watching engine sources", "root", w.root)

	tick := time.NewTicker(w.debounce / 4)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)

		case <-tick.C:
			w.flush(ctx)
		}
	}
}

// Reloads returns how many restarts the watcher has triggered.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// New directories need their own watch
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() && !skipDirs[info.Name()] {
			if err := w.watcher.Add(event.Name); err != nil {
				w.logger.Warn("failed to watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".py") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

// flush restarts the engine once no event has arrived for the debounce period.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	var latest time.Time
	for _, t := range w.pending {
		if t.After(latest) {
			latest = t
		}
	}
	if time.Since(latest) < w.debounce {
		w.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(w.pending))
	for path := range w.pending {
		changed = append(changed, path)
	}
	w.pending = make(map[string]time.Time)
	w.mu.Unlock()

	// A deliberately stopped engine stays stopped
	if w.target.Snapshot().State == StateStopped {
		w.logger.Debug("engine stopped, ignoring source change", "files", len(changed))
		return
	}

	w.logger.Info("engine sources changed, restarting", "files", len(changed))
	if err := w.target.Restart(ctx); err != nil {
		w.logger.Error("reload restart failed", "error", err)
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()
}
