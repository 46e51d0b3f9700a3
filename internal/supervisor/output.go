package supervisor

import (
	"bytes"
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// maxLineLength splits pathological lines that never end.
const maxLineLength = 64 * 1024

// lineWriter turns the engine's raw output chunks into one log record per
// line. Lines over the rate limit are counted and reported in a summary.
type lineWriter struct {
	mu      sync.Mutex
	logger  *slog.Logger
	stream  string
	limiter *rate.Limiter
	onDrop  func(int64)

	buf     []byte
	dropped int64
}

func newLineWriter(logger *slog.Logger, stream string, limiter *rate.Limiter, onDrop func(int64)) *lineWriter {
	return &lineWriter{
		logger:  logger,
		stream:  stream,
		limiter: limiter,
		onDrop:  onDrop,
	}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	for len(w.buf) >= maxLineLength {
		w.emit(w.buf[:maxLineLength])
		w.buf = w.buf[maxLineLength:]
	}
	// Keep the backing array from growing without bound
	if len(w.buf) == 0 {
		w.buf = nil
	}
	return len(p), nil
}

// Flush emits a trailing partial line and any pending drop summary.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
	w.reportDropped()
}

// Dropped returns the number of lines suppressed since the last summary.
func (w *lineWriter) Dropped() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dropped
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	if w.limiter != nil && !w.limiter.Allow() {
		w.dropped++
		return
	}
	w.reportDropped()
	w.logger.Info(string(line), "source", "engine", "stream", w.stream)
}

func (w *lineWriter) reportDropped() {
	if w.dropped == 0 {
		return
	}
	w.logger.Log(context.Background(), slog.LevelWarn, "engine output throttled",
		"stream", w.stream,
		"dropped_lines", w.dropped,
	)
	if w.onDrop != nil {
		w.onDrop(w.dropped)
	}
	w.dropped = 0
}
