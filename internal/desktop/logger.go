package desktop

import (
	"log/slog"
	"os"

	"github.com/wailsapp/wails/v2/pkg/logger"
)

// wailsLogger routes Wails' own log output through slog.
type wailsLogger struct {
	l *slog.Logger
}

var _ logger.Logger = (*wailsLogger)(nil)

func newWailsLogger(l *slog.Logger) *wailsLogger {
	return &wailsLogger{l: l.With("source", "wails")}
}

func (w *wailsLogger) Print(message string)   { w.l.Info(message) }
func (w *wailsLogger) Trace(message string)   { w.l.Debug(message) }
func (w *wailsLogger) Debug(message string)   { w.l.Debug(message) }
func (w *wailsLogger) Info(message string)    { w.l.Info(message) }
func (w *wailsLogger) Warning(message string) { w.l.Warn(message) }
func (w *wailsLogger) Error(message string)   { w.l.Error(message) }

func (w *wailsLogger) Fatal(message string) {
	w.l.Error(message)
	os.Exit(1)
}
