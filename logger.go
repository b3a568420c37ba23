package pix2pix

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled reports false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called while pipelines on other goroutines are logging.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for pix2pix and its sub-packages.
// By default nothing is logged. Pass nil to restore the silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: per-cycle diagnostics (buffer sizes, tensor lengths)
//   - [slog.LevelInfo]: lifecycle events (pipeline created, closed)
//   - [slog.LevelWarn]: non-fatal issues (resource release errors)
//   - [slog.LevelError]: aborted inference cycles (shape mismatch, engine failure)
//
// Example:
//
//	pix2pix.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	// Engines of open pipelines follow the new logger.
	sinksMu.Lock()
	defer sinksMu.Unlock()
	for _, ls := range sinks {
		ls.SetLogger(l)
	}
}

// Logger returns the current logger. Sub-packages (engine/onnx, gpu,
// integration/...) call this to share one logger configuration.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by collaborators that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

// sinks holds the logger-aware engines of open pipelines.
var (
	sinksMu sync.Mutex
	sinks   = make(map[*Pipeline]loggerSetter)
)

// registerLogSink hands the current logger to v if v accepts one and keeps
// it updated by later SetLogger calls until unregisterLogSink.
func registerLogSink(p *Pipeline, v any) {
	ls, ok := v.(loggerSetter)
	if !ok {
		return
	}
	sinksMu.Lock()
	defer sinksMu.Unlock()
	ls.SetLogger(Logger())
	sinks[p] = ls
}

func unregisterLogSink(p *Pipeline) {
	sinksMu.Lock()
	defer sinksMu.Unlock()
	delete(sinks, p)
}
