// Package logger configures log/slog for the harness. Records logged with a
// context carrying a run ID are tagged with run_id automatically.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type runIDKey struct{}

var level = new(slog.LevelVar)

// Setup installs the default logger on stderr; stdout is reserved for
// evaluator output.
func Setup(lvl string, format string) {
	slog.SetDefault(New(os.Stderr, lvl, format))
}

// New builds a logger writing to w without installing it as the default.
// Every logger built here shares one level, adjustable with SetLevel.
func New(w io.Writer, lvl string, format string) *slog.Logger {
	SetLevel(lvl)
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(runIDHandler{h})
}

// SetLevel accepts slog level names in any case ("debug", "WARN", "info+2");
// anything unparsable means info.
func SetLevel(lvl string) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(lvl)); err != nil {
		l = slog.LevelInfo
	}
	level.Set(l)
}

func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunID(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey{}).(string)
	return runID
}

// WithComponent returns the default logger tagged with component. It is
// resolved at call time, so constructors see the logger installed by Setup.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

type runIDHandler struct {
	slog.Handler
}

func (h runIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if runID := RunID(ctx); runID != "" {
		r.AddAttrs(slog.String("run_id", runID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h runIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return runIDHandler{h.Handler.WithAttrs(attrs)}
}

func (h runIDHandler) WithGroup(name string) slog.Handler {
	return runIDHandler{h.Handler.WithGroup(name)}
}
