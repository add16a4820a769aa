// Package tracing records the phases of a run as a tree of timed spans
// carried through context. At the end of a run the tree is logged under the
// run ID and flattened into per-phase durations.
package tracing

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

type spanKey struct{}

// Span is one timed phase. A span is safe for concurrent use; children may
// be started from several goroutines under the same parent.
type Span struct {
	name    string
	traceID string
	id      string
	parent  *Span

	mu       sync.Mutex
	start    time.Time
	end      time.Time
	attrs    []slog.Attr
	children []*Span
}

func newSpan(name, traceID string, parent *Span) *Span {
	return &Span{
		name:    name,
		traceID: traceID,
		id:      uuid.NewString()[:8],
		parent:  parent,
		start:   time.Now(),
	}
}

// StartSpan opens a root span for traceID and stores it in the returned
// context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID, nil)
	return context.WithValue(ctx, spanKey{}, span), span
}

// StartChildSpan opens a span under the one in ctx. Without a parent the new
// span is a detached root with no trace ID.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return StartSpan(ctx, name, "")
	}
	child := newSpan(name, parent.traceID, parent)
	parent.mu.Lock()
	parent.children = append(parent.children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, spanKey{}, child), child
}

func SpanFromContext(ctx context.Context) *Span {
	span, _ := ctx.Value(spanKey{}).(*Span)
	return span
}

func (s *Span) Name() string    { return s.name }
func (s *Span) TraceID() string { return s.traceID }

// End closes the span. Only the first call counts.
func (s *Span) End() {
	s.mu.Lock()
	if s.end.IsZero() {
		s.end = time.Now()
	}
	s.mu.Unlock()
}

// Duration is the closed span's length, or the time elapsed so far while it
// is still open.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.durationLocked()
}

func (s *Span) durationLocked() time.Duration {
	if s.end.IsZero() {
		return time.Since(s.start)
	}
	return s.end.Sub(s.start)
}

// SetAttr attaches an attribute; a repeated key replaces the earlier value.
func (s *Span) SetAttr(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.attrs {
		if s.attrs[i].Key == key {
			s.attrs[i].Value = slog.AnyValue(value)
			return
		}
	}
	s.attrs = append(s.attrs, slog.Any(key, value))
}

type snapshot struct {
	duration time.Duration
	attrs    []slog.Attr
	children []*Span
}

func (s *Span) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		duration: s.durationLocked(),
		attrs:    append([]slog.Attr(nil), s.attrs...),
		children: append([]*Span(nil), s.children...),
	}
}

// Phase is one span of a flattened tree, named by its path from the root.
type Phase struct {
	Path     string
	Depth    int
	Duration time.Duration
}

// Flatten walks the tree depth-first, children in the order they started.
func (s *Span) Flatten() []Phase {
	var out []Phase
	s.walk(func(sp *Span, path string, depth int, snap snapshot) {
		out = append(out, Phase{Path: path, Depth: depth, Duration: snap.duration})
	})
	return out
}

// Log writes the tree to logger, one record per span.
func (s *Span) Log(logger *slog.Logger) {
	s.walk(func(sp *Span, path string, depth int, snap snapshot) {
		args := []any{
			slog.String("trace_id", sp.traceID),
			slog.String("span_id", sp.id),
			slog.String("span", sp.name),
			slog.Int("depth", depth),
			slog.Int64("duration_ms", snap.duration.Milliseconds()),
		}
		if sp.parent != nil {
			args = append(args, slog.String("parent_id", sp.parent.id))
		}
		for _, a := range snap.attrs {
			args = append(args, a)
		}
		logger.Info("span", args...)
	})
}

func (s *Span) walk(visit func(sp *Span, path string, depth int, snap snapshot)) {
	var rec func(sp *Span, prefix string, depth int)
	rec = func(sp *Span, prefix string, depth int) {
		path := sp.name
		if prefix != "" {
			path = prefix + "/" + sp.name
		}
		snap := sp.snapshot()
		visit(sp, path, depth, snap)
		// children are appended as they start, so slice order is start order
		for _, child := range snap.children {
			rec(child, path, depth+1)
		}
	}
	rec(s, "", 0)
}
