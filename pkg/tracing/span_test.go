package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "run", "run-42")
	buildCtx, build := StartChildSpan(ctx, "build")
	_, tokenize := StartChildSpan(buildCtx, "tokenize")
	time.Sleep(time.Millisecond)
	tokenize.End()
	build.SetAttr("docs", 1400)
	build.End()
	_, query := StartChildSpan(ctx, "query")
	query.End()
	root.End()

	assert.Equal(t, "run-42", tokenize.TraceID())
	assert.Same(t, root, SpanFromContext(ctx))

	phases := root.Flatten()
	require.Len(t, phases, 4)
	assert.Equal(t, []string{"run", "run/build", "run/build/tokenize", "run/query"},
		[]string{phases[0].Path, phases[1].Path, phases[2].Path, phases[3].Path})
	assert.Equal(t, 2, phases[2].Depth)
	assert.GreaterOrEqual(t, phases[1].Duration, phases[2].Duration)

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	out := buf.String()
	assert.Equal(t, 4, strings.Count(out, "msg=span"))
	assert.Contains(t, out, "docs=1400")
	assert.Equal(t, 3, strings.Count(out, "parent_id="))
}

func TestEndIsIdempotentAndAttrsReplace(t *testing.T) {
	_, span := StartSpan(context.Background(), "write", "run-1")
	span.SetAttr("files", 1)
	span.SetAttr("files", 3)
	span.End()
	first := span.Duration()
	time.Sleep(2 * time.Millisecond)
	span.End()
	assert.Equal(t, first, span.Duration())

	var buf bytes.Buffer
	span.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	assert.Contains(t, buf.String(), "files=3")
	assert.NotContains(t, buf.String(), "files=1")
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Empty(t, span.TraceID())
	assert.Nil(t, SpanFromContext(context.Background()))
}
