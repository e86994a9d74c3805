package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TestPurpose: Validates that log lines inside a span carry trace and span IDs.
// Scope: Unit Test
// Expected: The JSON line has trace_id, span_id and the service attribute.
// Test Case ID: LOG-01
func TestNew_StampsTraceContext(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "debug", Format: "json", ServiceName: "civicguard", Output: &buf, DisableOTel: true})

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	l.InfoContext(ctx, "inside span", RoleRequestID("rr-1"))
	span.End()

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, span.SpanContext().TraceID().String(), line["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), line["span_id"])
	assert.Equal(t, "civicguard", line["service"])
	assert.Equal(t, "rr-1", line["role_request_id"])
}

// TestPurpose: Validates level parsing and fanout filtering.
// Scope: Unit Test
// Expected: Below-level records are dropped; each enabled handler receives the record once.
// Test Case ID: LOG-02
func TestFanout_LevelsAndDelivery(t *testing.T) {
	var warnBuf, debugBuf bytes.Buffer
	warn := slog.NewJSONHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})
	debug := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	l := slog.New(NewFanoutHandler(warn, debug)).With(Component("test"))

	l.Debug("quiet")
	l.Warn("loud")

	assert.NotContains(t, warnBuf.String(), "quiet")
	assert.Contains(t, warnBuf.String(), "loud")
	assert.Contains(t, debugBuf.String(), "quiet")
	assert.Contains(t, debugBuf.String(), `"component":"test"`)

	var buf bytes.Buffer
	New(Config{Level: "bogus", Output: &buf, DisableOTel: true}).Debug("dropped")
	assert.Empty(t, buf.String())
}
