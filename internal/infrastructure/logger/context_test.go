package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger(buf *bytes.Buffer) *zap.Logger {
	encoder := zapcore.NewJSONEncoder(zapcore.EncoderConfig{MessageKey: "msg", LevelKey: "level", EncodeLevel: zapcore.LowercaseLevelEncoder})
	return zap.New(zapcore.NewCore(encoder, zapcore.AddSync(buf), zapcore.DebugLevel))
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	return out
}

func TestFromContext(t *testing.T) {
	t.Run("returns attached logger", func(t *testing.T) {
		l := zap.NewExample()
		assert.Same(t, l, FromContext(WithContext(context.Background(), l)))
	})

	t.Run("returns no-op logger when missing", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
	})
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	base := newBufferLogger(&buf)

	ctx, l := WithRun(context.Background(), base, "run-1", "observe")

	assert.Equal(t, "run-1", GetRunID(ctx))
	assert.Equal(t, "observe", GetMode(ctx))
	assert.Same(t, l, FromContext(ctx))

	l.Info("Reconcile run started")
	line := decodeLine(t, &buf)
	assert.Equal(t, "run-1", line["run_id"])
	assert.Equal(t, "observe", line["mode"])
}

func TestContextValues_Missing(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetRunID(ctx))
	assert.Empty(t, GetMode(ctx))
}

func TestWithTraceContext(t *testing.T) {
	base := zap.NewNop()

	t.Run("no span keeps logger", func(t *testing.T) {
		assert.Same(t, base, WithTraceContext(context.Background(), base))
	})

	t.Run("valid span adds ids", func(t *testing.T) {
		var buf bytes.Buffer
		traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
		spanID, _ := trace.SpanIDFromHex("0102030405060708")
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		WithTraceContext(ctx, newBufferLogger(&buf)).Info("traced")

		line := decodeLine(t, &buf)
		assert.Equal(t, traceID.String(), line["trace_id"])
		assert.Equal(t, spanID.String(), line["span_id"])
	})
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), newBufferLogger(&buf))
	ctx = WithRequestID(ctx, "req-9")

	L(ctx).With(zap.String("external_id", "00123")).Warn("Entry not matched")

	line := decodeLine(t, &buf)
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "Entry not matched", line["msg"])
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, "00123", line["external_id"])
}

func TestContextLogger_WithoutLogger(t *testing.T) {
	cl := L(context.Background())

	assert.NotPanics(t, func() {
		cl.Debug("d")
		cl.Info("i")
		cl.Error("e")
		_ = cl.Zap()
	})
}
