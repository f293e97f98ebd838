package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"promopush/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"warn", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"WARN", zapcore.WarnLevel},
		{"info", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
		{"verbose", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNew(t *testing.T) {
	l, err := New("debug")
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestContextFieldsAppendServiceName(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &SugaredLogger{SugaredLogger: zap.New(core).Sugar()}
	l.SetServiceName("promo-trigger")

	ctx := logging.WithBatchID(context.Background(), "b-42")
	l.InfowCtx(ctx, "batch dispatched", "records", 3)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "b-42", fields["batch_id"])
	assert.Equal(t, "promo-trigger", fields["service_name"])
	assert.EqualValues(t, 3, fields["records"])
}

func TestContextFieldsUseActiveSpanTraceID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &SugaredLogger{SugaredLogger: zap.New(core).Sugar()}

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.InfowCtx(ctx, "inside span")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, span.SpanContext().TraceID().String(), logs.All()[0].ContextMap()["trace_id"])
}

func TestExplicitTraceIDWins(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := &SugaredLogger{SugaredLogger: zap.New(core).Sugar()}

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	ctx = logging.WithTraceID(ctx, "explicit")

	l.InfowCtx(ctx, "msg")
	assert.Equal(t, "explicit", logs.All()[0].ContextMap()["trace_id"])
}
