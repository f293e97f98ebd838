package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"promopush/internal/config"
)

func TestInitDisabledReturnsUsableProvider(t *testing.T) {
	tp, err := Init(config.TracingConfig{}, "svc")
	require.NoError(t, err)
	require.NotNil(t, tp)
	assert.NotNil(t, tp.Tracer("x"))
	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestInitEnabledRequiresEndpoint(t *testing.T) {
	_, err := Init(config.TracingConfig{Enabled: true}, "svc")
	assert.Error(t, err)
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), Sampler(config.SamplerConfig{Type: "ALWAYS_OFF"}).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(config.SamplerConfig{Type: "bogus"}).Description())
	assert.Equal(t,
		sdktrace.TraceIDRatioBased(0.25).Description(),
		Sampler(config.SamplerConfig{Type: "traceidratio", Param: 0.25}).Description())
}

func TestFailSetsErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	Fail(span, nil)
	Fail(span, errors.New("sink down"))
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "sink down", spans[0].Status().Description)
	assert.Len(t, spans[0].Events(), 1)
}
