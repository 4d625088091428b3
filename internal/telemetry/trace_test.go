package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// Not parallel: swaps the global tracer provider.
func TestWriter_FlushSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	sink := &fakeSink{insertErrs: []error{nil, errors.New("broken pipe")}}
	w, _ := newTestWriter(t, sink, Config{BatchSize: 100, MaxRetries: 1})
	ctx := context.Background()

	require.NoError(t, w.Record(ctx, event(0)))
	require.NoError(t, w.Flush(ctx))

	require.NoError(t, w.Record(ctx, event(1)))
	require.Error(t, w.Flush(ctx))

	ended := rec.Ended()
	require.Len(t, ended, 2)
	for _, s := range ended {
		assert.Equal(t, "telemetry.Flush", s.Name())
	}
	assert.Equal(t, codes.Unset, ended[0].Status().Code)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Contains(t, ended[1].Status().Description, "broken pipe")
}
