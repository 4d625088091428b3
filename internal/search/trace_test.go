package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue/mock"
)

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

// Not parallel: swaps the global tracer provider.
func TestEngine_SearchSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	ambiguous := newEngine(t, &mock.Client{SearchResult: &catalogue.SearchResults{
		Tracks: tracks(500, 400),
		Albums: albums(500),
	}})
	ambiguous.Search(context.Background(), "q", "req-ambiguous")

	broken := newEngine(t, &mock.Client{SearchErr: catalogue.ErrNetwork})
	broken.Search(context.Background(), "q", "req-failed")

	ended := rec.Ended()
	require.Len(t, ended, 2)

	ok := ended[0]
	assert.Equal(t, "search.Search", ok.Name())
	attrs := spanAttrs(ok)
	assert.Equal(t, "req-ambiguous", attrs["search.request_id"].AsString())
	assert.Equal(t, StatusAmbiguous.String(), attrs["search.status"].AsString())
	assert.Equal(t, int64(2), attrs["search.tracks"].AsInt64())
	assert.Equal(t, int64(1), attrs["search.albums"].AsInt64())
	assert.Equal(t, codes.Unset, ok.Status().Code)

	failed := ended[1]
	attrs = spanAttrs(failed)
	assert.Equal(t, "req-failed", attrs["search.request_id"].AsString())
	assert.Equal(t, StatusFailed.String(), attrs["search.status"].AsString())
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Contains(t, failed.Status().Description, catalogue.ErrNetwork.Error())
	require.Len(t, failed.Events(), 1)
	assert.Equal(t, "exception", failed.Events()[0].Name)
}
