package observe

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q: data point with %s=%s not found", name, key, value)
	return 0
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestRecordSearch(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSearch(ctx, "match", 0.12)
	m.RecordSearch(ctx, "match", 0.08)
	m.RecordSearch(ctx, "ambiguous", 0.3)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "ppmusicbot.search.outcomes", "status", "match"); got != 2 {
		t.Errorf("match outcomes = %d, want 2", got)
	}
	if got := sumFor(t, rm, "ppmusicbot.search.outcomes", "status", "ambiguous"); got != 1 {
		t.Errorf("ambiguous outcomes = %d, want 1", got)
	}

	met := findMetric(rm, "ppmusicbot.search.duration")
	if met == nil {
		t.Fatal("search duration not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("search duration is not a histogram")
	}
	if len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 3 {
		t.Errorf("search duration data points = %+v, want one with count 3", hist.DataPoints)
	}
}

func TestRecordCatalogueRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCatalogueRequest(ctx, "search", "ok", 0.05)
	m.RecordCatalogueRequest(ctx, "search", "error", 1.5)
	m.RecordCatalogueRequest(ctx, "album", "ok", 0.02)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "ppmusicbot.catalogue.requests", "op", "album"); got != 1 {
		t.Errorf("album requests = %d, want 1", got)
	}
	if findMetric(rm, "ppmusicbot.catalogue.duration") == nil {
		t.Error("catalogue duration not found")
	}
}

func TestTelemetryCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFlush(ctx, "ok")
	m.RecordFlush(ctx, "ok")
	m.RecordFlush(ctx, "error")
	m.RecordReconnect(ctx, "exhausted")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "ppmusicbot.telemetry.flushes", "status", "ok"); got != 2 {
		t.Errorf("ok flushes = %d, want 2", got)
	}
	if got := sumFor(t, rm, "ppmusicbot.telemetry.reconnects", "status", "exhausted"); got != 1 {
		t.Errorf("exhausted reconnects = %d, want 1", got)
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	// UpDownCounters are additive, so we simulate Set(n) as Add(n).
	m.SuggestionsCached.Add(ctx, 3)
	m.SuggestionsCached.Add(ctx, -1)
	m.TelemetryBuffered.Add(ctx, 9)
	m.QueuedTracks.Add(ctx, 4)

	rm := collect(t, reader)

	gauges := []struct {
		name string
		want int64
	}{
		{"ppmusicbot.suggestions.cached", 2},
		{"ppmusicbot.telemetry.buffered", 9},
		{"ppmusicbot.queue.tracks", 4},
	}

	for _, tc := range gauges {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if len(sum.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "ppmusicbot.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
