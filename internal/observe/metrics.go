// Package observe provides application-wide observability primitives for
// ppmusicbot: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all ppmusicbot metrics.
const meterName = "github.com/ppmusicbot/ppmusicbot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// SearchDuration tracks end-to-end search latency including album
	// expansion.
	SearchDuration metric.Float64Histogram

	// CatalogueDuration tracks the latency of individual catalogue calls. Use
	// with attribute.String("op", ...).
	CatalogueDuration metric.Float64Histogram

	// --- Counters ---

	// SearchOutcomes counts search results. Use with attribute:
	//   attribute.String("status", ...)
	SearchOutcomes metric.Int64Counter

	// CatalogueRequests counts catalogue API calls. Use with attributes:
	//   attribute.String("op", ...), attribute.String("status", ...)
	CatalogueRequests metric.Int64Counter

	// TelemetryFlushes counts batch inserts. Use with attribute:
	//   attribute.String("status", ...)
	TelemetryFlushes metric.Int64Counter

	// TelemetryReconnects counts reconnect loops. Use with attribute:
	//   attribute.String("status", ...)
	TelemetryReconnects metric.Int64Counter

	// --- Gauges ---

	// SuggestionsCached tracks the number of live suggestion cache entries.
	SuggestionsCached metric.Int64UpDownCounter

	// TelemetryBuffered tracks voice events waiting for the next flush.
	TelemetryBuffered metric.Int64UpDownCounter

	// QueuedTracks tracks queued items across all guilds.
	QueuedTracks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// catalogue round trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SearchDuration, err = m.Float64Histogram("ppmusicbot.search.duration",
		metric.WithDescription("Latency of a disambiguated search."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CatalogueDuration, err = m.Float64Histogram("ppmusicbot.catalogue.duration",
		metric.WithDescription("Latency of catalogue API calls by operation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.SearchOutcomes, err = m.Int64Counter("ppmusicbot.search.outcomes",
		metric.WithDescription("Total searches by outcome status."),
	); err != nil {
		return nil, err
	}
	if met.CatalogueRequests, err = m.Int64Counter("ppmusicbot.catalogue.requests",
		metric.WithDescription("Total catalogue API requests by operation and status."),
	); err != nil {
		return nil, err
	}
	if met.TelemetryFlushes, err = m.Int64Counter("ppmusicbot.telemetry.flushes",
		metric.WithDescription("Total voice-event batch inserts by status."),
	); err != nil {
		return nil, err
	}
	if met.TelemetryReconnects, err = m.Int64Counter("ppmusicbot.telemetry.reconnects",
		metric.WithDescription("Total telemetry reconnect loops by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.SuggestionsCached, err = m.Int64UpDownCounter("ppmusicbot.suggestions.cached",
		metric.WithDescription("Number of suggestion menus awaiting a selection."),
	); err != nil {
		return nil, err
	}
	if met.TelemetryBuffered, err = m.Int64UpDownCounter("ppmusicbot.telemetry.buffered",
		metric.WithDescription("Number of voice events waiting to be flushed."),
	); err != nil {
		return nil, err
	}
	if met.QueuedTracks, err = m.Int64UpDownCounter("ppmusicbot.queue.tracks",
		metric.WithDescription("Number of queued tracks across all guilds."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("ppmusicbot.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordSearch records one search outcome and its latency in seconds.
func (m *Metrics) RecordSearch(ctx context.Context, status string, seconds float64) {
	m.SearchDuration.Record(ctx, seconds)
	m.SearchOutcomes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordCatalogueRequest records a catalogue call counter increment and its
// latency with the standard attribute set.
func (m *Metrics) RecordCatalogueRequest(ctx context.Context, op, status string, seconds float64) {
	m.CatalogueRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
	m.CatalogueDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordFlush records a telemetry batch insert.
func (m *Metrics) RecordFlush(ctx context.Context, status string) {
	m.TelemetryFlushes.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordReconnect records the end of a telemetry reconnect loop.
func (m *Metrics) RecordReconnect(ctx context.Context, status string) {
	m.TelemetryReconnects.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}
