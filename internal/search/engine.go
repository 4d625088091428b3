// Package search turns catalogue search results into something the bot can
// act on: a single confident track or album, a short list of suggestions for
// the user to choose from, or nothing.
//
// Ambiguous outcomes are kept in a [Cache] under the request ID (the Discord
// interaction ID) until the user picks one entry via [Engine.ResolveSelection]
// or the entry expires after [DefaultTTL].
//
// Typical usage:
//
//	eng, err := search.New(client, search.WithMetrics(observe.DefaultMetrics()))
//	out := eng.Search(ctx, "around the world", interactionID)
//	switch out.Status {
//	case search.StatusMatch:     // play out.Tracks[0] or out.Albums[0].Music
//	case search.StatusAmbiguous: // render a menu, later eng.ResolveSelection(...)
//	default:                     // nothing found
//	}
package search

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppmusicbot/ppmusicbot/internal/observe"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// ErrExpired is returned by [Engine.ResolveSelection] when no live suggestion
// set exists for the request ID, either because it expired, was already
// consumed, or never existed.
var ErrExpired = errors.New("search: suggestion set expired")

// Option configures an [Engine].
type Option func(*Engine)

// WithConfig sets the classification parameters. Defaults to [DefaultConfig].
func WithConfig(cfg Config) Option {
	return func(e *Engine) { e.initial = cfg }
}

// WithCache supplies the suggestion cache. By default a fresh [Cache] with
// [DefaultTTL] is created.
func WithCache(c *Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// WithMetrics enables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine classifies search results and tracks pending suggestion sets. It is
// safe for concurrent use; the cache is its only shared mutable state.
type Engine struct {
	client  catalogue.Client
	cache   *Cache
	metrics *observe.Metrics

	initial Config
	cfg     atomic.Pointer[Config]
}

// New creates an Engine backed by client. It returns an error if the
// configured thresholds are invalid.
func New(client catalogue.Client, opts ...Option) (*Engine, error) {
	if client == nil {
		return nil, errors.New("search: catalogue client must not be nil")
	}
	e := &Engine{client: client, initial: DefaultConfig()}
	for _, o := range opts {
		o(e)
	}
	if err := e.SetConfig(e.initial); err != nil {
		return nil, err
	}
	if e.cache == nil {
		var copts []CacheOption
		if e.metrics != nil {
			gauge := e.metrics.SuggestionsCached
			copts = append(copts, WithSizeObserver(func(d int64) {
				gauge.Add(context.Background(), d)
			}))
		}
		e.cache = NewCache(copts...)
	}
	return e, nil
}

// Config returns the classification parameters currently in effect.
func (e *Engine) Config() Config { return *e.cfg.Load() }

// SetConfig validates cfg and swaps it in for subsequent searches. Searches
// already in flight keep the parameters they started with.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("search: invalid config: %w", err)
	}
	e.cfg.Store(&cfg)
	return nil
}

// Cache returns the suggestion cache used by the engine.
func (e *Engine) Cache() *Cache { return e.cache }

// Search runs query against the catalogue and classifies the result. An
// ambiguous outcome is stored under requestID for a later
// [Engine.ResolveSelection]. Catalogue failures never escape as errors: they
// yield StatusFailed with Err set.
func (e *Engine) Search(ctx context.Context, query, requestID string) Outcome {
	return e.SearchFiltered(ctx, query, requestID, FilterAny)
}

// SearchFiltered is [Engine.Search] with the candidate lists restricted by
// filter before caching.
func (e *Engine) SearchFiltered(ctx context.Context, query, requestID string, filter Filter) Outcome {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "search.Search",
		trace.WithAttributes(
			attribute.String("search.request_id", requestID),
			attribute.String("search.filter", string(filter)),
		),
	)
	defer span.End()

	out := e.search(ctx, query, requestID, filter)
	e.finish(ctx, span, out, start)
	return out
}

func (e *Engine) search(ctx context.Context, query, requestID string, filter Filter) Outcome {
	if !filter.IsValid() && filter != "" {
		return failed(fmt.Errorf("search: unknown filter %q: %w", filter, catalogue.ErrInvalidArgument))
	}

	res, err := e.client.Search(ctx, query)
	if err != nil {
		observe.Logger(ctx).Warn("search: catalogue search failed", "query", query, "err", err)
		return failed(fmt.Errorf("search: query %q: %w", query, err))
	}

	out := filter.Apply(Classify(res, e.Config()))

	switch out.Status {
	case StatusMatch:
		if len(out.Albums) == 1 {
			album, err := e.expand(ctx, out.Albums[0])
			if err != nil {
				observe.Logger(ctx).Warn("search: album expansion failed", "album_id", out.Albums[0].ID, "err", err)
				return failed(err)
			}
			out.Albums[0] = album
		}
	case StatusAmbiguous:
		if err := ctx.Err(); err != nil {
			return failed(fmt.Errorf("search: abandoned before caching: %w", err))
		}
		e.cache.Put(requestID, out)
	}
	return out
}

// SearchRandom samples count random tracks. All of them are returned in a
// single StatusMatch outcome; nothing is cached. count outside
// 1..[catalogue.MaxRandomCount] fails with [catalogue.ErrInvalidArgument]
// before any catalogue call.
func (e *Engine) SearchRandom(ctx context.Context, count int) (Outcome, error) {
	if count < 1 || count > catalogue.MaxRandomCount {
		return Outcome{}, fmt.Errorf("search: random count %d out of range [1, %d]: %w",
			count, catalogue.MaxRandomCount, catalogue.ErrInvalidArgument)
	}

	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "search.SearchRandom",
		trace.WithAttributes(attribute.Int("search.count", count)),
	)
	defer span.End()

	var out Outcome
	res, err := e.client.SearchRandom(ctx, count)
	switch {
	case err != nil:
		observe.Logger(ctx).Warn("search: random sample failed", "count", count, "err", err)
		out = failed(fmt.Errorf("search: random sample: %w", err))
	case len(res.Tracks) == 0:
		out = noMatch()
	default:
		out = Outcome{Tracks: res.Tracks, Status: StatusMatch}
	}
	e.finish(ctx, span, out, start)

	if errors.Is(out.Err, catalogue.ErrInvalidArgument) {
		return Outcome{}, out.Err
	}
	return out, nil
}

// ResolveSelection consumes the suggestion set stored under requestID and
// returns the chosen entry as a StatusMatch outcome. The entry is removed
// whatever the result, so a second call for the same requestID fails with
// [ErrExpired]. A chosen album without tracks is expanded first.
func (e *Engine) ResolveSelection(ctx context.Context, requestID string, kind Kind, index int) (Outcome, error) {
	cached, ok := e.cache.Take(requestID)
	if !ok {
		return Outcome{}, fmt.Errorf("search: request %q: %w", requestID, ErrExpired)
	}

	switch kind {
	case KindTrack:
		if index < 0 || index >= len(cached.Tracks) {
			return Outcome{}, fmt.Errorf("search: track index %d out of range [0, %d): %w",
				index, len(cached.Tracks), catalogue.ErrInvalidArgument)
		}
		return matchTrack(cached.Tracks[index]), nil

	case KindAlbum:
		if index < 0 || index >= len(cached.Albums) {
			return Outcome{}, fmt.Errorf("search: album index %d out of range [0, %d): %w",
				index, len(cached.Albums), catalogue.ErrInvalidArgument)
		}
		album, err := e.expand(ctx, cached.Albums[index])
		if err != nil {
			return Outcome{}, err
		}
		return matchAlbum(album), nil
	}
	return Outcome{}, fmt.Errorf("search: unknown selection kind %q: %w", kind, catalogue.ErrInvalidArgument)
}

// expand loads the tracks of a if it has none yet.
func (e *Engine) expand(ctx context.Context, a catalogue.ScoredAlbum) (catalogue.ScoredAlbum, error) {
	if len(a.Music) > 0 {
		return a, nil
	}
	tracks, err := e.client.LoadAlbumTracks(ctx, a.ID)
	if err != nil {
		return a, fmt.Errorf("search: expand album %q: %w", a.ID, err)
	}
	a.Music = tracks
	return a, nil
}

func (e *Engine) finish(ctx context.Context, span trace.Span, out Outcome, start time.Time) {
	span.SetAttributes(
		attribute.String("search.status", out.Status.String()),
		attribute.Int("search.tracks", len(out.Tracks)),
		attribute.Int("search.albums", len(out.Albums)),
	)
	observe.FailSpan(span, out.Err)
	if e.metrics != nil {
		e.metrics.RecordSearch(ctx, out.Status.String(), time.Since(start).Seconds())
	}
}
