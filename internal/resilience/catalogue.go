package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/ppmusicbot/ppmusicbot/internal/observe"
	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// ErrAllFailed is returned when every backend of a [Catalogue] fails or has an
// open circuit breaker.
var ErrAllFailed = errors.New("all catalogue backends failed")

// Compile-time interface assertion.
var _ catalogue.Client = (*Catalogue)(nil)

// backend pairs a catalogue client with its dedicated circuit breaker.
type backend struct {
	name    string
	client  catalogue.Client
	breaker *CircuitBreaker
}

// Catalogue implements [catalogue.Client] on top of a primary backend and
// zero or more mirrors. Each backend has its own circuit breaker; when the
// primary fails with a backend error or its breaker is open, the next
// healthy mirror is tried. Caller errors such as
// [catalogue.ErrInvalidArgument] and [catalogue.ErrEmptyAlbum] are returned
// immediately without failover.
//
// Every attempt is recorded on the catalogue request metrics.
type Catalogue struct {
	backends []backend
	cfg      CircuitBreakerConfig
	metrics  *observe.Metrics
}

// NewCatalogue creates a [Catalogue] with primary as the preferred backend.
// A nil metrics uses [observe.DefaultMetrics].
func NewCatalogue(primary catalogue.Client, primaryName string, cfg CircuitBreakerConfig, metrics *observe.Metrics) *Catalogue {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	c := &Catalogue{cfg: cfg, metrics: metrics}
	c.AddMirror(primaryName, primary)
	return c
}

// AddMirror registers an additional backend. Mirrors are tried in the order
// they are added, after the primary. AddMirror must not be called
// concurrently with requests.
func (c *Catalogue) AddMirror(name string, client catalogue.Client) {
	cbCfg := c.cfg
	cbCfg.Name = name
	c.backends = append(c.backends, backend{
		name:    name,
		client:  client,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Breakers returns the circuit breaker of every backend in failover order.
func (c *Catalogue) Breakers() []*CircuitBreaker {
	out := make([]*CircuitBreaker, len(c.backends))
	for i := range c.backends {
		out[i] = c.backends[i].breaker
	}
	return out
}

// Check reports an error when no backend accepts calls. It is meant for the
// readiness probe.
func (c *Catalogue) Check(context.Context) error {
	for i := range c.backends {
		if c.backends[i].breaker.State() != StateOpen {
			return nil
		}
	}
	return fmt.Errorf("resilience: %w", ErrCircuitOpen)
}

// Search implements [catalogue.Client].
func (c *Catalogue) Search(ctx context.Context, query string) (*catalogue.SearchResults, error) {
	return execute(ctx, c, "search", func(cl catalogue.Client) (*catalogue.SearchResults, error) {
		return cl.Search(ctx, query)
	})
}

// SearchRandom implements [catalogue.Client].
func (c *Catalogue) SearchRandom(ctx context.Context, count int) (*catalogue.SearchResults, error) {
	return execute(ctx, c, "search_random", func(cl catalogue.Client) (*catalogue.SearchResults, error) {
		return cl.SearchRandom(ctx, count)
	})
}

// LoadAlbumTracks implements [catalogue.Client].
func (c *Catalogue) LoadAlbumTracks(ctx context.Context, albumID string) ([]catalogue.Track, error) {
	return execute(ctx, c, "load_album", func(cl catalogue.Client) ([]catalogue.Track, error) {
		return cl.LoadAlbumTracks(ctx, albumID)
	})
}

// ResolvePlayableURI implements [catalogue.Client]. URIs are built locally, so
// it uses the first backend whose breaker is not open without recording a
// request.
func (c *Catalogue) ResolvePlayableURI(track catalogue.Track) (*url.URL, error) {
	for i := range c.backends {
		if c.backends[i].breaker.State() != StateOpen {
			return c.backends[i].client.ResolvePlayableURI(track)
		}
	}
	return c.backends[0].client.ResolvePlayableURI(track)
}

// execute tries fn against each backend in order until one succeeds or
// returns a caller error. It is a package-level function because Go does not
// support method-level type parameters.
func execute[R any](ctx context.Context, c *Catalogue, op string, fn func(catalogue.Client) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range c.backends {
		b := &c.backends[i]
		var result R
		start := time.Now()
		err := b.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(b.client)
			return innerErr
		})
		if !errors.Is(err, ErrCircuitOpen) {
			c.metrics.RecordCatalogueRequest(ctx, op, requestStatus(err), time.Since(start).Seconds())
		}
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, ErrCircuitOpen) && !IsBackendFailure(err) {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping catalogue backend (circuit open)", "backend", b.name, "op", op)
			continue
		}
		if i < len(c.backends)-1 {
			slog.Warn("catalogue backend failed, trying next", "backend", b.name, "op", op, "err", err)
		}
	}
	if len(c.backends) == 1 && !errors.Is(lastErr, ErrCircuitOpen) {
		return zero, lastErr
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

// requestStatus maps a call result onto the status attribute of the
// catalogue request counter.
func requestStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, catalogue.ErrNetwork):
		return "network_error"
	case errors.Is(err, catalogue.ErrDecode):
		return "decode_error"
	case errors.Is(err, catalogue.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, catalogue.ErrEmptyAlbum):
		return "empty_album"
	default:
		return "error"
	}
}
