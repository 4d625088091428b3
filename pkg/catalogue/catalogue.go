// Package catalogue defines the Client interface for the external music
// catalogue API and the scored result types it returns.
//
// The catalogue ranks results upstream: every track, album and artist in a
// [SearchResults] carries a numeric Score, and each list arrives sorted by
// descending score. Nothing in this package re-ranks or filters results; the
// disambiguation logic that decides what to play lives in internal/search.
//
// Implementations must be safe for concurrent use.
package catalogue

import (
	"context"
	"errors"
	"net/url"
)

// Sentinel errors returned (wrapped) by [Client] implementations. Use
// [errors.Is] to test for them.
var (
	// ErrNetwork reports a transport failure or a non-2xx HTTP status.
	ErrNetwork = errors.New("catalogue: network error")

	// ErrDecode reports an upstream payload that could not be parsed into the
	// expected shape.
	ErrDecode = errors.New("catalogue: decode error")

	// ErrInvalidArgument reports an out-of-range input such as a random sample
	// count outside 1..MaxRandomCount.
	ErrInvalidArgument = errors.New("catalogue: invalid argument")

	// ErrEmptyAlbum reports an album whose track listing came back empty when
	// expansion was required.
	ErrEmptyAlbum = errors.New("catalogue: album does not contain any tracks")
)

// MaxRandomCount is the upper bound accepted by [Client.SearchRandom].
const MaxRandomCount = 100

// Client is the abstraction over the catalogue HTTP API.
//
// No method retries internally; every call is independently retryable by the
// caller.
type Client interface {
	// Search runs a scored search for query. Fails with [ErrNetwork] on
	// transport failure or non-2xx status and [ErrDecode] if the body cannot
	// be parsed.
	Search(ctx context.Context, query string) (*SearchResults, error)

	// SearchRandom samples count random tracks. count must be in
	// 1..[MaxRandomCount]; otherwise [ErrInvalidArgument] is returned without
	// any network call. Sampled tracks carry a zero score.
	SearchRandom(ctx context.Context, count int) (*SearchResults, error)

	// LoadAlbumTracks returns the tracks of albumID ordered by track number.
	// Fails with [ErrEmptyAlbum] if the album has no tracks.
	LoadAlbumTracks(ctx context.Context, albumID string) ([]Track, error)

	// ResolvePlayableURI builds the streaming URL for track from its primary
	// file reference. It is pure and makes no network call.
	ResolvePlayableURI(track Track) (*url.URL, error)
}
