// Package mock provides a test double for the catalogue.Client interface.
//
// Example:
//
//	c := &mock.Client{
//	    SearchResult: &catalogue.SearchResults{Tracks: []catalogue.ScoredTrack{{Score: 850}}},
//	    AlbumTracks:  map[string][]catalogue.Track{"a1": {{ID: "t1"}}},
//	}
package mock

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

var _ catalogue.Client = (*Client)(nil)

// Client is a mock implementation of catalogue.Client. All fields may be set
// before use; call records are safe to read after the calls have returned.
type Client struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SearchResult is returned by Search when SearchErr is nil.
	SearchResult *catalogue.SearchResults

	// SearchErr, if non-nil, is returned by Search.
	SearchErr error

	// RandomResult is returned by SearchRandom when RandomErr is nil.
	RandomResult *catalogue.SearchResults

	// RandomErr, if non-nil, is returned by SearchRandom.
	RandomErr error

	// AlbumTracks maps album IDs to the tracks LoadAlbumTracks returns. A
	// missing or empty entry yields catalogue.ErrEmptyAlbum.
	AlbumTracks map[string][]catalogue.Track

	// AlbumErr, if non-nil, is returned by LoadAlbumTracks.
	AlbumErr error

	// BaseURL is the prefix used by ResolvePlayableURI. Defaults to
	// "http://catalogue.test".
	BaseURL string

	// --- Call records ---

	// SearchCalls records the query of every Search call.
	SearchCalls []string

	// RandomCalls records the count of every SearchRandom call.
	RandomCalls []int

	// AlbumCalls records the album ID of every LoadAlbumTracks call.
	AlbumCalls []string
}

// Search implements catalogue.Client.
func (c *Client) Search(ctx context.Context, query string) (*catalogue.SearchResults, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.SearchCalls = append(c.SearchCalls, query)
	if c.SearchErr != nil {
		return nil, c.SearchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", catalogue.ErrNetwork, err)
	}
	if c.SearchResult == nil {
		return &catalogue.SearchResults{}, nil
	}
	return cloneResults(c.SearchResult), nil
}

// SearchRandom implements catalogue.Client, including the 1..100 range check.
func (c *Client) SearchRandom(_ context.Context, count int) (*catalogue.SearchResults, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if count < 1 || count > catalogue.MaxRandomCount {
		return nil, fmt.Errorf("mock: count %d: %w", count, catalogue.ErrInvalidArgument)
	}
	c.RandomCalls = append(c.RandomCalls, count)
	if c.RandomErr != nil {
		return nil, c.RandomErr
	}
	if c.RandomResult == nil {
		return &catalogue.SearchResults{}, nil
	}
	return cloneResults(c.RandomResult), nil
}

// LoadAlbumTracks implements catalogue.Client.
func (c *Client) LoadAlbumTracks(_ context.Context, albumID string) ([]catalogue.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.AlbumCalls = append(c.AlbumCalls, albumID)
	if c.AlbumErr != nil {
		return nil, c.AlbumErr
	}
	tracks := c.AlbumTracks[albumID]
	if len(tracks) == 0 {
		return nil, fmt.Errorf("mock: album %q: %w", albumID, catalogue.ErrEmptyAlbum)
	}
	out := make([]catalogue.Track, len(tracks))
	copy(out, tracks)
	return out, nil
}

// ResolvePlayableURI implements catalogue.Client.
func (c *Client) ResolvePlayableURI(track catalogue.Track) (*url.URL, error) {
	f, ok := track.PrimaryFile()
	if !ok {
		return nil, fmt.Errorf("mock: track %q: %w", track.ID, catalogue.ErrInvalidArgument)
	}
	base := c.BaseURL
	if base == "" {
		base = "http://catalogue.test"
	}
	return url.Parse(base + "/file/createMusicStream/" + f.ID)
}

// AlbumCallCount returns the number of LoadAlbumTracks calls so far.
func (c *Client) AlbumCallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.AlbumCalls)
}

// cloneResults copies the top-level slices so callers can mutate the result
// without touching the configured response.
func cloneResults(r *catalogue.SearchResults) *catalogue.SearchResults {
	out := &catalogue.SearchResults{
		Tracks:  append([]catalogue.ScoredTrack(nil), r.Tracks...),
		Albums:  append([]catalogue.ScoredAlbum(nil), r.Albums...),
		Artists: append([]catalogue.ScoredArtist(nil), r.Artists...),
	}
	return out
}
