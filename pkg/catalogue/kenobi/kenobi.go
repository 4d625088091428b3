// Package kenobi implements catalogue.Client against the Kenobi music API.
//
// Endpoints used:
//
//   - POST {base}/music/search                                   scored search
//   - GET  {base}/music?SortBy=Random&Limit=N                    random sample
//   - GET  {base}/music?AlbumId=..&Limit=0&SortBy=TrackNumber..  album expansion
//   - {base}/file/createMusicStream/{fileID}                     streaming URL
//
// Typical usage:
//
//	c, err := kenobi.New("https://api.example.com",
//	    kenobi.WithTimeout(10*time.Second),
//	    kenobi.WithRateLimit(5, 10),
//	)
//	results, err := c.Search(ctx, "daft punk")
package kenobi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// Compile-time interface assertion.
var _ catalogue.Client = (*Client)(nil)

const (
	defaultTimeout = 15 * time.Second

	searchEndpoint = "/music/search"
	musicEndpoint  = "/music"
	streamEndpoint = "/file/createMusicStream/"

	// maxBodyBytes caps how much of an upstream response is read.
	maxBodyBytes = 16 << 20
)

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithTimeout sets the per-request HTTP timeout. Defaults to 15 s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Any timeout set via
// [WithTimeout] before this option is discarded.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRateLimit throttles outgoing requests to rps requests per second with
// the given burst. A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// Client is an HTTP catalogue client. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a Client for the API rooted at baseURL (e.g.
// "https://api.example.com/"). baseURL must be an absolute http(s) URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("kenobi: baseURL must not be empty")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("kenobi: parse baseURL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("kenobi: baseURL %q must use http or https", baseURL)
	}
	c := &Client{
		base:       u,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// searchRequest is the JSON body sent to POST /music/search.
type searchRequest struct {
	Query string `json:"query"`
}

// Search implements [catalogue.Client].
func (c *Client) Search(ctx context.Context, query string) (*catalogue.SearchResults, error) {
	body, err := json.Marshal(searchRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("kenobi: encode search request: %w", err)
	}

	var results catalogue.SearchResults
	if err := c.do(ctx, http.MethodPost, c.endpoint(searchEndpoint, nil), bytes.NewReader(body), &results); err != nil {
		return nil, fmt.Errorf("kenobi: search: %w", err)
	}
	return &results, nil
}

// SearchRandom implements [catalogue.Client].
func (c *Client) SearchRandom(ctx context.Context, count int) (*catalogue.SearchResults, error) {
	if count < 1 || count > catalogue.MaxRandomCount {
		return nil, fmt.Errorf("kenobi: random count %d out of range [1, %d]: %w",
			count, catalogue.MaxRandomCount, catalogue.ErrInvalidArgument)
	}

	q := url.Values{}
	q.Set("SortBy", "Random")
	q.Set("Limit", strconv.Itoa(count))

	var page catalogue.Page[[]catalogue.Track]
	if err := c.do(ctx, http.MethodGet, c.endpoint(musicEndpoint, q), nil, &page); err != nil {
		return nil, fmt.Errorf("kenobi: search random: %w", err)
	}
	return &catalogue.SearchResults{Tracks: catalogue.ToScored(page.Data)}, nil
}

// LoadAlbumTracks implements [catalogue.Client].
func (c *Client) LoadAlbumTracks(ctx context.Context, albumID string) ([]catalogue.Track, error) {
	q := url.Values{}
	q.Set("AlbumId", albumID)
	q.Set("Limit", "0")
	q.Set("SortBy", "TrackNumber")
	q.Set("SortOrder", "asc")

	var page catalogue.Page[[]catalogue.Track]
	if err := c.do(ctx, http.MethodGet, c.endpoint(musicEndpoint, q), nil, &page); err != nil {
		return nil, fmt.Errorf("kenobi: load album %q: %w", albumID, err)
	}
	if len(page.Data) == 0 {
		return nil, fmt.Errorf("kenobi: load album %q: %w", albumID, catalogue.ErrEmptyAlbum)
	}
	return page.Data, nil
}

// ResolvePlayableURI implements [catalogue.Client].
func (c *Client) ResolvePlayableURI(track catalogue.Track) (*url.URL, error) {
	f, ok := track.PrimaryFile()
	if !ok || f.ID == "" {
		return nil, fmt.Errorf("kenobi: track %q has no primary file: %w", track.ID, catalogue.ErrInvalidArgument)
	}
	return c.endpoint(streamEndpoint+url.PathEscape(f.ID), nil), nil
}

// endpoint joins path onto the base URL and attaches query.
func (c *Client) endpoint(path string, query url.Values) *url.URL {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawPath = ""
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return &u
}

// do performs one request and decodes a 2xx JSON body into out. Transport
// failures and non-2xx statuses are wrapped with [catalogue.ErrNetwork];
// malformed bodies with [catalogue.ErrDecode].
func (c *Client) do(ctx context.Context, method string, u *url.URL, body io.Reader, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w: %w", catalogue.ErrNetwork, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", catalogue.ErrNetwork, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w: %w", catalogue.ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s %s returned %d: %s",
			catalogue.ErrNetwork, method, u.Path, resp.StatusCode, truncate(string(data), 200))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", catalogue.ErrDecode, err)
	}
	return nil
}

// truncate shortens s to at most n bytes for inclusion in error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
