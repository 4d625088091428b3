package search

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// Status tags the kind of [Outcome] a search produced.
type Status int

const (
	// StatusNoMatch means the catalogue returned nothing usable.
	StatusNoMatch Status = iota

	// StatusMatch means a confident pick: exactly one of Tracks or Albums
	// holds exactly one entry. A random sample is also a match and carries
	// every sampled track.
	StatusMatch

	// StatusAmbiguous means the user must choose from a menu. The outcome has
	// been stored in the suggestion cache under the request ID.
	StatusAmbiguous

	// StatusFailed means the catalogue could not be queried or its answer
	// could not be used. Err holds the cause. Callers should treat it like
	// StatusNoMatch in user-facing replies.
	StatusFailed
)

// String returns the metric/log label for s.
func (s Status) String() string {
	switch s {
	case StatusNoMatch:
		return "no_match"
	case StatusMatch:
		return "match"
	case StatusAmbiguous:
		return "ambiguous"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a search or a resolved selection.
type Outcome struct {
	Tracks    []catalogue.ScoredTrack
	Albums    []catalogue.ScoredAlbum
	Ambiguous bool
	Status    Status

	// Err is set only when Status is StatusFailed.
	Err error
}

// Found reports whether the outcome carries anything to play or to offer.
func (o Outcome) Found() bool {
	return o.Status == StatusMatch || o.Status == StatusAmbiguous
}

// clone copies the candidate slices so the copy can be handed to another
// owner without aliasing.
func (o Outcome) clone() Outcome {
	o.Tracks = append([]catalogue.ScoredTrack(nil), o.Tracks...)
	o.Albums = append([]catalogue.ScoredAlbum(nil), o.Albums...)
	return o
}

func noMatch() Outcome { return Outcome{Status: StatusNoMatch} }

func failed(err error) Outcome { return Outcome{Status: StatusFailed, Err: err} }

func matchTrack(t catalogue.ScoredTrack) Outcome {
	return Outcome{Tracks: []catalogue.ScoredTrack{t}, Status: StatusMatch}
}

func matchAlbum(a catalogue.ScoredAlbum) Outcome {
	return Outcome{Albums: []catalogue.ScoredAlbum{a}, Status: StatusMatch}
}

// Filter restricts an outcome to one kind of candidate.
type Filter string

const (
	FilterAny    Filter = "any"
	FilterTracks Filter = "tracks"
	FilterAlbums Filter = "albums"
)

// IsValid reports whether f is a recognised filter.
func (f Filter) IsValid() bool {
	switch f {
	case FilterAny, FilterTracks, FilterAlbums:
		return true
	}
	return false
}

// Apply restricts o to the filtered kind. A single remaining candidate
// becomes a match, several become ambiguous, none becomes no-match. Failed
// outcomes and FilterAny are returned unchanged.
func (f Filter) Apply(o Outcome) Outcome {
	if o.Status == StatusFailed || f == FilterAny || f == "" {
		return o
	}
	var n int
	switch f {
	case FilterTracks:
		o.Albums = nil
		n = len(o.Tracks)
	case FilterAlbums:
		o.Tracks = nil
		n = len(o.Albums)
	}
	switch {
	case n == 0:
		return noMatch()
	case n == 1:
		o.Ambiguous = false
		o.Status = StatusMatch
	default:
		o.Ambiguous = true
		o.Status = StatusAmbiguous
	}
	return o
}

// Kind identifies which candidate list a selection refers to.
type Kind string

const (
	KindTrack Kind = "track"
	KindAlbum Kind = "album"
)

// Selection is a menu choice: an index into the Tracks or Albums list of a
// cached ambiguous outcome. Its string form is "track_<i>" or "album_<i>".
type Selection struct {
	Kind  Kind
	Index int
}

// String encodes s as a select-menu option value.
func (s Selection) String() string {
	return string(s.Kind) + "_" + strconv.Itoa(s.Index)
}

// ParseSelection decodes a select-menu option value produced by
// [Selection.String].
func ParseSelection(v string) (Selection, error) {
	kind, idx, ok := strings.Cut(v, "_")
	if !ok {
		return Selection{}, fmt.Errorf("search: malformed selection %q: %w", v, catalogue.ErrInvalidArgument)
	}
	k := Kind(kind)
	if k != KindTrack && k != KindAlbum {
		return Selection{}, fmt.Errorf("search: unknown selection kind %q: %w", kind, catalogue.ErrInvalidArgument)
	}
	i, err := strconv.Atoi(idx)
	if err != nil || i < 0 {
		return Selection{}, fmt.Errorf("search: bad selection index %q: %w", idx, catalogue.ErrInvalidArgument)
	}
	return Selection{Kind: k, Index: i}, nil
}
