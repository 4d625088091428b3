package search

import (
	"errors"
	"fmt"

	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

// Default classification parameters.
const (
	DefaultLowThreshold   = 200
	DefaultHighThreshold  = 800
	DefaultMaxSuggestions = 5
)

// Config holds the classification thresholds and the suggestion cap.
type Config struct {
	// LowThreshold: a top score below it (with no tie) is not confident.
	LowThreshold float64

	// HighThreshold: a top score at or above it (with no tie) is confident.
	HighThreshold float64

	// MaxSuggestions caps each candidate list of an ambiguous outcome.
	MaxSuggestions int
}

// DefaultConfig returns the default thresholds (200/800) and cap (5).
func DefaultConfig() Config {
	return Config{
		LowThreshold:   DefaultLowThreshold,
		HighThreshold:  DefaultHighThreshold,
		MaxSuggestions: DefaultMaxSuggestions,
	}
}

// Validate checks that every value is positive and Low < High.
func (c Config) Validate() error {
	var errs []error
	if c.LowThreshold <= 0 {
		errs = append(errs, fmt.Errorf("low threshold %v must be positive", c.LowThreshold))
	}
	if c.HighThreshold <= 0 {
		errs = append(errs, fmt.Errorf("high threshold %v must be positive", c.HighThreshold))
	}
	if c.LowThreshold >= c.HighThreshold {
		errs = append(errs, fmt.Errorf("low threshold %v must be below high threshold %v", c.LowThreshold, c.HighThreshold))
	}
	if c.MaxSuggestions <= 0 {
		errs = append(errs, fmt.Errorf("max suggestions %d must be positive", c.MaxSuggestions))
	}
	return errors.Join(errs...)
}

// Classify decides what a scored result set means. It is pure: album
// expansion for a confident album pick is left to the caller.
//
// Let T and A be the scores of the best track and best album (0 when the
// list is empty):
//
//  1. both lists empty            → no match
//  2. T == A                      → ambiguous
//  3. tracks present and T > A   → tie check over the other tracks, then threshold on T
//  4. A > 0                       → tie check over the other albums, then threshold on A
//  5. otherwise                   → no match
func Classify(res *catalogue.SearchResults, cfg Config) Outcome {
	if res == nil || (len(res.Tracks) == 0 && len(res.Albums) == 0) {
		return noMatch()
	}

	var bestTrack, bestAlbum float64
	if len(res.Tracks) > 0 {
		bestTrack = res.Tracks[0].Score
	}
	if len(res.Albums) > 0 {
		bestAlbum = res.Albums[0].Score
	}

	ambiguous := func() Outcome {
		return Outcome{
			Tracks:    truncate(res.Tracks, cfg.MaxSuggestions),
			Albums:    truncate(res.Albums, cfg.MaxSuggestions),
			Ambiguous: true,
			Status:    StatusAmbiguous,
		}
	}

	switch {
	case bestTrack == bestAlbum:
		return ambiguous()

	case len(res.Tracks) > 0 && bestTrack > bestAlbum:
		if !confident(trackScores(res.Tracks[1:]), bestTrack, bestAlbum, cfg) {
			return ambiguous()
		}
		return matchTrack(res.Tracks[0])

	case bestAlbum > 0:
		if !confident(albumScores(res.Albums[1:]), bestAlbum, bestTrack, cfg) {
			return ambiguous()
		}
		return matchAlbum(res.Albums[0])
	}
	return noMatch()
}

// confident applies the runner-up tie check and then the threshold rule to
// the top score primary. A runner-up equal to primary or to the best score
// of the other list makes the pick non-unique.
//
// Scores in [LowThreshold, HighThreshold) are treated as confident; only
// scores below LowThreshold ask the user.
func confident(runnerUps []float64, primary, secondary float64, cfg Config) bool {
	for _, s := range runnerUps {
		if s == primary || s == secondary {
			return false
		}
	}
	if primary >= cfg.HighThreshold {
		return true
	}
	if primary < cfg.LowThreshold {
		return false
	}
	return true
}

func trackScores(ts []catalogue.ScoredTrack) []float64 {
	out := make([]float64, len(ts))
	for i := range ts {
		out[i] = ts[i].Score
	}
	return out
}

func albumScores(as []catalogue.ScoredAlbum) []float64 {
	out := make([]float64, len(as))
	for i := range as {
		out[i] = as[i].Score
	}
	return out
}

// truncate returns a copy of the first n elements of s, preserving order.
func truncate[T any](s []T, n int) []T {
	if n < len(s) {
		s = s[:n]
	}
	return append([]T(nil), s...)
}
