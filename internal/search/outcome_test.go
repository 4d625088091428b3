package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppmusicbot/ppmusicbot/pkg/catalogue"
)

func TestParseSelection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Selection
		wantErr bool
	}{
		{"track_0", Selection{KindTrack, 0}, false},
		{"album_14", Selection{KindAlbum, 14}, false},
		{"track", Selection{}, true},
		{"artist_1", Selection{}, true},
		{"track_x", Selection{}, true},
		{"album_-2", Selection{}, true},
		{"", Selection{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSelection(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, catalogue.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestFilter_Apply(t *testing.T) {
	t.Parallel()

	amb := Outcome{Tracks: tracks(5, 4), Albums: albums(5), Ambiguous: true, Status: StatusAmbiguous}

	out := FilterAlbums.Apply(amb)
	assert.Equal(t, StatusMatch, out.Status)
	assert.False(t, out.Ambiguous)
	assert.Empty(t, out.Tracks)

	out = FilterTracks.Apply(amb)
	assert.Equal(t, StatusAmbiguous, out.Status)
	assert.Empty(t, out.Albums)

	out = FilterAlbums.Apply(matchTrack(tracks(900)[0]))
	assert.Equal(t, StatusNoMatch, out.Status)

	failure := failed(catalogue.ErrNetwork)
	assert.Equal(t, failure, FilterTracks.Apply(failure))
	assert.Equal(t, amb, FilterAny.Apply(amb))
}

func TestStatus_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "match", StatusMatch.String())
	assert.Equal(t, "ambiguous", StatusAmbiguous.String())
	assert.Equal(t, "no_match", StatusNoMatch.String())
	assert.Equal(t, "failed", StatusFailed.String())
	assert.Equal(t, "unknown", Status(42).String())
}
