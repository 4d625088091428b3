package catalogue

import "time"

// Result type labels used by the catalogue in the resultType field.
const (
	ResultTrack  = "Track"
	ResultAlbum  = "Album"
	ResultArtist = "Artist"
)

// File is a stored file reference. For tracks the first entry of
// [Track.MusicFile] is the primary, playable file.
type File struct {
	ID          string    `json:"id"`
	MusicID     string    `json:"musicId,omitempty"`
	FilePath    string    `json:"filePath"`
	FileWebPath string    `json:"fileWebPath"`
	FileSize    int64     `json:"fileSize"`
	FileHash    string    `json:"fileHash"`
	Type        string    `json:"type"`
	Name        string    `json:"name"`
	Exists      bool      `json:"exists"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Metadata holds the optional tag metadata of a track.
type Metadata struct {
	Genre       string `json:"genre,omitempty"`
	Year        int    `json:"year,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
	DiscNumber  string `json:"discNumber,omitempty"`
	Composer    string `json:"composer,omitempty"`
	Publisher   string `json:"publisher,omitempty"`
	Bitrate     int    `json:"bitrate,omitempty"`
	SampleRate  int    `json:"sampleRate,omitempty"`
}

// Artist is a catalogue artist.
type Artist struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NameLower string    `json:"nameLower,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Album is a catalogue album. Music may be empty at discovery time; it is
// populated lazily through [Client.LoadAlbumTracks] once the album is chosen.
type Album struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NameLower string    `json:"nameLower,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Artists   []Artist  `json:"artists,omitempty"`
	Music     []Track   `json:"music"`
}

// Track is a catalogue track. Duration is in seconds.
type Track struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	TitleLower  string    `json:"titleLower,omitempty"`
	ArtistID    string    `json:"artistId"`
	AlbumID     string    `json:"albumId"`
	Duration    int       `json:"duration"`
	UploaderID  string    `json:"uploaderId,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
	TimesPlayed int       `json:"timesPlayed"`
	Metadata    *Metadata `json:"musicMetadata,omitempty"`
	MusicFile   []File    `json:"musicFile"`
	Artist      Artist    `json:"artist"`
	Album       Album     `json:"album"`
}

// PrimaryFile returns the first file reference of t, or false when t has none.
func (t Track) PrimaryFile() (File, bool) {
	if len(t.MusicFile) == 0 {
		return File{}, false
	}
	return t.MusicFile[0], true
}

// ScoredTrack is a track search hit.
type ScoredTrack struct {
	Track
	Score      float64 `json:"score"`
	ResultType string  `json:"resultType"`
}

// ScoredAlbum is an album search hit.
type ScoredAlbum struct {
	Album
	Score      float64 `json:"score"`
	ResultType string  `json:"resultType"`
}

// ScoredArtist is an artist search hit. Artists are carried through search
// results but never take part in disambiguation.
type ScoredArtist struct {
	Artist
	Score      float64 `json:"score"`
	ResultType string  `json:"resultType"`
}

// SearchResults is the scored-results container returned by a search. Each
// list is sorted by descending Score.
type SearchResults struct {
	Tracks  []ScoredTrack  `json:"tracks"`
	Albums  []ScoredAlbum  `json:"albums"`
	Artists []ScoredArtist `json:"artists"`
}

// Page is the generic {data, amount} listing envelope used by the catalogue's
// non-search endpoints.
type Page[T any] struct {
	Data   T   `json:"data"`
	Amount int `json:"amount"`
}

// ToScored converts plain tracks into scored track hits with a zero score.
func ToScored(tracks []Track) []ScoredTrack {
	out := make([]ScoredTrack, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, ScoredTrack{Track: t, ResultType: ResultTrack})
	}
	return out
}
