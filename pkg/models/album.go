package models

import "github.com/google/uuid"

// Track is a playable track of an album together with its metadata
type Track struct {
	Disc   DiscTrack `json:"disc"`
	Title  string    `json:"title"`
	Artist string    `json:"artist"`
}

// Album is the user-facing view of a loaded disc. It is built from a TOC with
// empty metadata which is filled in later by a metadata provider.
type Album struct {
	// LoadID identifies one particular load of a disc, so metadata fetched
	// in the background can be matched back to the slot it came from.
	LoadID uuid.UUID `json:"loadId"`

	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Tracks   []Track `json:"tracks"`
	Duration MSF     `json:"duration"` // end of the last audio track
	LeadOut  MSF     `json:"leadOut"`

	TOCSubchannel []byte `json:"-"`
	// CDText holds the raw CD-Text packs read at load time, if any.
	CDText []byte `json:"-"`
}

// NewAlbum creates an album for a freshly read TOC.
func NewAlbum(toc DiscTOC) *Album {
	a := &Album{
		LoadID:        uuid.New(),
		LeadOut:       toc.LeadOut,
		Duration:      toc.LeadOut,
		TOCSubchannel: toc.Subchannel,
		Tracks:        make([]Track, 0, len(toc.Tracks)),
	}
	// A data session normally sits after the audio tracks (CD-Extra), so
	// audio playback ends where it starts.
	if n := len(toc.Tracks); n > 0 && toc.Tracks[n-1].IsData {
		a.Duration = toc.Tracks[n-1].Position
	}
	for _, t := range toc.Tracks {
		a.Tracks = append(a.Tracks, Track{Disc: t})
	}
	return a
}

// HasTracks reports whether the album has anything to play.
func (a *Album) HasTracks() bool {
	return a != nil && len(a.Tracks) > 0
}

// TrackIndex returns the index into Tracks of the given track number, or -1.
func (a *Album) TrackIndex(number int) int {
	if a == nil {
		return -1
	}
	for i, t := range a.Tracks {
		if t.Disc.Number == number {
			return i
		}
	}
	return -1
}

// TrackEnd returns where playback of the track at index i stops: the start
// of the following track, or the album end for the last one.
func (a *Album) TrackEnd(i int) MSF {
	if i+1 < len(a.Tracks) {
		return a.Tracks[i+1].Disc.Position
	}
	return a.Duration
}

// IsMetadataComplete reports whether every piece of metadata is present.
func (a *Album) IsMetadataComplete() bool {
	for _, t := range a.Tracks {
		if t.Title == "" || t.Artist == "" {
			return false
		}
	}
	return a.Title != "" && a.Artist != ""
}

// IsMetadataCacheable reports whether the metadata is good enough to be
// remembered: an album title and every track title.
func (a *Album) IsMetadataCacheable() bool {
	for _, t := range a.Tracks {
		if t.Title == "" {
			return false
		}
	}
	return a.Title != ""
}

// Clone returns a deep copy of the album.
func (a *Album) Clone() *Album {
	if a == nil {
		return nil
	}
	c := *a
	c.Tracks = append([]Track(nil), a.Tracks...)
	c.TOCSubchannel = append([]byte(nil), a.TOCSubchannel...)
	c.CDText = append([]byte(nil), a.CDText...)
	return &c
}

// TrackMetadata is the descriptive part of a Track.
type TrackMetadata struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// AlbumMetadata is the descriptive part of an Album, as stored by caches.
type AlbumMetadata struct {
	Title  string          `json:"title"`
	Artist string          `json:"artist"`
	Tracks []TrackMetadata `json:"tracks"`
}

// Metadata extracts the album's descriptive fields.
func (a *Album) Metadata() AlbumMetadata {
	md := AlbumMetadata{
		Title:  a.Title,
		Artist: a.Artist,
		Tracks: make([]TrackMetadata, 0, len(a.Tracks)),
	}
	for _, t := range a.Tracks {
		md.Tracks = append(md.Tracks, TrackMetadata{
			Number: t.Disc.Number,
			Title:  t.Title,
			Artist: t.Artist,
		})
	}
	return md
}

// ApplyMetadata copies descriptive fields into the album. Tracks are matched
// by number; entries for tracks the album doesn't have are ignored.
func (a *Album) ApplyMetadata(md AlbumMetadata) {
	if md.Title != "" {
		a.Title = md.Title
	}
	if md.Artist != "" {
		a.Artist = md.Artist
	}
	for _, tm := range md.Tracks {
		i := a.TrackIndex(tm.Number)
		if i < 0 {
			continue
		}
		if tm.Title != "" {
			a.Tracks[i].Title = tm.Title
		}
		if tm.Artist != "" {
			a.Tracks[i].Artist = tm.Artist
		}
	}
}
