package models

import "fmt"

// LeadOutTrack is the track number drives report for the lead-out area.
const LeadOutTrack = 0xAA

// DiscTrack is one entry of a disc's table of contents.
type DiscTrack struct {
	Number      int  `json:"number"`
	Position    MSF  `json:"position"`
	IsData      bool `json:"isData"`
	PreEmphasis bool `json:"preEmphasis"`
}

// DiscTOC is a disc's table of contents.
type DiscTOC struct {
	LeadOut MSF         `json:"leadOut"`
	Tracks  []DiscTrack `json:"tracks"`
	// Subchannel holds the raw TOC bytes as read from the drive.
	Subchannel []byte `json:"-"`
}

// IsEmpty reports whether the TOC lists no tracks.
func (t DiscTOC) IsEmpty() bool {
	return len(t.Tracks) == 0
}

// Equal reports whether two TOCs describe the same layout.
func (t DiscTOC) Equal(o DiscTOC) bool {
	if t.LeadOut != o.LeadOut || len(t.Tracks) != len(o.Tracks) {
		return false
	}
	for i := range t.Tracks {
		if t.Tracks[i] != o.Tracks[i] {
			return false
		}
	}
	return true
}

// TrackNo is a play position at sub-index granularity. Index 0 is the
// pre-gap, index 1 the start of the track body.
type TrackNo struct {
	Track int `json:"track"`
	Index int `json:"index"`
}

// FirstTrack is the position a freshly loaded disc starts at.
var FirstTrack = TrackNo{Track: 1, Index: 1}

func (t TrackNo) String() string {
	return fmt.Sprintf("%d.%d", t.Track, t.Index)
}
