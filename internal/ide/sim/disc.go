package sim

import (
	"time"

	"cdchanger/pkg/models"
)

// Disc is a disc loaded in a simulated slot.
type Disc struct {
	Tracks  []models.DiscTrack
	LeadOut models.MSF
	// MediaType is the medium type code MODE SENSE reports, 0x02 (120mm
	// audio) unless set.
	MediaType uint8
	// CDText holds raw 18-byte CD-Text packs, nil for a disc without.
	CDText []byte
}

// pregap is where the first track of a disc starts.
var pregap = models.MSF{M: 0, S: 2, F: 0}

// AudioDisc builds an audio disc whose tracks have the given lengths.
func AudioDisc(lengths ...time.Duration) *Disc {
	d := &Disc{MediaType: 0x02}
	pos := pregap
	for i, l := range lengths {
		d.Tracks = append(d.Tracks, models.DiscTrack{Number: i + 1, Position: pos})
		pos = pos.Add(models.MSFFromDuration(l))
	}
	d.LeadOut = pos
	return d
}

// EnhancedDisc builds a CD-Extra disc: audio tracks followed by a data
// session.
func EnhancedDisc(dataLength time.Duration, lengths ...time.Duration) *Disc {
	d := AudioDisc(lengths...)
	d.MediaType = 0x03
	d.Tracks = append(d.Tracks, models.DiscTrack{Number: len(lengths) + 1, Position: d.LeadOut, IsData: true})
	d.LeadOut = d.LeadOut.Add(models.MSFFromDuration(dataLength))
	return d
}

func (d *Disc) mediaType() uint8 {
	if d.MediaType == 0 {
		return 0x02
	}
	return d.MediaType
}

// trackAt returns the track and index at pos, or the lead-out track number.
func (d *Disc) trackAt(pos models.MSF) (models.DiscTrack, bool) {
	if !pos.Before(d.LeadOut) {
		return models.DiscTrack{Number: models.LeadOutTrack, Position: d.LeadOut}, false
	}
	cur := d.Tracks[0]
	for _, t := range d.Tracks {
		if pos.Before(t.Position) {
			break
		}
		cur = t
	}
	return cur, true
}

// WithText gives the disc CD-Text: album and track titles, and artist as
// the performer of the album and of every track.
func (d *Disc) WithText(album, artist string, titles ...string) *Disc {
	performers := []string{artist}
	for range titles {
		performers = append(performers, "\t")
	}

	var seq byte
	d.CDText = nil
	for _, block := range []struct {
		kind   byte
		fields []string
	}{
		{0x80, append([]string{album}, titles...)},
		{0x81, performers},
	} {
		var text []byte
		for _, f := range block.fields {
			text = append(text, f...)
			text = append(text, 0)
		}

		track := 0
		for len(text) > 0 {
			pack := make([]byte, 18)
			pack[0] = block.kind
			pack[1] = byte(track)
			pack[2] = seq
			n := copy(pack[4:16], text)
			for _, c := range text[:n] {
				if c == 0 {
					track++
				}
			}
			text = text[n:]
			d.CDText = append(d.CDText, pack...)
			seq++
		}
	}
	return d
}
