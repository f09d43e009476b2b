package metadata

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"

	"cdchanger/pkg/models"
)

// dataSessionGap is the lead-out plus lead-in between the audio and the data
// session of a CD-Extra disc, in frames.
const dataSessionGap = 11400

// mbEncoding is base64 with the URL-safe alphabet MusicBrainz uses.
var mbEncoding = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789._").WithPadding('-')

// MusicBrainzDiscID computes the MusicBrainz disc ID of an album. Only the
// audio session counts: for a CD-Extra the data track is left out and the
// lead-out moves back to the end of the audio session.
func MusicBrainzDiscID(album *models.Album) (string, error) {
	tracks := audioSession(album)
	if len(tracks) == 0 {
		return "", fmt.Errorf("disc ID: no audio tracks")
	}

	leadOut := album.LeadOut.Frames()
	if len(tracks) < len(album.Tracks) {
		leadOut = album.Tracks[len(tracks)].Disc.Position.Frames() - dataSessionGap
	}

	h := sha1.New()
	fmt.Fprintf(h, "%02X%02X%08X", tracks[0].Disc.Number, tracks[len(tracks)-1].Disc.Number, leadOut)
	for i := range 99 {
		offset := 0
		if i < len(tracks) {
			offset = tracks[i].Disc.Position.Frames()
		}
		fmt.Fprintf(h, "%08X", offset)
	}
	return mbEncoding.EncodeToString(h.Sum(nil)), nil
}

// FreeDBDiscID computes the classic CDDB disc ID over every track of the
// disc, data tracks included.
func FreeDBDiscID(album *models.Album) (string, error) {
	if !album.HasTracks() {
		return "", fmt.Errorf("disc ID: no tracks")
	}

	sum := 0
	for _, t := range album.Tracks {
		for s := t.Disc.Position.Frames() / models.FramesPerSecond; s > 0; s /= 10 {
			sum += s % 10
		}
	}
	first := album.Tracks[0].Disc.Position.Frames() / models.FramesPerSecond
	length := album.LeadOut.Frames()/models.FramesPerSecond - first

	return fmt.Sprintf("%08x", (sum%0xff)<<24|length<<8|len(album.Tracks)), nil
}

// audioSession returns the tracks without trailing data tracks. A data
// track at the start (mixed mode) stays.
func audioSession(album *models.Album) []models.Track {
	if album == nil {
		return nil
	}
	n := len(album.Tracks)
	for n > 0 && album.Tracks[n-1].Disc.IsData {
		n--
	}
	return album.Tracks[:n]
}
