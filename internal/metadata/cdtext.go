package metadata

import (
	"context"
	"io"

	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// CD-Text pack layout
const (
	cdTextPackLen    = 18
	cdTextPayloadLen = 12

	packTitle     = 0x80
	packPerformer = 0x81

	flagDBCC  = 0x80 // double byte characters
	blockMask = 0x70
	tabChar   = 0x09 // "same as the previous track"
)

// CDTextProvider fills in titles and artists from the CD-Text the drive
// read from the disc lead-in. Only the first language block with single
// byte characters is used.
type CDTextProvider struct {
	logger *logrus.Entry
}

// NewCDTextProvider creates a CD-Text provider
func NewCDTextProvider(logger *logrus.Logger) *CDTextProvider {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &CDTextProvider{logger: logger.WithField("provider", "cdtext")}
}

// FetchAlbum fills empty fields of album from its CD-Text.
func (p *CDTextProvider) FetchAlbum(ctx context.Context, album *models.Album) error {
	if !album.HasTracks() || len(album.CDText) == 0 {
		return nil
	}

	texts := parseCDText(album.CDText, p.logger)
	titles, performers := texts[packTitle], texts[packPerformer]

	if album.Title == "" {
		album.Title = titles[0]
	}
	if album.Artist == "" {
		album.Artist = performers[0]
	}
	for i := range album.Tracks {
		t := &album.Tracks[i]
		if t.Title == "" {
			t.Title = titles[t.Disc.Number]
		}
		if t.Artist == "" {
			t.Artist = performers[t.Disc.Number]
		}
	}
	return nil
}

// parseCDText returns the text of each pack type by track number, 0 being
// the whole disc. Parsing stops at the first gap in sequence numbers.
func parseCDText(packs []byte, log *logrus.Entry) map[byte]map[int]string {
	texts := map[byte]map[int]string{
		packTitle:     {},
		packPerformer: {},
	}

	var seq byte
	for pos := 0; pos+cdTextPackLen <= len(packs); pos += cdTextPackLen {
		pack := packs[pos : pos+cdTextPackLen]
		if pack[2] != seq {
			log.WithFields(logrus.Fields{"want": seq, "got": pack[2], "pos": pos}).Warn("CD-Text sequence broken")
			break
		}
		seq++

		text, ok := texts[pack[0]]
		if !ok || pack[3]&blockMask != 0 || pack[3]&flagDBCC != 0 {
			continue
		}

		track := int(pack[1] & 0x7F)
		for _, c := range pack[4 : 4+cdTextPayloadLen] {
			switch {
			case c == 0:
				track++
			case c == tabChar && track > 0:
				text[track] = text[track-1]
			default:
				// ISO 8859-1 maps directly to runes
				text[track] += string(rune(c))
			}
		}
	}
	return texts
}
