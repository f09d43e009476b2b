package atapi

import (
	"encoding/binary"
	"fmt"
	"strings"

	"cdchanger/pkg/models"
)

// Response sizes requested from the device.
const (
	mechStatusHeaderLen = 8
	mechSlotEntryLen    = 4
	subchannelLen       = 16
	modeSenseHeaderLen  = 8
	tocHeaderLen        = 4
	tocEntryLen         = 8
	tocMaxLen           = tocHeaderLen + 100*tocEntryLen
	cdTextPackLen       = 18
	cdTextMaxLen        = tocHeaderLen + 256*cdTextPackLen
	identifyLen         = 94
	senseLen            = 18
)

func getMSF(b []byte) models.MSF {
	return models.MSF{M: b[0], S: b[1], F: b[2]}
}

// decodeMechanismStatus decodes a MECHANISM STATUS response: an 8 byte
// header followed by one 4 byte entry per slot.
func decodeMechanismStatus(b []byte) (MechInfo, error) {
	if len(b) < mechStatusHeaderLen {
		return MechInfo{}, fmt.Errorf("mechanism status: %w: %d bytes", ErrShortResponse, len(b))
	}

	var m MechInfo
	m.CurrentSlot = int(b[0] & 0x1F)
	m.Fault = b[0]&0x80 != 0
	switch (b[0] >> 5) & 0x03 {
	case 0:
		m.ChangerState = ChangerIdle
	case 1, 2:
		m.ChangerState = ChangerChangingDisc
	case 3:
		m.ChangerState = ChangerPreparing
	}

	m.DoorOpen = b[1]&0x10 != 0
	m.Playing = (b[1]>>5)&0x07 == 1 // mechanism state 1: audio playback

	m.SlotCount = int(b[5] & 0x1F)
	if m.SlotCount < 1 {
		m.SlotCount = 1
	}

	m.Slots = make([]SlotInfo, m.SlotCount)
	tableLen := int(binary.BigEndian.Uint16(b[6:8]))
	for i := 0; i < m.SlotCount; i++ {
		off := mechStatusHeaderLen + i*mechSlotEntryLen
		if off >= len(b) || off-mechStatusHeaderLen >= tableLen {
			break
		}
		m.Slots[i] = SlotInfo{
			DiscIn:      b[off]&0x80 != 0,
			DiscChanged: b[off]&0x01 != 0,
		}
	}
	if m.CurrentSlot >= m.SlotCount {
		m.CurrentSlot = 0
	}
	return m, nil
}

// Audio status codes in the sub-channel header.
const (
	audioPlaying   = 0x11
	audioPaused    = 0x12
	audioCompleted = 0x13
	audioError     = 0x14
	audioNone      = 0x15
)

// decodeSubchannel decodes a current-position READ SUB-CHANNEL response
// requested with MSF addressing.
func decodeSubchannel(b []byte) (AudioStatus, error) {
	if len(b) < subchannelLen {
		return AudioStatus{}, fmt.Errorf("sub-channel: %w: %d bytes", ErrShortResponse, len(b))
	}

	var a AudioStatus
	switch b[1] {
	case audioPlaying:
		a.State = PlayPlaying
	case audioPaused:
		a.State = PlayPaused
	default:
		a.State = PlayStopped
	}
	a.Position = models.TrackNo{Track: int(b[6]), Index: int(b[7])}
	a.Absolute = getMSF(b[9:12])
	a.Relative = getMSF(b[13:16])
	return a, nil
}

// decodeTOC decodes a formatted READ TOC response requested with MSF
// addressing. The lead-out descriptor is not listed as a track.
func decodeTOC(b []byte) (models.DiscTOC, error) {
	if len(b) < tocHeaderLen {
		return models.DiscTOC{}, fmt.Errorf("TOC: %w: %d bytes", ErrShortResponse, len(b))
	}

	// data length excludes the length field itself
	n := int(binary.BigEndian.Uint16(b[0:2])) + 2
	if n > len(b) {
		n = len(b)
	}

	toc := models.DiscTOC{
		Tracks:     make([]models.DiscTrack, 0, (n-tocHeaderLen)/tocEntryLen),
		Subchannel: append([]byte(nil), b[:n]...),
	}
	for off := tocHeaderLen; off+tocEntryLen <= n; off += tocEntryLen {
		e := b[off : off+tocEntryLen]
		number := int(e[2])
		pos := getMSF(e[5:8])
		if number == models.LeadOutTrack {
			toc.LeadOut = pos
			continue
		}
		toc.Tracks = append(toc.Tracks, models.DiscTrack{
			Number:      number,
			Position:    pos,
			PreEmphasis: e[1]&0x01 != 0,
			IsData:      e[1]&0x04 != 0,
		})
	}
	// without a lead-out nothing can be played
	if toc.LeadOut.IsZero() {
		toc.Tracks = toc.Tracks[:0]
	}
	return toc, nil
}

// decodeMediaType extracts the medium type code from a MODE SENSE(10)
// header.
func decodeMediaType(b []byte) (MediaType, error) {
	if len(b) < 3 {
		return 0, fmt.Errorf("mode sense: %w: %d bytes", ErrShortResponse, len(b))
	}
	return MediaType(b[2]), nil
}

// ataString decodes an IDENTIFY string field. ATA strings hold two
// characters per word, first character in the high byte.
func ataString(b []byte) string {
	s := make([]byte, len(b))
	for i := 0; i+1 < len(b); i += 2 {
		s[i], s[i+1] = b[i+1], b[i]
	}
	return strings.Trim(string(s), " \x00")
}

// decodeIdentify decodes the fields of IDENTIFY PACKET DEVICE data we use.
func decodeIdentify(b []byte) (DriveInfo, error) {
	if len(b) < identifyLen {
		return DriveInfo{}, fmt.Errorf("identify: %w: %d bytes", ErrShortResponse, len(b))
	}
	info := DriveInfo{
		Serial:     ataString(b[20:40]),
		Firmware:   ataString(b[46:54]),
		Model:      ataString(b[54:94]),
		PacketSize: 12,
	}
	generalConfig := binary.LittleEndian.Uint16(b[0:2])
	if generalConfig&0x01 != 0 {
		info.PacketSize = 16
	}
	return info, nil
}

// Sense is the fixed-format REQUEST SENSE data.
type Sense struct {
	Key  uint8
	ASC  uint8
	ASCQ uint8
}

func (s Sense) String() string {
	return fmt.Sprintf("key 0x%X asc 0x%02X ascq 0x%02X", s.Key, s.ASC, s.ASCQ)
}

func decodeSense(b []byte) (Sense, error) {
	if len(b) < 14 {
		return Sense{}, fmt.Errorf("sense: %w: %d bytes", ErrShortResponse, len(b))
	}
	return Sense{Key: b[2] & 0x0F, ASC: b[12], ASCQ: b[13]}, nil
}

// decodeCDText returns the CD-Text packs of a READ TOC format 5 response,
// whole packs only.
func decodeCDText(b []byte) ([]byte, error) {
	if len(b) < tocHeaderLen {
		return nil, fmt.Errorf("CD-Text: %w: %d bytes", ErrShortResponse, len(b))
	}
	n := min(int(binary.BigEndian.Uint16(b[0:2]))+2, len(b))
	packs := b[tocHeaderLen:max(n, tocHeaderLen)]
	return packs[:len(packs)/cdTextPackLen*cdTextPackLen], nil
}
