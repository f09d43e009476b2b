package atapi

import (
	"context"
	"fmt"

	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// Play plays audio from start up to end.
func (d *Device) Play(ctx context.Context, start, end models.MSF) error {
	d.log.WithFields(logrus.Fields{"from": start, "to": end}).Debug("Play")
	_, err := d.exec(ctx, playAudioMSFPacket(start, end), nil)
	return err
}

// Pause pauses playback, or resumes it when pause is false.
func (d *Device) Pause(ctx context.Context, pause bool) error {
	d.log.WithField("pause", pause).Debug("Pause/resume")
	_, err := d.exec(ctx, pauseResumePacket(!pause), nil)
	return err
}

// Stop stops playback or scanning.
func (d *Device) Stop(ctx context.Context) error {
	d.log.Debug("Stop")
	_, err := d.exec(ctx, stopPlayScanPacket(), nil)
	return err
}

// Scan starts a fast scan from the given absolute position.
func (d *Device) Scan(ctx context.Context, forward bool, from models.MSF) error {
	d.log.WithFields(logrus.Fields{"forward": forward, "from": from}).Debug("Scan")
	_, err := d.exec(ctx, scanPacket(forward, from), nil)
	return err
}

// QueryPosition reads the current play position from the Q sub-channel.
func (d *Device) QueryPosition(ctx context.Context) (AudioStatus, error) {
	buf := make([]byte, subchannelLen)
	n, err := d.exec(ctx, readSubchannelPacket(subchannelLen), buf)
	if err != nil {
		return AudioStatus{}, err
	}
	return decodeSubchannel(buf[:n])
}

// tocAttempts bounds the reads of drives with unstable TOC reads.
const tocAttempts = 3

// ReadTOC reads the table of contents. Drives with unstable TOC reads are
// asked repeatedly until two consecutive reads agree.
func (d *Device) ReadTOC(ctx context.Context) (models.DiscTOC, error) {
	toc, err := d.readTOCOnce(ctx)
	if err != nil || !d.quirks.UnstableTOC {
		return toc, err
	}

	for i := 1; i < tocAttempts; i++ {
		again, err := d.readTOCOnce(ctx)
		if err != nil {
			return models.DiscTOC{}, err
		}
		if again.Equal(toc) {
			return again, nil
		}
		d.log.WithField("attempt", i+1).Warn("TOC changed between reads")
		toc = again
	}
	return models.DiscTOC{}, fmt.Errorf("%w after %d reads", ErrUnstableTOC, tocAttempts)
}

func (d *Device) readTOCOnce(ctx context.Context) (models.DiscTOC, error) {
	buf := make([]byte, tocMaxLen)
	n, err := d.exec(ctx, readTOCPacket(tocFormatTOC, 0, true, tocMaxLen), buf)
	if err != nil {
		return models.DiscTOC{}, err
	}
	toc, err := decodeTOC(buf[:n])
	if err != nil {
		return models.DiscTOC{}, err
	}

	d.log.WithFields(logrus.Fields{
		"tracks":   len(toc.Tracks),
		"lead_out": toc.LeadOut,
	}).Debug("TOC read")
	return toc, nil
}

// ReadCDText returns the raw CD-Text packs of the disc. Drives and discs
// without CD-Text answer with a check condition.
func (d *Device) ReadCDText(ctx context.Context) ([]byte, error) {
	buf := make([]byte, cdTextMaxLen)
	n, err := d.exec(ctx, readTOCPacket(tocFormatCDText, 0, false, cdTextMaxLen), buf)
	if err != nil {
		return nil, err
	}
	packs, err := decodeCDText(buf[:n])
	if err != nil {
		return nil, err
	}
	d.log.WithField("packs", len(packs)/cdTextPackLen).Debug("CD-Text read")
	return packs, nil
}
