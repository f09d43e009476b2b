package player

import (
	"context"
	"errors"
	"time"

	"cdchanger/internal/atapi"
	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// pollLocked runs one step of the state machine and returns how long to
// let the drive settle afterwards.
func (p *Player) pollLocked(ctx context.Context) (time.Duration, error) {
	if p.state == StateInit {
		return p.initLocked(ctx)
	}

	media, err := p.drive.CheckMedia(ctx)
	if err != nil {
		return 0, err
	}
	mech, err := p.drive.QueryState(ctx)
	if err != nil {
		return 0, err
	}
	p.syncSlotsLocked(media, mech)

	if (media == atapi.MediaDoorOpen || mech.DoorOpen) && p.state != StateClose {
		if p.state != StateOpen {
			p.log.WithField("slot", p.curSlot).Debug("Door opened")
		}
		p.slots[p.curSlot].Album = nil
		p.loadSettled = false
		p.state = StateOpen
	}

	quirks := p.drive.Quirks()

	switch p.state {
	case StateOpen:
		if media != atapi.MediaDoorOpen && !mech.DoorOpen {
			p.state = StateClose
			return p.opts.CloseSettle, nil
		}

	case StateClose:
		p.loadSettled = false
		p.track = models.FirstTrack
		p.abs, p.rel = models.MSF{}, models.MSF{}
		if err := p.drive.WaitReady(ctx); err != nil {
			return 0, err
		}
		if !media.IsDoorClosedUnknown() || (quirks.NoMediaCodes && media == atapi.MediaDoorClosedUnknown) {
			if media != atapi.MediaDoorOpen {
				p.state = StateLoad
			} else {
				p.state = StateOpen
			}
		} else {
			// some drives cannot load while processing other commands
			return p.opts.CloseSettle, nil
		}

	case StateLoad:
		return p.loadLocked(ctx, media, quirks)

	case StateChangeDisc:
		if err := p.drive.WaitReady(ctx); err != nil {
			return 0, err
		}
		if mech.CurrentSlot == p.expectedSlot {
			p.state = StateLoad
		}
		return p.opts.ChangeSettle, nil

	case StateNoDisc:
		if len(p.slots) > 1 {
			if _, err := p.changeDiscsLocked(ctx, true); err != nil {
				return 0, err
			}
		}

	case StateBadDisc:
		// drives sometimes need a second look at a disc, but the same
		// answer gets the same result
		if media.IsAudio() && media != p.badMedia {
			p.state = StateLoad
		}

	case StateStop:
		p.abs, p.rel = models.MSF{}, models.MSF{}
		audio, err := p.drive.QueryPosition(ctx)
		if err != nil {
			return 0, err
		}
		if audio.State == atapi.PlayPlaying {
			// started from the front panel
			p.state = StatePlay
		}

	case StatePlay:
		audio, err := p.drive.QueryPosition(ctx)
		if err != nil {
			return 0, err
		}
		switch {
		case audio.State == atapi.PlayStopped || audio.Position.Track == models.LeadOutTrack:
			return 0, p.endOfProgramLocked(ctx)
		case audio.State == atapi.PlayPaused:
			p.state = StatePause
		default:
			p.mirrorLocked(audio)
		}

	case StatePause:
		audio, err := p.drive.QueryPosition(ctx)
		if err != nil {
			return 0, err
		}
		p.mirrorLocked(audio)
		if audio.State == atapi.PlayPlaying {
			p.state = StatePlay
		}

	case StateSeekFF, StateSeekRew:
		audio, err := p.drive.QueryPosition(ctx)
		if err != nil {
			return 0, err
		}
		p.mirrorLocked(audio)
		if quirks.MustUseSoftScan {
			return 0, p.softScanLocked(ctx)
		}
	}
	return 0, nil
}

// initLocked spins the drive up, lets it settle and then closes the tray:
// some drives report any disc inserted before that as faulty.
func (p *Player) initLocked(ctx context.Context) (time.Duration, error) {
	if !p.spunUp {
		if err := p.drive.Start(ctx, true); err != nil {
			return 0, err
		}
		if err := p.drive.WaitReady(ctx); err != nil {
			return 0, err
		}
		p.spunUp = true
		return p.opts.InitSettle, nil
	}

	if err := p.drive.Eject(ctx, false); err != nil {
		return 0, err
	}
	p.state = StateLoad
	return 0, nil
}

func (p *Player) loadLocked(ctx context.Context, media atapi.MediaType, quirks atapi.Quirks) (time.Duration, error) {
	if !media.IsAudio() && !quirks.NoMediaCodes {
		if media == atapi.MediaNoDisc {
			p.state = StateNoDisc
		} else {
			p.state = StateBadDisc
			p.badMedia = media
			p.log.WithField("media_type", media).Error("Bad media code")
		}
		p.slots[p.curSlot].Album = nil
		p.wantAutoPlay = false
		return 0, nil
	}

	// without media codes there is no telling when the disc is readable
	if quirks.NoMediaCodes && !p.loadSettled {
		p.loadSettled = true
		return p.opts.LoadSettle, nil
	}
	p.loadSettled = false

	toc, err := p.drive.ReadTOC(ctx)
	if err != nil && isTransient(err) {
		return 0, err
	}
	if err != nil || toc.IsEmpty() {
		p.log.WithError(err).WithField("slot", p.curSlot).Error("Unreadable TOC")
		p.state = StateBadDisc
		p.badMedia = media
		p.slots[p.curSlot].Album = nil
		p.wantAutoPlay = false
		return 0, nil
	}

	album := models.NewAlbum(toc)
	if text, err := p.drive.ReadCDText(ctx); err == nil {
		album.CDText = text
	} else if !errors.Is(err, atapi.ErrCheckCondition) {
		p.log.WithError(err).Debug("CD-Text unavailable")
	}
	p.slots[p.curSlot].Album = album
	p.history = nil
	p.track = models.FirstTrack
	p.abs, p.rel = models.MSF{}, models.MSF{}
	p.enqueueMetadataLocked(album)

	p.log.WithFields(logrus.Fields{
		"slot":    p.curSlot,
		"tracks":  len(album.Tracks),
		"length":  album.Duration,
		"load_id": album.LoadID,
	}).Info("Disc loaded")

	if !p.wantAutoPlay {
		p.state = StateStop
		return 0, nil
	}
	p.wantAutoPlay = false
	return 0, p.playFromStopLocked(ctx)
}

// isTransient reports whether err is a bus or timing failure that says
// nothing about the disc itself.
func isTransient(err error) bool {
	return errors.Is(err, atapi.ErrBus) ||
		errors.Is(err, atapi.ErrDeviceUnresponsive) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// syncSlotsLocked updates the slot table from the mechanism status. A drive
// that isn't a changer is modeled as one slot.
func (p *Player) syncSlotsLocked(media atapi.MediaType, mech atapi.MechInfo) {
	for len(p.slots) < mech.SlotCount {
		p.slots = append(p.slots, Slot{})
	}

	if mech.IsChanger() {
		for i := range p.slots {
			p.slots[i].Active = mech.CurrentSlot == i
			if p.slots[i].Active {
				p.curSlot = i
			}
			if i < len(mech.Slots) {
				p.slots[i].DiscPresent = mech.Slots[i].DiscIn
			}
		}
		return
	}

	p.curSlot = 0
	p.slots[0].Active = true
	p.slots[0].DiscPresent = media != atapi.MediaDoorOpen && media != atapi.MediaNoDisc
}

func (p *Player) mirrorLocked(audio atapi.AudioStatus) {
	p.track = audio.Position
	p.abs = audio.Absolute
	p.rel = audio.Relative
}

// endOfProgramLocked handles the drive running out of its play range:
// shuffle picks another track, a changer moves to the next disc, anything
// else stops.
func (p *Player) endOfProgramLocked(ctx context.Context) error {
	if p.mode == PlayModeShuffle {
		played, err := p.playNextShuffledLocked(ctx)
		if err != nil || played {
			return err
		}
	}
	if len(p.slots) > 1 {
		changed, err := p.changeDiscsLocked(ctx, true)
		if err != nil || changed {
			return err
		}
	}
	p.track = models.FirstTrack
	p.abs, p.rel = models.MSF{}, models.MSF{}
	p.state = StateStop
	return nil
}
