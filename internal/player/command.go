package player

import (
	"context"
	"time"

	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

func (p *Player) commandLocked(ctx context.Context, cmd Command) error {
	switch p.state {
	case StateInit, StateLoad, StateChangeDisc:
		// inert until the drive has settled
		return nil
	}

	switch cmd {
	case CmdOpenClose, CmdOpen, CmdClose:
		return p.trayLocked(ctx, cmd)
	}

	switch p.state {
	case StateNoDisc, StateBadDisc:
		switch cmd {
		case CmdNextDisc, CmdPrevDisc:
			_, err := p.changeDiscsLocked(ctx, cmd == CmdNextDisc)
			return err
		}

	case StateOpen:
		if cmd == CmdPlay {
			// like closing the tray and pressing play once loaded
			if err := p.drive.Eject(ctx, false); err != nil {
				return err
			}
			p.wantAutoPlay = true
			p.state = StateClose
		}

	case StateStop:
		switch cmd {
		case CmdPlay:
			return p.playFromStopLocked(ctx)
		case CmdNextTrack, CmdPrevTrack:
			return p.changeTracksLocked(ctx, cmd == CmdNextTrack)
		case CmdNextDisc, CmdPrevDisc:
			_, err := p.changeDiscsLocked(ctx, cmd == CmdNextDisc)
			return err
		}

	case StatePlay, StatePause:
		switch cmd {
		case CmdPause:
			if p.state == StatePlay {
				if err := p.drive.Pause(ctx, true); err != nil {
					return err
				}
				p.state = StatePause
				return nil
			}
			fallthrough
		case CmdPlay:
			if p.state == StatePause {
				if err := p.drive.Pause(ctx, false); err != nil {
					return err
				}
				p.state = StatePlay
			}
		case CmdSeekFF, CmdSeekRew:
			return p.startSeekingLocked(ctx, cmd == CmdSeekFF)
		case CmdStop:
			return p.stopLocked(ctx)
		case CmdNextTrack, CmdPrevTrack:
			return p.changeTracksLocked(ctx, cmd == CmdNextTrack)
		case CmdNextDisc, CmdPrevDisc:
			_, err := p.changeDiscsLocked(ctx, cmd == CmdNextDisc)
			return err
		}

	case StateSeekFF, StateSeekRew:
		forward := p.state == StateSeekFF
		switch {
		case cmd == CmdEndSeek, cmd == CmdSeekFF && forward, cmd == CmdSeekRew && !forward:
			return p.endSeekLocked(ctx)
		case cmd == CmdPlay:
			if err := p.drive.Play(ctx, p.abs, p.rangeEndLocked()); err != nil {
				return err
			}
			p.state = StatePlay
		case cmd == CmdStop:
			return p.stopLocked(ctx)
		case cmd == CmdSeekFF, cmd == CmdSeekRew:
			p.state = p.preSeek
			return p.startSeekingLocked(ctx, cmd == CmdSeekFF)
		}
	}
	return nil
}

func (p *Player) trayLocked(ctx context.Context, cmd Command) error {
	if cmd == CmdOpenClose {
		cmd = CmdOpen
		if p.state == StateOpen {
			cmd = CmdClose
		}
	}

	open := cmd == CmdOpen
	if err := p.drive.Eject(ctx, open); err != nil {
		return err
	}
	if open {
		p.state = StateOpen
	} else {
		p.state = StateClose
	}
	return nil
}

func (p *Player) stopLocked(ctx context.Context) error {
	if err := p.drive.Stop(ctx); err != nil {
		return err
	}
	p.track = models.FirstTrack
	p.state = StateStop
	return nil
}

// playFromStopLocked starts playback of the current track. Under shuffle,
// starting from the first track draws a fresh random order.
func (p *Player) playFromStopLocked(ctx context.Context) error {
	album := p.activeAlbumLocked()
	if !album.HasTracks() {
		p.state = StateStop
		return nil
	}

	i := album.TrackIndex(p.track.Track)
	if p.mode == PlayModeShuffle {
		if i <= 0 {
			return p.startShuffleLocked(ctx)
		}
		if err := p.playTrackLocked(ctx, i, album.TrackEnd(i)); err != nil {
			return err
		}
		p.history = []int{album.Tracks[i].Disc.Number}
		p.state = StatePlay
		return nil
	}

	if i < 0 {
		i = 0
	}
	if err := p.playTrackLocked(ctx, i, album.Duration); err != nil {
		return err
	}
	p.state = StatePlay
	return nil
}

// playTrackLocked plays track index i up to end, staying paused when the
// player was paused.
func (p *Player) playTrackLocked(ctx context.Context, i int, end models.MSF) error {
	t := p.activeAlbumLocked().Tracks[i].Disc
	if err := p.drive.Play(ctx, t.Position, end); err != nil {
		return err
	}
	if p.state == StatePause {
		if err := p.drive.Pause(ctx, true); err != nil {
			return err
		}
	}
	p.track = models.TrackNo{Track: t.Number, Index: 1}
	p.abs = t.Position
	p.rel = models.MSF{}
	return nil
}

// rangeEndLocked is where the current play range ends: the end of the
// current track under shuffle, the end of the disc otherwise.
func (p *Player) rangeEndLocked() models.MSF {
	album := p.activeAlbumLocked()
	if album == nil {
		return models.MSF{}
	}
	if p.mode == PlayModeShuffle {
		if i := album.TrackIndex(p.track.Track); i >= 0 {
			return album.TrackEnd(i)
		}
	}
	return album.Duration
}

// changeTracksLocked moves to the next or previous track. Going back within
// the first three seconds of a track selects the previous one, later it
// restarts the current track. When stopped only the selection changes.
func (p *Player) changeTracksLocked(ctx context.Context, forward bool) error {
	album := p.activeAlbumLocked()
	if !album.HasTracks() {
		return nil
	}
	shuffling := p.mode == PlayModeShuffle && p.state != StateStop

	cur := max(album.TrackIndex(p.track.Track), 0)
	next := cur
	switch {
	case forward && shuffling:
		_, err := p.playNextShuffledLocked(ctx)
		return err
	case forward:
		next = min(cur+1, len(album.Tracks)-1)
	case p.state == StateStop || (p.rel.M == 0 && p.rel.S <= 3):
		if shuffling {
			return p.previousShuffledLocked(ctx)
		}
		next = max(cur-1, 0)
	}

	if p.state == StateStop {
		p.track = models.TrackNo{Track: album.Tracks[next].Disc.Number, Index: 1}
		return nil
	}

	end := album.Duration
	if p.mode == PlayModeShuffle {
		end = album.TrackEnd(next)
	}
	return p.playTrackLocked(ctx, next, end)
}

func (p *Player) startSeekingLocked(ctx context.Context, forward bool) error {
	if !p.activeAlbumLocked().HasTracks() {
		return nil
	}

	prev := p.state
	if !p.drive.Quirks().MustUseSoftScan {
		if err := p.drive.Scan(ctx, forward, p.abs); err != nil {
			return err
		}
	} else {
		if prev == StatePause {
			if err := p.drive.Pause(ctx, false); err != nil {
				return err
			}
		}
		p.scanStart = p.now()
		p.scanLast = time.Time{}
		p.scanHop = p.opts.SoftScanHop
	}

	p.preSeek = prev
	if forward {
		p.state = StateSeekFF
	} else {
		p.state = StateSeekRew
	}
	return nil
}

// endSeekLocked returns to whatever state the seek was started from.
func (p *Player) endSeekLocked(ctx context.Context) error {
	if p.preSeek == StatePlay {
		if err := p.drive.Play(ctx, p.abs, p.rangeEndLocked()); err != nil {
			return err
		}
		p.state = StatePlay
		return nil
	}
	if err := p.drive.Pause(ctx, true); err != nil {
		return err
	}
	p.state = StatePause
	return nil
}

// softScanLocked emulates scanning by hopping the play position, with hops
// growing the longer the button is held.
func (p *Player) softScanLocked(ctx context.Context) error {
	album := p.activeAlbumLocked()
	if !album.HasTracks() {
		return nil
	}

	now := p.now()
	interval := p.opts.SoftScanInterval
	if now.Sub(p.scanLast) < interval {
		return nil
	}
	if p.opts.SoftScanGrowEvery > 0 && now.Sub(p.scanStart) >= interval*time.Duration(p.opts.SoftScanGrowEvery) {
		p.scanStart = now
		p.scanHop = p.scanHop.Add(p.opts.SoftScanHopGrowth)
	}

	target := p.abs.Sub(p.scanHop)
	if p.state == StateSeekFF {
		target = p.abs.Add(p.scanHop)
	}
	first := album.Tracks[0].Disc.Position
	last := album.Duration.Sub(models.MSF{S: 1})
	if last.Before(target) {
		target = last
	}
	if target.Before(first) {
		target = first
	}

	if err := p.drive.Play(ctx, target, album.Duration); err != nil {
		return err
	}
	p.scanLast = now
	return nil
}

// changeDiscsLocked asks a changer to move to the next or previous slot
// holding a disc, skipping empty ones. It reports false if there is no
// other disc to go to.
func (p *Player) changeDiscsLocked(ctx context.Context, forward bool) (bool, error) {
	n := len(p.slots)
	if n < 2 {
		return false, nil
	}
	present := 0
	for _, s := range p.slots {
		if s.DiscPresent {
			present++
		}
	}
	if present == 0 {
		return false, nil
	}

	step := func(i int) int {
		if forward {
			return (i + 1) % n
		}
		return (i + n - 1) % n
	}
	i := step(p.curSlot)
	for !p.slots[i].DiscPresent {
		i = step(i)
	}
	if i == p.curSlot {
		return false, nil
	}

	prev := p.state
	if prev == StatePlay || prev == StatePause {
		if err := p.drive.Stop(ctx); err != nil {
			return false, err
		}
	}

	p.log.WithFields(logrus.Fields{"from": p.curSlot, "to": i}).Info("Changing slot")
	if err := p.drive.LoadUnload(ctx, i); err != nil {
		return false, err
	}

	p.expectedSlot = i
	p.state = StateChangeDisc
	if prev == StatePlay {
		p.wantAutoPlay = true
	}
	return true, nil
}
