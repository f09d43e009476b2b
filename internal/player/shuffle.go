package player

import (
	"context"
	"slices"

	"github.com/sirupsen/logrus"
)

// startShuffleLocked begins a new random order over the active disc.
func (p *Player) startShuffleLocked(ctx context.Context) error {
	p.history = nil
	played, err := p.playNextShuffledLocked(ctx)
	if err != nil {
		return err
	}
	if !played {
		p.state = StateStop
	}
	return nil
}

// playNextShuffledLocked plays a random audio track that hasn't been played
// since the shuffle started, just that track. It reports false once every
// track has had its turn.
func (p *Player) playNextShuffledLocked(ctx context.Context) (bool, error) {
	album := p.activeAlbumLocked()
	if !album.HasTracks() {
		return false, nil
	}
	// only a track that actually played counts
	if (p.state == StatePlay || p.state == StatePause) && !slices.Contains(p.history, p.track.Track) {
		p.history = append(p.history, p.track.Track)
	}

	var candidates []int
	for i, t := range album.Tracks {
		if !t.Disc.IsData && !slices.Contains(p.history, t.Disc.Number) {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		p.log.WithField("played", len(p.history)).Debug("Shuffle exhausted")
		return false, nil
	}

	i := candidates[p.intn(len(candidates))]
	if err := p.playTrackLocked(ctx, i, album.TrackEnd(i)); err != nil {
		return false, err
	}
	p.history = append(p.history, album.Tracks[i].Disc.Number)
	if p.state != StatePause {
		p.state = StatePlay
	}
	return true, nil
}

// previousShuffledLocked steps back through the shuffle history. With
// nothing to go back to it restarts the current track.
func (p *Player) previousShuffledLocked(ctx context.Context) error {
	album := p.activeAlbumLocked()
	if len(p.history) >= 2 {
		p.history = p.history[:len(p.history)-1]
		if i := album.TrackIndex(p.history[len(p.history)-1]); i >= 0 {
			return p.playTrackLocked(ctx, i, album.TrackEnd(i))
		}
	}
	i := max(album.TrackIndex(p.track.Track), 0)
	return p.playTrackLocked(ctx, i, album.TrackEnd(i))
}

// setPlayModeLocked switches play modes. While a disc plays, the play range
// is re-issued from the current position: under shuffle it must end with
// the current track so the drive reports the end of it.
func (p *Player) setPlayModeLocked(ctx context.Context, mode PlayMode) error {
	if mode == p.mode {
		return nil
	}

	album := p.activeAlbumLocked()
	i := album.TrackIndex(p.track.Track)
	if (p.state == StatePlay || p.state == StatePause) && i >= 0 {
		end := album.Duration
		if mode == PlayModeShuffle {
			end = album.TrackEnd(i)
		}
		if err := p.drive.Play(ctx, p.abs, end); err != nil {
			return err
		}
		if p.state == StatePause {
			if err := p.drive.Pause(ctx, true); err != nil {
				return err
			}
		}
	}

	p.history = nil
	if mode == PlayModeShuffle && i >= 0 && p.state != StateStop {
		p.history = []int{p.track.Track}
	}
	p.log.WithFields(logrus.Fields{"from": p.mode, "to": mode}).Info("Play mode")
	p.mode = mode
	return nil
}
