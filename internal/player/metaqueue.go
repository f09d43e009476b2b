package player

import (
	"context"
	"errors"

	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// enqueueMetadataLocked queues a private copy of a freshly loaded album for
// the metadata worker.
func (p *Player) enqueueMetadataLocked(album *models.Album) {
	if p.meta == nil {
		return
	}
	p.backlog = append(p.backlog, album.Clone())
	p.metaPending.Add(1)
}

// flushMetadataLocked hands queued albums to the worker without blocking.
// Albums whose disc is no longer loaded in any slot are dropped.
func (p *Player) flushMetadataLocked() {
	for len(p.backlog) > 0 {
		album := p.backlog[0]
		if p.slotOfLocked(album) < 0 {
			p.backlog = p.backlog[1:]
			p.metaPending.Add(-1)
			continue
		}
		select {
		case p.metaQueue <- album:
			p.backlog = p.backlog[1:]
		default:
			return
		}
	}
}

func (p *Player) slotOfLocked(album *models.Album) int {
	for i, s := range p.slots {
		if s.Album != nil && s.Album.LoadID == album.LoadID {
			return i
		}
	}
	return -1
}

func (p *Player) metadataLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case album := <-p.metaQueue:
			p.fetchMetadata(ctx, album)
			if err := p.sleep(ctx, p.opts.MetadataInterval); err != nil {
				return
			}
		}
	}
}

// fetchMetadata runs the provider on an album only this goroutine holds and
// publishes the result if the disc is still loaded.
func (p *Player) fetchMetadata(ctx context.Context, album *models.Album) {
	defer p.metaPending.Add(-1)

	log := p.log.WithField("load_id", album.LoadID)
	if err := p.meta.FetchAlbum(ctx, album); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("Metadata lookup failed")
		}
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	slot := p.slotOfLocked(album)
	if slot < 0 {
		log.Debug("Disc gone before metadata arrived")
		return
	}
	p.slots[slot].Album = album
	p.publishLocked()

	log.WithFields(logrus.Fields{
		"slot":   slot,
		"title":  album.Title,
		"artist": album.Artist,
	}).Info("Metadata applied")
	p.listeners.notify(Event{
		Kind:  EventMetadata,
		State: p.state,
		Slot:  slot,
		Track: p.track,
		Album: album,
		At:    p.now(),
	})
}
