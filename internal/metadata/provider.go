// Package metadata looks up album titles and artists for loaded discs.
//
// Providers fill in what they know about an album; an Aggregate chains them
// behind a cache keyed by MusicBrainz disc ID.
package metadata

import (
	"context"
	"errors"
	"io"

	"cdchanger/pkg/models"

	"github.com/sirupsen/logrus"
)

// Provider fills in empty metadata fields of an album. The album belongs to
// the caller for the duration of the call.
type Provider interface {
	FetchAlbum(ctx context.Context, album *models.Album) error
}

// ProviderFunc adapts a function to a Provider.
type ProviderFunc func(ctx context.Context, album *models.Album) error

// FetchAlbum calls f.
func (f ProviderFunc) FetchAlbum(ctx context.Context, album *models.Album) error {
	return f(ctx, album)
}

// Cache stores album metadata by disc ID.
type Cache interface {
	LoadMetadata(ctx context.Context, discID string) (models.AlbumMetadata, bool, error)
	SaveMetadata(ctx context.Context, discID string, md models.AlbumMetadata) error
}

// Aggregate asks its cache first, then each provider in turn until the
// album is complete. Results good enough to keep are written back to the
// cache.
type Aggregate struct {
	cache     Cache
	providers []Provider
	logger    *logrus.Entry
}

// NewAggregate creates an aggregate provider. cache may be nil.
func NewAggregate(cache Cache, logger *logrus.Logger, providers ...Provider) *Aggregate {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Aggregate{
		cache:     cache,
		providers: providers,
		logger:    logger.WithField("component", "metadata"),
	}
}

// FetchAlbum looks the album up. Failing providers are logged and skipped;
// only cancellation is returned as an error.
func (a *Aggregate) FetchAlbum(ctx context.Context, album *models.Album) error {
	if !album.HasTracks() {
		return nil
	}

	discID, err := MusicBrainzDiscID(album)
	if err != nil {
		a.logger.WithError(err).Debug("No disc ID, cache bypassed")
	}
	log := a.logger.WithFields(logrus.Fields{"disc_id": discID, "load_id": album.LoadID})

	if a.cache != nil && discID != "" {
		md, ok, err := a.cache.LoadMetadata(ctx, discID)
		switch {
		case err != nil:
			log.WithError(err).Warn("Metadata cache lookup failed")
		case ok:
			album.ApplyMetadata(md)
			log.WithField("title", album.Title).Debug("Metadata cache hit")
			if album.IsMetadataComplete() {
				return nil
			}
		}
	}

	before := album.Metadata()
	for _, p := range a.providers {
		if err := p.FetchAlbum(ctx, album); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			log.WithError(err).Warn("Metadata provider failed")
		}
		if album.IsMetadataComplete() {
			break
		}
	}

	if a.cache == nil || discID == "" || !album.IsMetadataCacheable() || sameMetadata(before, album.Metadata()) {
		return nil
	}
	if err := a.cache.SaveMetadata(ctx, discID, album.Metadata()); err != nil {
		log.WithError(err).Warn("Failed to cache metadata")
	}
	return nil
}

func sameMetadata(a, b models.AlbumMetadata) bool {
	if a.Title != b.Title || a.Artist != b.Artist || len(a.Tracks) != len(b.Tracks) {
		return false
	}
	for i := range a.Tracks {
		if a.Tracks[i] != b.Tracks[i] {
			return false
		}
	}
	return true
}
