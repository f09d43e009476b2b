package cache

import (
	"context"
	"sync"
	"time"

	"cdchanger/pkg/models"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Value      any
	Expiration time.Time
}

// IsExpired checks if the cache entry has expired at now
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.Expiration)
}

// MemoryCache implements a simple in-memory cache
type MemoryCache struct {
	items map[string]*CacheEntry
	mutex sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
	done  chan struct{}
	once  sync.Once
}

// NewMemoryCache creates a new memory cache. Expired entries are swept every
// cleanup interval until Close is called.
func NewMemoryCache(ttl, cleanup time.Duration) *MemoryCache {
	cache := &MemoryCache{
		items: make(map[string]*CacheEntry),
		ttl:   ttl,
		now:   time.Now,
		done:  make(chan struct{}),
	}

	if cleanup > 0 {
		go cache.cleanupExpired(cleanup)
	}

	return cache
}

// Set stores a value in the cache
func (c *MemoryCache) Set(key string, value any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items[key] = &CacheEntry{
		Value:      value,
		Expiration: c.now().Add(c.ttl),
	}
}

// Get retrieves a value from the cache
func (c *MemoryCache) Get(key string) (any, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	entry, exists := c.items[key]
	if !exists || entry.IsExpired(c.now()) {
		return nil, false
	}

	return entry.Value, true
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(key string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.items, key)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.items = make(map[string]*CacheEntry)
}

// Size returns the number of items in the cache, expired ones included
// until they are swept
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return len(c.items)
}

// Close stops the cleanup goroutine
func (c *MemoryCache) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *MemoryCache) cleanupExpired(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCache) sweep() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	for key, entry := range c.items {
		if entry.IsExpired(now) {
			delete(c.items, key)
		}
	}
}

// AlbumCache keeps album metadata by disc ID
type AlbumCache struct {
	*MemoryCache
}

// NewAlbumCache creates a new album metadata cache
func NewAlbumCache(ttl time.Duration) *AlbumCache {
	return &AlbumCache{
		MemoryCache: NewMemoryCache(ttl, 5*time.Minute),
	}
}

// LoadMetadata returns the cached metadata for a disc
func (ac *AlbumCache) LoadMetadata(ctx context.Context, discID string) (models.AlbumMetadata, bool, error) {
	value, exists := ac.Get(discID)
	if !exists {
		return models.AlbumMetadata{}, false, nil
	}

	md, ok := value.(models.AlbumMetadata)
	return md, ok, nil
}

// SaveMetadata caches the metadata of a disc
func (ac *AlbumCache) SaveMetadata(ctx context.Context, discID string, md models.AlbumMetadata) error {
	md.Tracks = append([]models.TrackMetadata(nil), md.Tracks...)
	ac.Set(discID, md)
	return nil
}
