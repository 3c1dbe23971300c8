package catalog

import (
	"context"
	"sync"
	"time"

	"posbridge/models"
)

// Cache holds the last loaded catalog for a fixed TTL. Concurrent callers
// that find it expired may each reload; only the map swap is guarded.
type Cache struct {
	source Source
	ttl    time.Duration
	now    func() time.Time

	// OnRefresh, when set, is called after every load attempt.
	OnRefresh func(rows int, err error)

	mu       sync.RWMutex
	rows     []models.CatalogMapping
	loadedAt time.Time
	loaded   bool
}

func NewCache(source Source, ttl time.Duration) *Cache {
	return &Cache{source: source, ttl: ttl, now: time.Now}
}

// Rows returns the cached catalog, reloading it once the TTL has passed.
// A failed reload is returned to the caller and the stale rows are kept
// for the next attempt.
func (c *Cache) Rows(ctx context.Context) ([]models.CatalogMapping, error) {
	c.mu.RLock()
	rows, fresh := c.rows, c.loaded && c.now().Sub(c.loadedAt) < c.ttl
	c.mu.RUnlock()
	if fresh {
		return rows, nil
	}

	rows, err := c.source.Load(ctx)
	if c.OnRefresh != nil {
		c.OnRefresh(len(rows), err)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.rows = rows
	c.loadedAt = c.now()
	c.loaded = true
	c.mu.Unlock()
	return rows, nil
}

// Invalidate forces the next call to reload.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.mu.Unlock()
}
