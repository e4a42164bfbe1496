package similarity

import (
	"context"
	"sync"
	"time"

	"github.com/jstall/pennywise/internal/model"
	"github.com/jstall/pennywise/internal/service"
)

// Cache holds the confirmed embeddings consulted by the semantic stage so
// repeated lookups don't rescan the store. Retraining clears it, forcing a
// reload on the next use. State is process-local and lost on restart.
type Cache struct {
	store    service.EmbeddingStore
	ttl      time.Duration
	limit    int
	mu       sync.RWMutex
	loaded   map[model.ItemType][]model.Embedding
	loadedAt map[model.ItemType]time.Time
}

// NewCache creates a cache backed by the embedding store. limit caps how
// many confirmed embeddings are loaded per item type.
func NewCache(store service.EmbeddingStore, limit int, ttl time.Duration) *Cache {
	if limit <= 0 {
		limit = 1000
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Cache{
		store:    store,
		ttl:      ttl,
		limit:    limit,
		loaded:   make(map[model.ItemType][]model.Embedding),
		loadedAt: make(map[model.ItemType]time.Time),
	}
}

// Confirmed returns the confirmed embeddings for an item type, loading from
// the store on first use or after expiry.
func (c *Cache) Confirmed(ctx context.Context, itemType model.ItemType) ([]model.Embedding, error) {
	c.mu.RLock()
	embeddings, ok := c.loaded[itemType]
	fresh := ok && time.Since(c.loadedAt[itemType]) < c.ttl
	c.mu.RUnlock()

	if fresh {
		return embeddings, nil
	}

	embeddings, err := c.store.GetConfirmedEmbeddings(ctx, itemType, c.limit)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.loaded[itemType] = embeddings
	c.loadedAt[itemType] = time.Now()
	c.mu.Unlock()

	return embeddings, nil
}

// Clear drops all cached embeddings. The next Confirmed call reloads from
// the store.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = make(map[model.ItemType][]model.Embedding)
	c.loadedAt = make(map[model.ItemType]time.Time)
}
