// Package thumbcache provides ephemeral storage for rendered thumbnails.
//
// Entries are derived data keyed by (assetID, width, height) and TTL-bound.
// A miss never means the source asset is gone; it only forces regeneration.
package thumbcache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harborlab/mediastore/pkg/mediastore"
)

// Memory is an in-process TTL cache implementing mediastore.ThumbnailCache.
type Memory struct {
	mu      sync.RWMutex
	entries map[mediastore.ThumbKey]memoryEntry
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemory creates a new in-process thumbnail cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[mediastore.ThumbKey]memoryEntry),
	}
}

func (c *Memory) Get(ctx context.Context, key mediastore.ThumbKey) ([]byte, bool, error) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false, nil
	}

	return entry.data, true, nil
}

func (c *Memory) Set(ctx context.Context, key mediastore.ThumbKey, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		data:      data,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

func (c *Memory) PurgeAsset(ctx context.Context, assetID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.AssetID == assetID {
			delete(c.entries, key)
		}
	}
	return nil
}
