package market

import (
	"sync"
	"time"

	"soltrader/internal/model"
)

// Cache is the engine-owned market snapshot. The refresh loop is the only
// writer; strategy processors read it each tick without added latency.
type Cache struct {
	mu        sync.RWMutex
	tokens    []model.Token
	updatedAt time.Time
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Replace swaps the whole snapshot. Empty snapshots are ignored so a dry
// refresh never wipes the last known-good data.
func (c *Cache) Replace(tokens []model.Token) {
	if len(tokens) == 0 {
		return
	}
	c.mu.Lock()
	c.tokens = tokens
	c.updatedAt = time.Now()
	c.mu.Unlock()
}

// Snapshot returns a copy of the current snapshot.
func (c *Cache) Snapshot() []model.Token {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := make([]model.Token, len(c.tokens))
	copy(cp, c.tokens)
	return cp
}

// Find returns a copy of the row matching the asset, or false.
func (c *Cache) Find(asset string) (model.Token, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t := model.FindToken(c.tokens, asset); t != nil {
		return *t, true
	}
	return model.Token{}, false
}

// UpdatedAt reports when the snapshot was last replaced.
func (c *Cache) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// Len returns the number of cached rows.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tokens)
}
