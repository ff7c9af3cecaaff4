package core

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/phamhung075/4genthub-sub028/pkg/models"
)

// InheritanceCache memoizes resolved contexts. Entries are keyed by
// (level, id, user, version vector); any context write bumps the owning
// user's version, so every stale entry simply stops being addressable and
// ages out of the LRU.
type InheritanceCache struct {
	lru *lru.Cache[string, *models.ResolvedContext]

	mu       sync.Mutex
	versions map[string]uint64
}

// NewInheritanceCache creates a cache capped at size entries
func NewInheritanceCache(size int) (*InheritanceCache, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, *models.ResolvedContext](size)
	if err != nil {
		return nil, err
	}
	return &InheritanceCache{
		lru:      cache,
		versions: make(map[string]uint64),
	}, nil
}

// Version returns the user's current version vector
func (c *InheritanceCache) Version(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID]
}

// Bump increments the user's version vector, invalidating every cached
// resolution for that user. The per-user guard keeps versions monotone
// under concurrent writers.
func (c *InheritanceCache) Bump(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[userID]++
	return c.versions[userID]
}

// Get returns the cached resolution for the key at the user's current
// version
func (c *InheritanceCache) Get(level models.ContextLevel, id, userID string) (*models.ResolvedContext, bool) {
	return c.lru.Get(c.key(level, id, userID, c.Version(userID)))
}

// Put stores a resolution at the user's current version
func (c *InheritanceCache) Put(level models.ContextLevel, id, userID string, resolved *models.ResolvedContext) {
	c.lru.Add(c.key(level, id, userID, c.Version(userID)), resolved)
}

// Purge drops every entry
func (c *InheritanceCache) Purge() {
	c.lru.Purge()
}

func (c *InheritanceCache) key(level models.ContextLevel, id, userID string, version uint64) string {
	return fmt.Sprintf("%s:%s:%s:%d", level, id, userID, version)
}
