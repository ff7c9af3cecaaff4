package cache

import (
	"context"
	"time"
)

// NoopCache never stores anything. Useful for tests and for disabling
// caching without touching call sites.
type NoopCache struct{}

// NewNoopCache creates a cache that drops all writes
func NewNoopCache() *NoopCache { return &NoopCache{} }

func (c *NoopCache) Get(ctx context.Context, key string, value any) error { return ErrNotFound }
func (c *NoopCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return nil
}
func (c *NoopCache) Delete(ctx context.Context, key string) error   { return nil }
func (c *NoopCache) Exists(ctx context.Context, key string) (bool, error) { return false, nil }
func (c *NoopCache) Flush(ctx context.Context) error                { return nil }
func (c *NoopCache) Close() error                                   { return nil }
