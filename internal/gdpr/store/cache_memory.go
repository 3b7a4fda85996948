// Package store caches sealed export bundles until their download expires.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"piivault/pkg/domain"
	"piivault/pkg/platform/sentinel"
	"piivault/pkg/requestcontext"
)

// Error Contract:
// - Get returns sentinel.ErrNotFound for unknown and expired exports

type entry struct {
	sealed    string
	expiresAt time.Time
}

// InMemoryCache holds sealed exports in process. Expired entries are dropped
// lazily on access and on Put.
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[domain.ExportID]entry
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[domain.ExportID]entry)}
}

func (c *InMemoryCache) Put(ctx context.Context, id domain.ExportID, sealed string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("export ttl must be positive")
	}
	now := requestcontext.Now(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[id] = entry{sealed: sealed, expiresAt: now.Add(ttl)}
	return nil
}

func (c *InMemoryCache) Get(ctx context.Context, id domain.ExportID) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return "", fmt.Errorf("export %s: %w", id, sentinel.ErrNotFound)
	}
	if !requestcontext.Now(ctx).Before(e.expiresAt) {
		delete(c.entries, id)
		return "", fmt.Errorf("export %s expired: %w", id, sentinel.ErrNotFound)
	}
	return e.sealed, nil
}
