package cache

import (
	"context"
	"time"
)

// Entry is a cached value with the time it was stored
type Entry[V any] struct {
	Value    V         `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// Age returns how long ago the entry was stored
func (e Entry[V]) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}

// Cache is a key/value store with per-entry TTL and prefix invalidation.
// A ttl <= 0 keeps the entry until it is deleted.
type Cache[V any] interface {
	Get(ctx context.Context, key string) (Entry[V], bool, error)
	Set(ctx context.Context, key string, value V, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}
