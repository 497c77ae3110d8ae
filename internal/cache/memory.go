package cache

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process cache backed by go-cache
type Memory[V any] struct {
	store *gocache.Cache
	now   func() time.Time
}

// NewMemory creates an in-process cache; expired items are purged every cleanup interval
func NewMemory[V any](cleanup time.Duration) *Memory[V] {
	return &Memory[V]{
		store: gocache.New(gocache.NoExpiration, cleanup),
		now:   time.Now,
	}
}

// Get returns a live entry
func (m *Memory[V]) Get(_ context.Context, key string) (Entry[V], bool, error) {
	item, found := m.store.Get(key)
	if !found {
		return Entry[V]{}, false, nil
	}
	entry, ok := item.(Entry[V])
	if !ok {
		m.store.Delete(key)
		return Entry[V]{}, false, nil
	}
	return entry, true, nil
}

// Set stores a value
func (m *Memory[V]) Set(_ context.Context, key string, value V, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.store.Set(key, Entry[V]{Value: value, StoredAt: m.now()}, ttl)
	return nil
}

// Delete removes a key
func (m *Memory[V]) Delete(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

// DeletePrefix removes every key starting with prefix
func (m *Memory[V]) DeletePrefix(_ context.Context, prefix string) error {
	for key := range m.store.Items() {
		if strings.HasPrefix(key, prefix) {
			m.store.Delete(key)
		}
	}
	return nil
}
