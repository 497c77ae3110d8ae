package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"xui-shop-core/internal/config"
	"xui-shop-core/internal/helpers"
)

const scanBatch = 100

// Connect opens a redis client and checks it with PING
func Connect(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	const op = "cache.Connect"
	db := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

// Redis stores JSON encoded entries under a namespace
type Redis[V any] struct {
	db        *redis.Client
	namespace string
	now       func() time.Time
}

// NewRedis creates a redis cache; every key is stored as namespace+key
func NewRedis[V any](db *redis.Client, namespace string) *Redis[V] {
	return &Redis[V]{db: db, namespace: namespace, now: time.Now}
}

// Get returns a stored entry. Entries that no longer decode are dropped.
func (r *Redis[V]) Get(ctx context.Context, key string) (Entry[V], bool, error) {
	const op = "cache.Redis.Get"
	val, err := r.db.Get(ctx, r.namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry[V]{}, false, nil
	}
	if err != nil {
		return Entry[V]{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var entry Entry[V]
	if err := helpers.DecodeJSON(val, &entry); err != nil {
		_ = r.db.Del(ctx, r.namespace+key).Err()
		return Entry[V]{}, false, nil
	}
	return entry, true, nil
}

// Set stores a value
func (r *Redis[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	const op = "cache.Redis.Set"
	data, err := json.Marshal(Entry[V]{Value: value, StoredAt: r.now()})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := r.db.Set(ctx, r.namespace+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Delete removes a key
func (r *Redis[V]) Delete(ctx context.Context, key string) error {
	if err := r.db.Del(ctx, r.namespace+key).Err(); err != nil {
		return fmt.Errorf("cache.Redis.Delete: %w", err)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix
func (r *Redis[V]) DeletePrefix(ctx context.Context, prefix string) error {
	const op = "cache.Redis.DeletePrefix"
	pattern := escapeGlob(r.namespace+prefix) + "*"

	var cursor uint64
	for {
		keys, next, err := r.db.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if len(keys) > 0 {
			if err := r.db.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// escapeGlob quotes the characters redis MATCH treats as pattern syntax
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
