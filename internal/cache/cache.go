// Package cache provides the key/value cache with TTL used for remote
// documents.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chao7150/wpmastodon/internal/config"
	"github.com/chao7150/wpmastodon/internal/store"
)

// Cache stores opaque values with a time to live.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// NewFromConfig creates a Cache based on the cache config type.
func NewFromConfig(cfg config.CacheConfig, s *store.Store) (Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(nil), nil
	case "database", "":
		return NewDatabase(s), nil
	case "redis":
		if cfg.RedisAddr == "" {
			return nil, fmt.Errorf("redis cache requires redis_addr to be set")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			PoolSize: 10,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedis(client), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Type)
	}
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process cache. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   store.Clock
}

// NewMemory creates a Memory cache. A nil clock uses the wall clock.
func NewMemory(clock store.Clock) *Memory {
	if clock == nil {
		clock = store.RealClock{}
	}
	return &Memory{entries: make(map[string]memoryEntry), clock: clock}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !m.clock.Now().Before(e.expires) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expires = m.clock.Now().Add(ttl)
	}
	m.entries[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

const transientPrefix = "_transient_"

// Database keeps entries as transients in the options table.
type Database struct {
	store *store.Store
}

func NewDatabase(s *store.Store) *Database {
	return &Database{store: s}
}

func (d *Database) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := d.store.GetOption(ctx, transientPrefix+key)
	if err != nil || !ok {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (d *Database) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return d.store.PutOption(ctx, transientPrefix+key, string(value), ttl)
}

func (d *Database) Delete(ctx context.Context, key string) error {
	return d.store.DeleteOption(ctx, transientPrefix+key)
}

// Redis stores entries in a redis server under a fixed key prefix.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "wpmastodon:"}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get cache key %s: %w", key, err)
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set cache key %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", key, err)
	}
	return nil
}

// Close releases the redis connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
