package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores final results keyed by provider and text digest, so the same
// text scored twice by the same provider yields the same verdict.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, bool, error)
	Set(ctx context.Context, key string, res *Result) error
}

// CacheKey derives the cache key for text scored by provider.
func CacheKey(provider, text string) string {
	sum := sha256.Sum256([]byte(text))
	return "originality:score:" + provider + ":" + hex.EncodeToString(sum[:])
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string][]byte
}

// NewMemoryCache returns an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string][]byte)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*Result, bool, error) {
	c.mu.RLock()
	data, ok := c.m[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, err
	}
	return &res, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, res *Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.m[key] = data
	c.mu.Unlock()
	return nil
}

// RedisCache is a Cache shared between instances through Redis.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisCache connects to addr and pings it. A zero ttl keeps entries
// forever.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("scoring: redis ping %s: %w", addr, err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

// NewRedisCacheWithClient wraps an existing client.
func NewRedisCacheWithClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("scoring: redis get: %w", err)
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("scoring: redis decode: %w", err)
	}
	return &res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res *Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("scoring: redis set: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
