// Package redis caches candle snapshots keyed by series, so switching
// back to a recently viewed symbol/timeframe skips the bridge fetch.
// The cache is best effort: a dead Redis degrades to provider-only.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"chartsync/internal/model"
)

// CacheConfig configures the snapshot cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int

	// TTL bounds snapshot staleness. Default 2 minutes.
	TTL time.Duration
}

// Cache stores candle snapshots in Redis strings.
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewCache creates a snapshot cache and pings the server.
func NewCache(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 2 * time.Minute
	}

	log.Printf("[redis-cache] connected to %s (ttl=%s)", cfg.Addr, ttl)
	return &Cache{client: client, ttl: ttl}, nil
}

func cacheKey(sel model.SeriesSelector) string {
	return "chart:snap:" + sel.Key()
}

// Get returns the cached snapshot for sel, or (nil, nil) on a miss.
func (c *Cache) Get(ctx context.Context, sel model.SeriesSelector) (*model.CandleSnapshot, error) {
	data, err := c.client.Get(ctx, cacheKey(sel)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", cacheKey(sel), err)
	}

	var snap model.CandleSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot %s: %w", cacheKey(sel), err)
	}
	return &snap, nil
}

// Put stores a snapshot for sel with the configured TTL.
func (c *Cache) Put(ctx context.Context, sel model.SeriesSelector, snap *model.CandleSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return c.client.Set(ctx, cacheKey(sel), string(data), c.ttl).Err()
}

// Invalidate drops the cached snapshot for sel.
func (c *Cache) Invalidate(ctx context.Context, sel model.SeriesSelector) error {
	return c.client.Del(ctx, cacheKey(sel)).Err()
}

// Client exposes the underlying connection for health probes.
func (c *Cache) Client() *goredis.Client {
	return c.client
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}
