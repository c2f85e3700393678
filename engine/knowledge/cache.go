package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/paylane/concierge/pkg/config"
	"github.com/paylane/concierge/pkg/logger"
)

// CachedSelection is the payload stored per normalized-query hash. Fallback
// results are never written, so a re-indexed corpus is picked up on the next
// identical query.
type CachedSelection struct {
	Chunks    []Chunk   `json:"chunks"`
	AvgScore  float64   `json:"avg_score"`
	Context   string    `json:"context"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryCache stores retrieval selections keyed by normalized-query hash.
// Implementations must be safe under concurrent access; concurrent writers
// for the same key may race, last writer wins.
type QueryCache interface {
	Get(ctx context.Context, key string) (*CachedSelection, bool)
	Set(ctx context.Context, key string, selection *CachedSelection)
	Clear(ctx context.Context)
}

// NewQueryCache builds the configured backend.
func NewQueryCache(cfg config.CacheConfig) (QueryCache, error) {
	switch cfg.Backend {
	case "redis":
		options, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("knowledge: invalid redis url: %w", err)
		}
		return NewRedisQueryCache(redis.NewClient(options), cfg.TTL), nil
	default:
		return NewMemoryQueryCache(cfg.MaxItems, cfg.TTL), nil
	}
}

// MemoryQueryCache is the in-process TTL cache backed by an expirable LRU.
type MemoryQueryCache struct {
	ttl     time.Duration
	entries *expirable.LRU[string, *CachedSelection]
}

func NewMemoryQueryCache(maxItems int, ttl time.Duration) *MemoryQueryCache {
	if maxItems <= 0 {
		maxItems = 1024
	}
	return &MemoryQueryCache{
		ttl:     ttl,
		entries: expirable.NewLRU[string, *CachedSelection](maxItems, nil, ttl),
	}
}

func (c *MemoryQueryCache) Get(_ context.Context, key string) (*CachedSelection, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	return c.entries.Get(key)
}

func (c *MemoryQueryCache) Set(_ context.Context, key string, selection *CachedSelection) {
	if c.ttl <= 0 || selection == nil {
		return
	}
	c.entries.Add(key, selection)
}

func (c *MemoryQueryCache) Clear(_ context.Context) {
	c.entries.Purge()
}

// RedisQueryCache shares the query cache across replicas.
type RedisQueryCache struct {
	client *redis.Client
	ttl    time.Duration
}

const redisKeyPrefix = "concierge:rag:"

func NewRedisQueryCache(client *redis.Client, ttl time.Duration) *RedisQueryCache {
	return &RedisQueryCache{client: client, ttl: ttl}
}

func (c *RedisQueryCache) Get(ctx context.Context, key string) (*CachedSelection, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.FromContext(ctx).Warn("Query cache read failed", "error", err)
		}
		return nil, false
	}
	var selection CachedSelection
	if err := json.Unmarshal(raw, &selection); err != nil {
		return nil, false
	}
	return &selection, true
}

func (c *RedisQueryCache) Set(ctx context.Context, key string, selection *CachedSelection) {
	if c.ttl <= 0 || selection == nil {
		return
	}
	raw, err := json.Marshal(selection)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, c.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn("Query cache write failed", "error", err)
	}
}

func (c *RedisQueryCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}
