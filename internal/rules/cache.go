package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/irisdrone/echallan/internal/models"
	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Cache holds active rule sets keyed by violation class.
type Cache interface {
	Get(ctx context.Context, class string) ([]models.Rule, bool, error)
	Set(ctx context.Context, class string, rules []models.Rule) error
	Flush(ctx context.Context) error
}

// MemoryCache is a process-local rule cache.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates a MemoryCache whose entries expire after ttl.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(ttl, ttl*2)}
}

func (m *MemoryCache) Get(_ context.Context, class string) ([]models.Rule, bool, error) {
	cached, found := m.c.Get(class)
	if !found {
		return nil, false, nil
	}
	rules, ok := cached.([]models.Rule)
	if !ok {
		return nil, false, nil
	}
	return append([]models.Rule(nil), rules...), true, nil
}

func (m *MemoryCache) Set(_ context.Context, class string, rules []models.Rule) error {
	m.c.Set(class, append([]models.Rule(nil), rules...), gocache.DefaultExpiration)
	return nil
}

func (m *MemoryCache) Flush(context.Context) error {
	m.c.Flush()
	return nil
}

const redisKeyPrefix = "echallan:rules:"

// RedisCache shares rule sets between service replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache on an existing client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(class string) string {
	return redisKeyPrefix + class
}

func (r *RedisCache) Get(ctx context.Context, class string) ([]models.Rule, bool, error) {
	data, err := r.client.Get(ctx, redisKey(class)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get rules %q: %w", class, err)
	}
	var rules []models.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, false, fmt.Errorf("decode cached rules %q: %w", class, err)
	}
	return rules, true, nil
}

func (r *RedisCache) Set(ctx context.Context, class string, rules []models.Rule) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("encode rules %q: %w", class, err)
	}
	if err := r.client.Set(ctx, redisKey(class), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set rules %q: %w", class, err)
	}
	return nil
}

func (r *RedisCache) Flush(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan rules: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}
