package cache

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"budgetbee/internal/core"
	applog "budgetbee/internal/log"
)

// SpentCache memoises per-category expense totals of a period. Entries are
// invalidated whenever a transaction of that category and period changes.
//
// Readers take a Generation before querying the database and hand it back
// to Set. Set is dropped when an Invalidate ran in between, so a total read
// before a commit is never cached after that commit's invalidation.
type SpentCache interface {
	Get(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, bool)
	Generation(ctx context.Context, id core.CategoryID, p core.Period) uint64
	Set(ctx context.Context, id core.CategoryID, p core.Period, spent core.Money, gen uint64)
	Invalidate(ctx context.Context, id core.CategoryID, p core.Period)
	Close() error
}

// noGeneration never matches a stored generation, so Set becomes a no-op.
const noGeneration = math.MaxUint64

func spentKey(id core.CategoryID, p core.Period) string {
	return fmt.Sprintf("spent:{%04d-%02d:%s}", p.Year, p.Month, id)
}

func generationKey(id core.CategoryID, p core.Period) string {
	return fmt.Sprintf("spentgen:{%04d-%02d:%s}", p.Year, p.Month, id)
}

// MemorySpentCache keeps totals in an in-process LRU. It tracks a single
// generation for all keys: any invalidation drops concurrent Sets.
type MemorySpentCache struct {
	mu  sync.Mutex
	gen uint64
	lru *LRUCache[int64]
}

func NewMemorySpentCache(maxSize int, ttl time.Duration) *MemorySpentCache {
	return &MemorySpentCache{lru: NewLRUCache[int64](maxSize, ttl)}
}

func (c *MemorySpentCache) Get(_ context.Context, id core.CategoryID, p core.Period) (core.Money, bool) {
	cents, ok := c.lru.Get(spentKey(id, p))
	return core.Money{Cents: cents}, ok
}

func (c *MemorySpentCache) Generation(context.Context, core.CategoryID, core.Period) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *MemorySpentCache) Set(_ context.Context, id core.CategoryID, p core.Period, spent core.Money, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.lru.Set(spentKey(id, p), spent.Cents)
}

func (c *MemorySpentCache) Invalidate(_ context.Context, id core.CategoryID, p core.Period) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.lru.Delete(spentKey(id, p))
}

// CleanExpired lets a Manager expire the underlying LRU.
func (c *MemorySpentCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

func (c *MemorySpentCache) Close() error { return nil }

// generationTTL outlives any in-flight read by a wide margin.
const generationTTL = 24 * time.Hour

// RedisSpentCache shares totals between server replicas. Redis failures are
// logged and treated as misses; the database stays authoritative.
type RedisSpentCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisSpentCache connects to redisURL and verifies the connection.
// Bare host:port values are accepted as well as redis:// URLs.
func NewRedisSpentCache(ctx context.Context, redisURL string, ttl time.Duration, logger *slog.Logger) (*RedisSpentCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt, err = redis.ParseURL("redis://" + redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisSpentCacheFromClient(client, ttl, logger), nil
}

func NewRedisSpentCacheFromClient(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSpentCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisSpentCache{
		client: client,
		ttl:    ttl,
		logger: logger.With(applog.FieldComponent, applog.ComponentCache),
	}
}

func (c *RedisSpentCache) Get(ctx context.Context, id core.CategoryID, p core.Period) (core.Money, bool) {
	raw, err := c.client.Get(ctx, spentKey(id, p)).Result()
	if err == redis.Nil {
		return core.Money{}, false
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Redis get failed", applog.FieldCategoryID, id.String(), applog.FieldError, err)
		return core.Money{}, false
	}
	cents, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.logger.WarnContext(ctx, "Discarding corrupt cached total", applog.FieldCategoryID, id.String(), "value", raw)
		return core.Money{}, false
	}
	return core.Money{Cents: cents}, true
}

// Generation reads the invalidation counter of the key. A missing counter
// is generation 0.
func (c *RedisSpentCache) Generation(ctx context.Context, id core.CategoryID, p core.Period) uint64 {
	gen, err := c.client.Get(ctx, generationKey(id, p)).Uint64()
	if err == redis.Nil {
		return 0
	}
	if err != nil {
		c.logger.WarnContext(ctx, "Redis generation read failed", applog.FieldCategoryID, id.String(), applog.FieldError, err)
		return noGeneration
	}
	return gen
}

// setIfGeneration stores KEYS[1] only while KEYS[2] still holds ARGV[2].
var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if gen == false then gen = '0' end
if gen ~= ARGV[2] then return 0 end
if tonumber(ARGV[3]) > 0 then
  redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
else
  redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

func (c *RedisSpentCache) Set(ctx context.Context, id core.CategoryID, p core.Period, spent core.Money, gen uint64) {
	if gen == noGeneration {
		return
	}
	keys := []string{spentKey(id, p), generationKey(id, p)}
	stored, err := setIfGeneration.Run(ctx, c.client, keys,
		spent.Cents, strconv.FormatUint(gen, 10), c.ttl.Milliseconds()).Int()
	if err != nil {
		c.logger.WarnContext(ctx, "Redis set failed", applog.FieldCategoryID, id.String(), applog.FieldError, err)
		return
	}
	if stored == 0 {
		c.logger.DebugContext(ctx, "Skipped caching a total read before an invalidation", applog.FieldCategoryID, id.String())
	}
}

// Invalidate drops the total and bumps the key's generation in one
// transaction.
func (c *RedisSpentCache) Invalidate(ctx context.Context, id core.CategoryID, p core.Period) {
	genKey := generationKey(id, p)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, spentKey(id, p))
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		return nil
	})
	if err != nil {
		c.logger.WarnContext(ctx, "Redis invalidate failed", applog.FieldCategoryID, id.String(), applog.FieldError, err)
	}
}

func (c *RedisSpentCache) Close() error {
	return c.client.Close()
}
