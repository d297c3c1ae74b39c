package trends

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"trendscribe/internal/util"
	"trendscribe/pkg/domain"
)

const defaultCacheTTL = 10 * time.Minute

// Cache stores raw provider results by request key.
type Cache interface {
	Get(ctx context.Context, key string) ([]domain.RawTrendRecord, bool, error)
	Set(ctx context.Context, key string, records []domain.RawTrendRecord, ttl time.Duration) error
}

// RedisCache keeps JSON-encoded records in Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(client *redis.Client, prefix string) *RedisCache {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "trendscribe:trends:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]domain.RawTrendRecord, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var records []domain.RawTrendRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, false, fmt.Errorf("decode cached trends: %w", err)
	}
	return records, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, records []domain.RawTrendRecord, ttl time.Duration) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, raw, ttl).Err()
}

// MemoryCache is an in-process cache for single-instance deployments.
type MemoryCache struct {
	items *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &MemoryCache{items: gocache.New(ttl, 2*ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]domain.RawTrendRecord, bool, error) {
	v, ok := c.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	records, _ := v.([]domain.RawTrendRecord)
	return cloneRecords(records), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, records []domain.RawTrendRecord, ttl time.Duration) error {
	c.items.Set(key, cloneRecords(records), ttl)
	return nil
}

// CachedSource serves repeated requests from a Cache and collapses
// concurrent misses for the same key. Failures are never cached.
type CachedSource struct {
	next  Source
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

func NewCachedSource(next Source, cache Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedSource{next: next, cache: cache, ttl: ttl}
}

func (s *CachedSource) FetchRawTrends(ctx context.Context, category, regionCode string, windowHours int) ([]domain.RawTrendRecord, error) {
	key := cacheKey(category, regionCode, windowHours)
	logger := util.LoggerFromContext(ctx)

	records, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("trend cache read failed", "key", key, "err", err)
	} else if ok {
		return records, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		fresh, err := s.next.FetchRawTrends(ctx, category, regionCode, windowHours)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
			logger.Warn("trend cache write failed", "key", key, "err", err)
		}
		return fresh, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneRecords(v.([]domain.RawTrendRecord)), nil
}

func cacheKey(category, regionCode string, windowHours int) string {
	return fmt.Sprintf("%s|%s|%d",
		strings.ToLower(strings.TrimSpace(category)),
		strings.ToLower(strings.TrimSpace(regionCode)),
		windowBucket(windowHours))
}

func cloneRecords(in []domain.RawTrendRecord) []domain.RawTrendRecord {
	if in == nil {
		return nil
	}
	out := make([]domain.RawTrendRecord, len(in))
	for i, rec := range in {
		out[i] = rec
		if rec.Popularity != nil {
			p := *rec.Popularity
			out[i].Popularity = &p
		}
		out[i].Categories = append([]string(nil), rec.Categories...)
	}
	return out
}
