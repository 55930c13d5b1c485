package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL is how long a built statement stays warm. Invalidation is
// by expiry only; a statement can lag new postings by at most this long.
const DefaultCacheTTL = 60 * time.Second

// Cache wraps Redis for report payloads. A nil *Cache is valid and caches
// nothing, so tests and the worker can run the builders directly.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCache builds a report cache with the given TTL; ttl <= 0 falls back to
// DefaultCacheTTL.
func NewCache(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

// fetchJSON returns the cached payload for key, or runs loader and caches its
// result. Cache failures degrade to building the report; they never fail the
// request.
func fetchJSON[T any](ctx context.Context, c *Cache, key string, loader func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if c == nil || c.rdb == nil {
		return loader(ctx)
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
		// Unreadable payload: rebuild and overwrite.
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("report cache read failed", slog.String("key", key), slog.Any("error", err))
	}

	built, err := loader(ctx)
	if err != nil {
		return zero, err
	}
	if encoded, err := json.Marshal(built); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("report cache write failed", slog.String("key", key), slog.Any("error", err))
		}
	}
	return built, nil
}

func cacheKey(report string, tenantID fmt.Stringer, parts ...string) string {
	key := "reports:" + report + ":" + tenantID.String()
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
