package redisrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	redisx "github.com/kirinyoku/tixledger/internal/redis"
)

// Cache is a read-through JSON cache in front of the ledger store. Redis is
// never authoritative: any Redis failure degrades to a store read.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

func lookup[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return out, false
	}

	if err := json.Unmarshal(b, &out); err != nil {
		return out, false
	}

	return out, true
}

func put(ctx context.Context, c *Cache, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, key, string(b), ttl).Err()
}

// GetOrSetJSON returns the cached value of key or loads and caches it.
// Concurrent misses for one key share a single loader call, so a burst of
// reads on a hot event hits the store once.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if v, ok := lookup[T](ctx, c, key); ok {
		return v, nil
	}

	v, err, _ := c.sf.Do(key, func() (any, error) {
		if v, ok := lookup[T](ctx, c, key); ok {
			return v, nil
		}

		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		_ = put(ctx, c, key, v, ttl)

		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("redisrepo.GetOrSetJSON: unexpected %T for %s", v, key)
	}

	return out, nil
}

// InvalidateEvent drops the cached event and the supply counter. It runs
// after every commit that changes either.
func (c *Cache) InvalidateEvent(ctx context.Context, eventID int64) error {
	const op = "redisrepo.Cache.InvalidateEvent"

	err := c.rdb.Del(ctx, redisx.KeyEvent(eventID), redisx.KeySupply()).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
