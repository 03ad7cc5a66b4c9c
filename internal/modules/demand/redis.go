// README: Demand counter shared between API replicas through a Redis key.
package demand

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// floorDecr decrements KEYS[1] unless it is already zero or missing.
var floorDecr = redis.NewScript(`
local v = tonumber(redis.call('GET', KEYS[1]) or '0')
if v <= 0 then
  redis.call('SET', KEYS[1], 0)
  return 0
end
return redis.call('DECR', KEYS[1])
`)

type RedisCounter struct {
	rdb redis.Cmdable
	key string
}

func NewRedisCounter(rdb redis.Cmdable, key string) *RedisCounter {
	return &RedisCounter{rdb: rdb, key: key}
}

func (c *RedisCounter) Get(ctx context.Context) (int64, error) {
	n, err := c.rdb.Get(ctx, c.key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("demand get: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Increment(ctx context.Context) (int64, error) {
	n, err := c.rdb.Incr(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("demand incr: %w", err)
	}
	return n, nil
}

func (c *RedisCounter) Decrement(ctx context.Context) (int64, error) {
	n, err := floorDecr.Run(ctx, c.rdb, []string{c.key}).Int64()
	if err != nil {
		return 0, fmt.Errorf("demand decr: %w", err)
	}
	return n, nil
}
