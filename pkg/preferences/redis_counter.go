package preferences

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// reserveScript increments the counter and rolls the increment back when it
// would exceed the limit. The key expires at the user's next local midnight.
var reserveScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIREAT', KEYS[1], ARGV[2])
end
if n > tonumber(ARGV[1]) then
	redis.call('DECR', KEYS[1])
	return 0
end
return 1
`)

// releaseScript decrements the counter without taking it below zero or
// recreating a key that has already expired.
var releaseScript = redis.NewScript(`
local n = tonumber(redis.call('GET', KEYS[1]) or '0')
if n > 0 then
	redis.call('DECR', KEYS[1])
	return 1
end
return 0
`)

// QuotaCounter reserves daily quota slots outside the preference store.
type QuotaCounter interface {
	Reserve(ctx context.Context, userID string, ch events.Channel, limit int, resetAt time.Time) (bool, error)
	Release(ctx context.Context, userID string, ch events.Channel, limit int, resetAt time.Time) error
}

// RedisCounter is a QuotaCounter backed by one Redis key per user, channel
// and local day.
type RedisCounter struct {
	client redis.Scripter
	prefix string
}

// RedisCounterOption configures a RedisCounter.
type RedisCounterOption func(*RedisCounter)

// WithKeyPrefix sets the key prefix (default "notifykit:quota").
func WithKeyPrefix(prefix string) RedisCounterOption {
	return func(c *RedisCounter) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// NewRedisCounter returns a counter using client.
func NewRedisCounter(client redis.Scripter, opts ...RedisCounterOption) *RedisCounter {
	c := &RedisCounter{client: client, prefix: "notifykit:quota"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCounter) Reserve(ctx context.Context, userID string, ch events.Channel, limit int, resetAt time.Time) (bool, error) {
	if limit <= 0 {
		return true, nil
	}
	n, err := reserveScript.Run(ctx, c.client, []string{c.key(userID, ch, resetAt)}, limit, resetAt.UnixMilli()).Int()
	if err != nil {
		return false, errors.Join(ErrQuotaCounterFailed, err)
	}
	return n == 1, nil
}

func (c *RedisCounter) Release(ctx context.Context, userID string, ch events.Channel, limit int, resetAt time.Time) error {
	if limit <= 0 {
		return nil
	}
	if err := releaseScript.Run(ctx, c.client, []string{c.key(userID, ch, resetAt)}).Err(); err != nil {
		return errors.Join(ErrQuotaCounterFailed, err)
	}
	return nil
}

func (c *RedisCounter) key(userID string, ch events.Channel, resetAt time.Time) string {
	return fmt.Sprintf("%s:%s:%s:%d", c.prefix, userID, ch, resetAt.Unix())
}
