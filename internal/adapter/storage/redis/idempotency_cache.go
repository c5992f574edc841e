package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache for replace requests.
// Finished responses live under prefix+key; an in-flight request holds
// prefix+key+":inflight".
type IdempotencyCache struct {
	client *goredis.Client
	prefix string
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache.
func NewIdempotencyCache(client *goredis.Client) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "webcash:replace:",
	}
}

// Get returns the cached response, or nil if there is none.
func (c *IdempotencyCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}
	return val, nil
}

// Set stores a finished response and clears the in-flight marker.
func (c *IdempotencyCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, c.prefix+key, value, ttl)
		pipe.Del(ctx, c.inflightKey(key))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}

// Reserve marks key as in flight. It returns false if another request
// already holds it.
func (c *IdempotencyCache) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	err := c.client.SetArgs(ctx, c.inflightKey(key), "1", goredis.SetArgs{
		Mode: "NX",
		TTL:  ttl,
	}).Err()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis idempotency reserve: %w", err)
	}
	return true, nil
}

// Release drops the in-flight marker after a failed request.
func (c *IdempotencyCache) Release(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.inflightKey(key)).Err(); err != nil {
		return fmt.Errorf("redis idempotency release: %w", err)
	}
	return nil
}

func (c *IdempotencyCache) inflightKey(key string) string {
	return c.prefix + key + ":inflight"
}
