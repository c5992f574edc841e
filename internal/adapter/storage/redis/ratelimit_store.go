package redis

import (
	"context"
	"fmt"
	"time"

	"webcash-wallet/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// incrWindow increments the window counter and starts its expiry on the
// first hit, atomically.
var incrWindow = goredis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimitStore implements ports.RateLimiter with fixed windows.
type RateLimitStore struct {
	client *goredis.Client
	prefix string
	now    func() time.Time
}

// NewRateLimitStore creates a new Redis-backed rate limit store.
func NewRateLimitStore(client *goredis.Client) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "webcash:ratelimit:",
		now:    time.Now,
	}
}

// Allow counts one request against key in the current window.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	if window < time.Second {
		return nil, fmt.Errorf("rate limit window %s is shorter than one second", window)
	}

	windowSec := int64(window / time.Second)
	windowID := s.now().Unix() / windowSec
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, windowID)

	count, err := incrWindow.Run(ctx, s.client, []string{redisKey}, (window + time.Second).Milliseconds()).Int64()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit incr: %w", err)
	}

	return &ports.RateLimitResult{
		Allowed:   count <= limit,
		Limit:     limit,
		Remaining: max(limit-count, 0),
		ResetAt:   (windowID + 1) * windowSec,
	}, nil
}
