package redis

import (
	"context"
	"fmt"
	"time"

	"webcash-wallet/config"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis sits on the request path of replace and login, so a slow server
// must fail fast and let the callers degrade.
const (
	dialTimeout  = 2 * time.Second
	ioTimeout    = time.Second
	pingTimeout  = 3 * time.Second
	poolSize     = 8
	maxIdleConns = 2
)

// NewClient creates a Redis client and verifies connectivity.
func NewClient(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	client := goredis.NewClient(clientOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr(), err)
	}

	log.Info().
		Str("addr", cfg.Addr()).
		Int("db", cfg.DB).
		Msg("Redis connection established")

	return client, nil
}

func clientOptions(cfg config.RedisConfig) *goredis.Options {
	return &goredis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  dialTimeout,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolSize:     poolSize,
		MaxIdleConns: maxIdleConns,
	}
}
