package app

import (
	"net/http"
	"time"

	"webcash-wallet/config"
	"webcash-wallet/internal/adapter/http/handler"
	"webcash-wallet/internal/adapter/http/middleware"
	redisStore "webcash-wallet/internal/adapter/storage/redis"
	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/service"
	"webcash-wallet/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 2 * time.Minute
)

// NewRouter wires the control API over an open wallet. rdb may be nil, in
// which case replace replay protection and login rate limiting are off.
func NewRouter(cfg *config.Config, w *Wallet, rdb *goredis.Client, log zerolog.Logger) *gin.Engine {
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	authSvc := service.NewAuthService(cfg.Auth.PasswordHash, hashSvc, tokenSvc, logger.Component(log, "auth"))

	deps := handler.RouterDeps{
		WalletSvc:      w.Engine(),
		AuthSvc:        authSvc,
		TokenSvc:       tokenSvc,
		LoginRateLimit: middleware.RateLimitRule{Limit: cfg.Auth.LoginRateLimit, Window: cfg.Auth.LoginRateWindow},
		HealthCheckers: []ports.HealthChecker{w.HealthCheck()},
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		IdempotencyTTL: cfg.Server.IdempotencyTTL,
		Mode:           cfg.Server.Mode,
		Logger:         logger.Component(log, "http"),
	}
	if rdb != nil {
		deps.IdempotencyCache = redisStore.NewIdempotencyCache(rdb)
		deps.RateLimiter = redisStore.NewRateLimitStore(rdb)
		deps.HealthCheckers = append(deps.HealthCheckers, redisStore.NewHealthCheck(rdb))
	}

	return handler.SetupRouter(deps)
}

// NewHTTPServer builds the listener for router from the server config.
func NewHTTPServer(cfg config.ServerConfig, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
}
