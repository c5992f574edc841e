package handler

import (
	"time"

	"webcash-wallet/internal/adapter/http/middleware"
	"webcash-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc        ports.WalletService
	AuthSvc          ports.AuthService
	TokenSvc         ports.TokenService
	IdempotencyCache ports.IdempotencyCache // nil = no replay protection
	RateLimiter      ports.RateLimiter      // nil = rate limiting disabled
	LoginRateLimit   middleware.RateLimitRule
	HealthCheckers   []ports.HealthChecker
	MaxBodyBytes     int64
	IdempotencyTTL   time.Duration
	Mode             string // gin mode; empty keeps the current one
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	if deps.MaxBodyBytes > 0 {
		r.Use(middleware.MaxBodySize(deps.MaxBodyBytes))
	}

	// Health check (deep: verifies the wallet store and Redis when enabled)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	rl := func(group string, rule middleware.RateLimitRule) gin.HandlerFunc {
		if deps.RateLimiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimiter, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/login", rl("auth_login", deps.LoginRateLimit), authHandler.Login)
	}

	// --- Bearer-authenticated routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	walletHandler := NewWalletHandler(deps.WalletSvc, deps.IdempotencyCache, deps.IdempotencyTTL, deps.Logger)

	api := v1.Group("", jwtAuth)
	{
		api.GET("/terms", walletHandler.GetTerms)
		api.POST("/terms/accept", walletHandler.AcceptTerms)
		api.POST("/terms/status", walletHandler.TermsStatus)

		api.GET("/outputs", walletHandler.ListOutputs)
		api.GET("/outputs/:id", walletHandler.GetOutput)
		api.GET("/outputs/:id/secret", walletHandler.GetOutputSecret)
		api.GET("/balance", walletHandler.GetBalance)
	}

	// --- Value-moving routes need accepted terms ---
	value := api.Group("", middleware.RequireTerms(deps.WalletSvc))
	{
		value.POST("/webcash", walletHandler.Insert)
		value.POST("/replace", walletHandler.Replace)
	}

	return r
}
