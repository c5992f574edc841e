package ports

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

import (
	"context"
	"time"

	"webcash-wallet/internal/core/domain"
)

// HashService handles password hashing (Argon2id).
type HashService interface {
	Hash(password string) (string, error)
	Verify(password string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject   string
	ExpiresAt time.Time
}

// IdempotencyCache stores finished responses by client-supplied key.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Reserve marks key as in flight. It returns false if another request
	// already holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (*RateLimitResult, error)
}

// RateLimitResult holds the outcome of a rate limit check.
type RateLimitResult struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   int64 // Unix timestamp
}

// --- Service Ports (Business Logic) ---

// WalletService is the wallet engine. Every method is safe for concurrent
// use and serialised internally.
type WalletService interface {
	// Insert records an externally received token as an unspent output.
	Insert(ctx context.Context, sk domain.SecretWebcash, mine bool) (int64, error)
	// ReplaceWebcash spends inputs and mints outputs of equal total value
	// in one transaction.
	ReplaceWebcash(ctx context.Context, ts time.Time, inputs []domain.WalletOutput, outputs []domain.OutputSpec) ([]domain.ReplacedOutput, error)

	GetOutput(ctx context.Context, id int64, withSecret bool) (domain.WalletOutput, error)
	ListOutputs(ctx context.Context, filter domain.OutputFilter) ([]domain.WalletOutput, error)
	Balance(ctx context.Context) (domain.Amount, error)

	AcceptTerms(ctx context.Context, text string) error
	AreTermsAccepted(ctx context.Context, text string) (bool, error)
	HaveAcceptedTerms(ctx context.Context) (bool, error)
}

// AuthService authenticates the single wallet operator.
type AuthService interface {
	Login(ctx context.Context, password string) (string, time.Time, error) // token, expiry, error
}
