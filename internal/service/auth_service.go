package service

import (
	"context"
	"fmt"
	"time"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// OperatorSubject is the token subject of the single wallet operator.
const OperatorSubject = "operator"

// AuthServiceImpl implements ports.AuthService against one configured
// Argon2id password hash.
type AuthServiceImpl struct {
	passwordHash string
	hashSvc      ports.HashService
	tokenSvc     ports.TokenService
	log          zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	passwordHash string,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		passwordHash: passwordHash,
		hashSvc:      hashSvc,
		tokenSvc:     tokenSvc,
		log:          log,
	}
}

// Login validates the operator password and returns a JWT token.
func (s *AuthServiceImpl) Login(ctx context.Context, password string) (string, time.Time, error) {
	if s.passwordHash == "" {
		// No operator configured: nobody can log in.
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, s.passwordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		s.log.Warn().Msg("operator login rejected")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(OperatorSubject)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	s.log.Info().Time("expires_at", expiry).Msg("operator logged in")
	return token, expiry, nil
}
