package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"
	"webcash-wallet/pkg/apperror"
)

// TermsKey is the stable identifier recorded for a terms text.
func TermsKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// AcceptTerms records acceptance of text. Accepting again is a no-op.
func (s *WalletServiceImpl) AcceptTerms(ctx context.Context, text string) error {
	if text == "" {
		return apperror.Validation("terms text must not be empty")
	}
	if err := s.lock(); err != nil {
		return err
	}
	defer s.mu.Unlock()

	key := TermsKey(text)
	var inserted int64
	err := s.withTx(ctx, func(tx ports.Tx) error {
		var err error
		inserted, err = tx.Exec(ctx,
			`INSERT INTO terms_accepted (terms_key, accepted_at) VALUES (:key, :ts)
			ON CONFLICT (terms_key) DO NOTHING`,
			sqlvalue.Params{
				"key": sqlvalue.Text(key),
				"ts":  unixSeconds(s.now()),
			})
		if err != nil {
			return fmt.Errorf("record terms acceptance: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if inserted > 0 {
		s.log.Info().Str("terms_key", key).Msg("terms accepted")
	}
	return nil
}

// AreTermsAccepted reports whether exactly this text was accepted.
func (s *WalletServiceImpl) AreTermsAccepted(ctx context.Context, text string) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	var accepted bool
	err := s.withTx(ctx, func(tx ports.Tx) error {
		var one int64
		err := tx.QueryRow(ctx, `SELECT 1 FROM terms_accepted WHERE terms_key = :key`,
			sqlvalue.Params{"key": sqlvalue.Text(TermsKey(text))}).Scan(&one)
		switch {
		case errors.Is(err, ports.ErrNoRows):
			return nil
		case err != nil:
			return fmt.Errorf("check terms: %w", err)
		}
		accepted = true
		return nil
	})
	return accepted, err
}

// HaveAcceptedTerms reports whether any terms were ever accepted.
func (s *WalletServiceImpl) HaveAcceptedTerms(ctx context.Context) (bool, error) {
	if err := s.lock(); err != nil {
		return false, err
	}
	defer s.mu.Unlock()

	var count int64
	err := s.withTx(ctx, func(tx ports.Tx) error {
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM terms_accepted`, nil).Scan(&count); err != nil {
			return fmt.Errorf("count terms: %w", err)
		}
		return nil
	})
	return count > 0, err
}
