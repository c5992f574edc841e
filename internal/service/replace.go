package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webcash-wallet/internal/core/domain"
	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"
	"webcash-wallet/pkg/apperror"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ReplaceWebcash spends inputs and mints one fresh output per spec in a
// single transaction. Value must be conserved exactly. On success every
// element of inputs has Spent set; on failure the store is unchanged.
// The caller owns the secrets in the returned outputs.
func (s *WalletServiceImpl) ReplaceWebcash(
	ctx context.Context,
	ts time.Time,
	inputs []domain.WalletOutput,
	outputs []domain.OutputSpec,
) ([]domain.ReplacedOutput, error) {
	total, err := validateReplace(inputs, outputs)
	if err != nil {
		return nil, err
	}

	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	var minted []domain.ReplacedOutput
	err = s.withTx(ctx, func(tx ports.Tx) error {
		for _, in := range inputs {
			if err := s.spendInput(ctx, tx, in); err != nil {
				return err
			}
		}

		for _, spec := range outputs {
			ws, err := s.ReserveSecret(ctx, tx, ts, spec.Mine, spec.Sweep)
			if err != nil {
				return err
			}
			// Owned by minted from here so failure paths release it.
			minted = append(minted, domain.ReplacedOutput{Secret: ws})

			id, err := s.AddOutputToWallet(ctx, tx, domain.WalletOutput{
				CreatedAt:  ts.UTC(),
				Commitment: ws.Commitment(),
				Secret:     fn.Some(ws),
				Amount:     spec.Amount,
			})
			if err != nil {
				return err
			}
			minted[len(minted)-1].OutputID = id
		}
		return nil
	})
	if err != nil {
		for _, m := range minted {
			m.Secret.Release()
		}
		return nil, err
	}

	for i := range inputs {
		inputs[i].Spent = true
	}

	ids := make([]int64, len(minted))
	for i, m := range minted {
		ids[i] = m.OutputID
	}
	s.log.Info().
		Int("inputs", len(inputs)).
		Ints64("outputs", ids).
		Int64("amount", int64(total)).
		Msg("webcash replaced")

	return minted, nil
}

// validateReplace checks everything that needs no store access and returns
// the conserved total.
func validateReplace(inputs []domain.WalletOutput, outputs []domain.OutputSpec) (domain.Amount, error) {
	if len(inputs) == 0 {
		return 0, apperror.Validation("replace needs at least one input")
	}
	if len(outputs) == 0 {
		return 0, apperror.Validation("replace needs at least one output")
	}

	seen := make(map[int64]struct{}, len(inputs))
	inAmounts := make([]domain.Amount, 0, len(inputs))
	for _, in := range inputs {
		if _, dup := seen[in.ID]; dup {
			return 0, apperror.Validation(fmt.Sprintf("output %d listed twice as input", in.ID))
		}
		seen[in.ID] = struct{}{}
		if in.Amount <= 0 {
			return 0, apperror.ErrInvalidAmount(fmt.Sprintf("input %d amount must be positive", in.ID))
		}
		if in.Spent {
			return 0, apperror.ErrAlreadySpent(in.ID)
		}
		inAmounts = append(inAmounts, in.Amount)
	}

	outAmounts := make([]domain.Amount, 0, len(outputs))
	for i, out := range outputs {
		if out.Amount <= 0 {
			return 0, apperror.ErrInvalidAmount(fmt.Sprintf("output %d amount must be positive", i))
		}
		outAmounts = append(outAmounts, out.Amount)
	}

	inTotal, err := domain.Sum(inAmounts...)
	if err != nil {
		return 0, err
	}
	outTotal, err := domain.Sum(outAmounts...)
	if err != nil {
		return 0, err
	}
	if inTotal != outTotal {
		return 0, apperror.ErrValueNotConserved()
	}
	return inTotal, nil
}

// spendInput re-reads in from the store and marks it spent. The stored row
// must still match in and hold a secret.
func (s *WalletServiceImpl) spendInput(ctx context.Context, tx ports.Tx, in domain.WalletOutput) error {
	var (
		amount     int64
		spent      bool
		commitment string
		secretID   *int64
	)
	err := tx.QueryRow(ctx, `SELECT amount, spent, commitment, secret_id FROM outputs WHERE id = :id`,
		sqlvalue.Params{"id": sqlvalue.Integer(in.ID)}).Scan(&amount, &spent, &commitment, &secretID)
	if errors.Is(err, ports.ErrNoRows) {
		return apperror.ErrUnknownInput(in.ID)
	}
	if err != nil {
		return fmt.Errorf("read input %d: %w", in.ID, err)
	}
	// Watched outputs carry no secret and cannot be spent by this wallet.
	if secretID == nil {
		return apperror.ErrUnknownInput(in.ID)
	}
	if spent {
		return apperror.ErrAlreadySpent(in.ID)
	}
	if domain.Amount(amount) != in.Amount || commitment != in.Commitment.Hex() {
		return apperror.ErrInputMismatch(in.ID)
	}

	n, err := tx.Exec(ctx, `UPDATE outputs SET spent = TRUE WHERE id = :id AND spent = FALSE`,
		sqlvalue.Params{"id": sqlvalue.Integer(in.ID)})
	if err != nil {
		return fmt.Errorf("spend input %d: %w", in.ID, err)
	}
	if n != 1 {
		return apperror.ErrAlreadySpent(in.ID)
	}
	return nil
}
