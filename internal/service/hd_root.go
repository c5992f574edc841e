package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"webcash-wallet/internal/core/domain"
	"webcash-wallet/internal/core/hdkey"
	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/securemem"
	"webcash-wallet/internal/core/sqlvalue"
	"webcash-wallet/pkg/apperror"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// maxReserveAttempts bounds how many derived secrets ReserveSecret skips
// because they are already stored.
const maxReserveAttempts = 64

type hdRoot struct {
	secretID   int64
	commitment domain.Commitment
	secret     *securemem.Secret
}

// HDRoot identifies the wallet root secret. The secret itself stays inside
// the engine.
type HDRoot struct {
	SecretID   int64
	Commitment domain.Commitment
}

// GetOrCreateHDRoot loads the wallet root secret, creating it on first use.
func (s *WalletServiceImpl) GetOrCreateHDRoot(ctx context.Context) (HDRoot, error) {
	if err := s.lock(); err != nil {
		return HDRoot{}, err
	}
	defer s.mu.Unlock()

	if s.root != nil {
		return s.root.public(), nil
	}

	var (
		root    *hdRoot
		created bool
	)
	err := s.withTx(ctx, func(tx ports.Tx) error {
		var (
			id     int64
			stored string
		)
		err := tx.QueryRow(ctx,
			`SELECT s.id, s.secret FROM hd_root h JOIN secrets s ON s.id = h.secret_id WHERE h.id = 1`,
			nil).Scan(&id, &stored)
		switch {
		case err == nil:
			sec, err := loadSecret(stored)
			if err != nil {
				return err
			}
			root = &hdRoot{secretID: id, commitment: domain.CommitmentOf(sec.Bytes()), secret: sec}
			return nil
		case !errors.Is(err, ports.ErrNoRows):
			return fmt.Errorf("load hd root: %w", err)
		}

		sec, err := newRootSecret(s.rand)
		if err != nil {
			return apperror.InternalError(err)
		}
		ws := domain.WalletSecret{CreatedAt: s.now().UTC(), Secret: sec, Mine: true, Sweep: false}
		id, err = s.AddSecretToWallet(ctx, tx, ws)
		if err != nil {
			sec.Destroy()
			return err
		}
		if _, err := tx.Exec(ctx, `INSERT INTO hd_root (id, secret_id) VALUES (1, :secret_id)`,
			sqlvalue.Params{"secret_id": sqlvalue.Integer(id)}); err != nil {
			sec.Destroy()
			return fmt.Errorf("insert hd root: %w", err)
		}
		root = &hdRoot{secretID: id, commitment: domain.CommitmentOf(sec.Bytes()), secret: sec}
		created = true
		return nil
	})
	if err != nil {
		if root != nil {
			root.secret.Destroy()
		}
		return HDRoot{}, err
	}

	s.root = root
	if created {
		s.log.Info().Int64("secret_id", root.secretID).Msg("created hd root")
	}
	return root.public(), nil
}

func (r *hdRoot) public() HDRoot {
	return HDRoot{SecretID: r.secretID, Commitment: r.commitment}
}

func newRootSecret(r io.Reader) (*securemem.Secret, error) {
	var raw [hdkey.RootSize]byte
	defer securemem.Wipe(raw[:])
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return nil, fmt.Errorf("generate root secret: %w", err)
	}

	var encoded [2 * hdkey.RootSize]byte
	defer securemem.Wipe(encoded[:])
	hex.Encode(encoded[:], raw[:])

	return securemem.New(encoded[:])
}

// ReserveSecret derives and persists the next unused secret inside tx.
// Wallet-owned secrets come from the change chain, secrets meant for other
// parties from the pay chain.
func (s *WalletServiceImpl) ReserveSecret(ctx context.Context, tx ports.Tx, ts time.Time, mine, sweep bool) (domain.WalletSecret, error) {
	if s.root == nil {
		return domain.WalletSecret{}, apperror.InternalError(errors.New("hd root not loaded"))
	}

	chain := hdkey.ChainPay
	if mine {
		chain = hdkey.ChainChange
	}

	for range maxReserveAttempts {
		depth, err := s.nextDepth(ctx, tx, chain)
		if err != nil {
			return domain.WalletSecret{}, err
		}

		derived, err := hdkey.Derive(s.root.secret.Bytes(), chain, depth)
		if err != nil {
			return domain.WalletSecret{}, apperror.InternalError(err)
		}
		sec, err := securemem.New(derived)
		securemem.Wipe(derived)
		if err != nil {
			return domain.WalletSecret{}, apperror.InternalError(err)
		}

		known, err := s.secretID(ctx, tx, sec)
		if err != nil {
			sec.Destroy()
			return domain.WalletSecret{}, err
		}
		if known.IsSome() {
			// Already imported from elsewhere; move past it.
			sec.Destroy()
			continue
		}

		ws := domain.WalletSecret{CreatedAt: ts.UTC().Truncate(time.Second), Secret: sec, Mine: mine, Sweep: sweep}
		id, err := s.AddSecretToWallet(ctx, tx, ws)
		if err != nil {
			sec.Destroy()
			return domain.WalletSecret{}, err
		}
		ws.ID = id

		s.log.Debug().
			Int64("secret_id", id).
			Str("chain", chain.String()).
			Uint64("depth", depth).
			Msg("reserved secret")
		return ws, nil
	}

	return domain.WalletSecret{}, apperror.InternalError(
		fmt.Errorf("no unused secret on chain %s after %d attempts", chain, maxReserveAttempts))
}

// nextDepth returns the next depth on chain and advances it.
func (s *WalletServiceImpl) nextDepth(ctx context.Context, tx ports.Tx, chain hdkey.Chain) (uint64, error) {
	params := sqlvalue.Params{"chain": sqlvalue.Integer(int64(chain))}
	if _, err := tx.Exec(ctx,
		`INSERT INTO hd_chains (chain_code, next_depth) VALUES (:chain, 0) ON CONFLICT (chain_code) DO NOTHING`,
		params); err != nil {
		return 0, fmt.Errorf("seed hd chain: %w", err)
	}

	var next int64
	if err := tx.QueryRow(ctx,
		`UPDATE hd_chains SET next_depth = next_depth + 1 WHERE chain_code = :chain RETURNING next_depth`,
		params).Scan(&next); err != nil {
		return 0, fmt.Errorf("advance hd chain: %w", err)
	}
	return uint64(next - 1), nil
}

// secretID looks up a stored secret.
func (s *WalletServiceImpl) secretID(ctx context.Context, tx ports.Tx, sec *securemem.Secret) (fn.Option[int64], error) {
	text, err := revealForStore(sec)
	if err != nil {
		return fn.None[int64](), apperror.InternalError(err)
	}

	var id int64
	err = tx.QueryRow(ctx, `SELECT id FROM secrets WHERE secret = :secret`,
		sqlvalue.Params{"secret": text}).Scan(&id)
	switch {
	case errors.Is(err, ports.ErrNoRows):
		return fn.None[int64](), nil
	case err != nil:
		return fn.None[int64](), fmt.Errorf("find secret: %w", err)
	}
	return fn.Some(id), nil
}
