package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"webcash-wallet/internal/core/domain"
	"webcash-wallet/internal/core/ports"
	"webcash-wallet/internal/core/sqlvalue"
	"webcash-wallet/pkg/apperror"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// AddSecretToWallet inserts one secrets row inside tx and returns its id.
func (s *WalletServiceImpl) AddSecretToWallet(ctx context.Context, tx ports.Tx, ws domain.WalletSecret) (int64, error) {
	text, err := revealForStore(ws.Secret)
	if err != nil {
		return 0, apperror.InternalError(err)
	}

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO secrets (created_at, secret, mine, sweep)
		VALUES (:created_at, :secret, :mine, :sweep) RETURNING id`,
		sqlvalue.Params{
			"created_at": unixSeconds(ws.CreatedAt),
			"secret":     text,
			"mine":       sqlvalue.Bool(ws.Mine),
			"sweep":      sqlvalue.Bool(ws.Sweep),
		}).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert secret: %w", err)
	}
	return id, nil
}

// AddOutputToWallet inserts one outputs row inside tx and returns its id.
// A duplicate commitment yields CONFLICT_002.
func (s *WalletServiceImpl) AddOutputToWallet(ctx context.Context, tx ports.Tx, out domain.WalletOutput) (int64, error) {
	secretID := sqlvalue.Null()
	out.Secret.WhenSome(func(ws domain.WalletSecret) {
		secretID = sqlvalue.Integer(ws.ID)
	})

	var id int64
	err := tx.QueryRow(ctx,
		`INSERT INTO outputs (created_at, commitment, secret_id, amount, spent)
		VALUES (:created_at, :commitment, :secret_id, :amount, :spent) RETURNING id`,
		sqlvalue.Params{
			"created_at": unixSeconds(out.CreatedAt),
			"commitment": sqlvalue.Text(out.Commitment.Hex()),
			"secret_id":  secretID,
			"amount":     sqlvalue.Integer(int64(out.Amount)),
			"spent":      sqlvalue.Bool(out.Spent),
		}).Scan(&id)
	if err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return 0, apperror.ErrTokenAlreadyKnown()
		}
		return 0, fmt.Errorf("insert output: %w", err)
	}
	return id, nil
}

// Insert records an externally received token as an unspent output,
// reusing the secrets row when the secret is already stored.
func (s *WalletServiceImpl) Insert(ctx context.Context, sk domain.SecretWebcash, mine bool) (int64, error) {
	if sk.Secret == nil || sk.Secret.Len() == 0 {
		return 0, apperror.ErrInvalidToken("secret must not be empty")
	}
	if sk.Amount <= 0 {
		return 0, apperror.ErrInvalidAmount("amount must be positive")
	}

	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	pk := sk.Public()
	now := s.now().UTC()

	var outputID int64
	err := s.withTx(ctx, func(tx ports.Tx) error {
		known, err := s.outputByCommitment(ctx, tx, pk.Commitment)
		if err != nil {
			return err
		}
		if known.IsSome() {
			return apperror.ErrTokenAlreadyKnown()
		}

		ws := domain.WalletSecret{CreatedAt: now, Secret: sk.Secret, Mine: mine}
		existing, err := s.secretID(ctx, tx, sk.Secret)
		if err != nil {
			return err
		}
		if existing.IsSome() {
			root, err := s.isRootSecret(ctx, tx, existing.UnsafeFromSome())
			if err != nil {
				return err
			}
			if root {
				return apperror.ErrInvalidToken("secret is reserved by the wallet")
			}
		}
		ws.ID, err = existing.UnwrapOrFuncErr(func() (int64, error) {
			return s.AddSecretToWallet(ctx, tx, ws)
		})
		if err != nil {
			return err
		}

		outputID, err = s.AddOutputToWallet(ctx, tx, domain.WalletOutput{
			CreatedAt:  now,
			Commitment: pk.Commitment,
			Secret:     fn.Some(ws),
			Amount:     sk.Amount,
		})
		return err
	})
	if err != nil {
		return 0, err
	}

	s.log.Info().
		Int64("output_id", outputID).
		Int64("amount", int64(sk.Amount)).
		Bool("mine", mine).
		Msg("webcash inserted")
	return outputID, nil
}

// isRootSecret reports whether secretID is the HD root. The root never
// backs an output.
func (s *WalletServiceImpl) isRootSecret(ctx context.Context, tx ports.Tx, secretID int64) (bool, error) {
	var n int64
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM hd_root WHERE secret_id = :id`,
		sqlvalue.Params{"id": sqlvalue.Integer(secretID)}).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check hd root: %w", err)
	}
	return n > 0, nil
}

func (s *WalletServiceImpl) outputByCommitment(ctx context.Context, tx ports.Tx, c domain.Commitment) (fn.Option[int64], error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM outputs WHERE commitment = :commitment`,
		sqlvalue.Params{"commitment": sqlvalue.Text(c.Hex())}).Scan(&id)
	switch {
	case errors.Is(err, ports.ErrNoRows):
		return fn.None[int64](), nil
	case err != nil:
		return fn.None[int64](), fmt.Errorf("find output: %w", err)
	}
	return fn.Some(id), nil
}

const outputColumns = `o.id, o.created_at, o.commitment, o.amount, o.spent,
	o.secret_id, s.created_at, %s, s.mine, s.sweep`

const outputFrom = ` FROM outputs o LEFT JOIN secrets s ON s.id = o.secret_id`

// outputRow receives one outputs row joined to its optional secret.
type outputRow struct {
	id         int64
	createdAt  int64
	commitment string
	amount     int64
	spent      bool

	secretID      *int64
	secretCreated *int64
	secret        *string
	mine          *bool
	sweep         *bool
}

func (r *outputRow) dest() []any {
	return []any{
		&r.id, &r.createdAt, &r.commitment, &r.amount, &r.spent,
		&r.secretID, &r.secretCreated, &r.secret, &r.mine, &r.sweep,
	}
}

// decode builds the output, loading the secret when it was selected and
// checking it still hashes to the commitment.
func (r *outputRow) decode() (domain.WalletOutput, error) {
	c, err := domain.ParseCommitment(r.commitment)
	if err != nil {
		return domain.WalletOutput{}, apperror.ErrCorruptRecord(fmt.Errorf("output %d: %w", r.id, err))
	}

	out := domain.WalletOutput{
		ID:         r.id,
		CreatedAt:  fromUnix(r.createdAt),
		Commitment: c,
		Secret:     fn.None[domain.WalletSecret](),
		Amount:     domain.Amount(r.amount),
		Spent:      r.spent,
	}
	if r.secretID == nil || r.secret == nil {
		return out, nil
	}

	sec, err := loadSecret(*r.secret)
	if err != nil {
		return domain.WalletOutput{}, apperror.InternalError(err)
	}
	if domain.CommitmentOf(sec.Bytes()) != c {
		sec.Destroy()
		return domain.WalletOutput{}, apperror.ErrCorruptRecord(
			fmt.Errorf("output %d: secret does not hash to commitment", r.id))
	}

	ws := domain.WalletSecret{ID: *r.secretID, Secret: sec}
	if r.secretCreated != nil {
		ws.CreatedAt = fromUnix(*r.secretCreated)
	}
	if r.mine != nil {
		ws.Mine = *r.mine
	}
	if r.sweep != nil {
		ws.Sweep = *r.sweep
	}
	out.Secret = fn.Some(ws)
	return out, nil
}

func outputSelect(withSecret bool) string {
	secretCol := "NULL"
	if withSecret {
		secretCol = "s.secret"
	}
	return "SELECT " + fmt.Sprintf(outputColumns, secretCol) + outputFrom
}

// GetOutput loads one output. With withSecret the linked secret, if any, is
// loaded into locked memory and owned by the returned output.
func (s *WalletServiceImpl) GetOutput(ctx context.Context, id int64, withSecret bool) (domain.WalletOutput, error) {
	if err := s.lock(); err != nil {
		return domain.WalletOutput{}, err
	}
	defer s.mu.Unlock()

	var out domain.WalletOutput
	err := s.withTx(ctx, func(tx ports.Tx) error {
		var row outputRow
		err := tx.QueryRow(ctx, outputSelect(withSecret)+` WHERE o.id = :id`,
			sqlvalue.Params{"id": sqlvalue.Integer(id)}).Scan(row.dest()...)
		if errors.Is(err, ports.ErrNoRows) {
			return apperror.ErrNotFound("output")
		}
		if err != nil {
			return fmt.Errorf("get output: %w", err)
		}
		out, err = row.decode()
		return err
	})
	if err != nil {
		return domain.WalletOutput{}, err
	}
	return out, nil
}

// ListOutputs returns outputs in id order without their secrets.
func (s *WalletServiceImpl) ListOutputs(ctx context.Context, filter domain.OutputFilter) ([]domain.WalletOutput, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, apperror.Validation("limit and offset must not be negative")
	}

	if err := s.lock(); err != nil {
		return nil, err
	}
	defer s.mu.Unlock()

	limit := int64(math.MaxInt64)
	if filter.Limit > 0 {
		limit = int64(filter.Limit)
	}
	params := sqlvalue.Params{
		"limit":  sqlvalue.Integer(limit),
		"offset": sqlvalue.Integer(int64(filter.Offset)),
	}
	query := outputSelect(false)
	filter.Spent.WhenSome(func(spent bool) {
		query += ` WHERE o.spent = :spent`
		params["spent"] = sqlvalue.Bool(spent)
	})
	query += ` ORDER BY o.id LIMIT :limit OFFSET :offset`

	var outs []domain.WalletOutput
	err := s.withTx(ctx, func(tx ports.Tx) error {
		rows, err := tx.Query(ctx, query, params)
		if err != nil {
			return fmt.Errorf("list outputs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var row outputRow
			if err := rows.Scan(row.dest()...); err != nil {
				return fmt.Errorf("scan output: %w", err)
			}
			out, err := row.decode()
			if err != nil {
				return err
			}
			outs = append(outs, out)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return outs, nil
}

// Balance sums unspent outputs whose secret the wallet holds.
func (s *WalletServiceImpl) Balance(ctx context.Context) (domain.Amount, error) {
	if err := s.lock(); err != nil {
		return 0, err
	}
	defer s.mu.Unlock()

	var total domain.Amount
	err := s.withTx(ctx, func(tx ports.Tx) error {
		rows, err := tx.Query(ctx,
			`SELECT amount FROM outputs WHERE spent = FALSE AND secret_id IS NOT NULL`, nil)
		if err != nil {
			return fmt.Errorf("query balance: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var amount int64
			if err := rows.Scan(&amount); err != nil {
				return fmt.Errorf("scan amount: %w", err)
			}
			if total, err = total.Add(domain.Amount(amount)); err != nil {
				return err
			}
		}
		return rows.Err()
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
