package service

import (
	"context"
	"math"
	"sync"
	"testing"

	"webcash-wallet/internal/core/domain"
	"webcash-wallet/internal/core/hdkey"
	"webcash-wallet/internal/core/ports"
	"webcash-wallet/pkg/apperror"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshot reads an output as a caller would before replacing it.
func snapshot(t *testing.T, w *WalletServiceImpl, id int64) domain.WalletOutput {
	t.Helper()
	out, err := w.GetOutput(context.Background(), id, false)
	require.NoError(t, err)
	return out
}

func releaseMinted(minted []domain.ReplacedOutput) {
	for _, m := range minted {
		m.Secret.Release()
	}
}

type storeCounts struct {
	outputs, unspent, secrets int64
}

func counts(t *testing.T, w *WalletServiceImpl) storeCounts {
	t.Helper()
	return storeCounts{
		outputs: count(t, w, `SELECT COUNT(*) FROM outputs`),
		unspent: count(t, w, `SELECT COUNT(*) FROM outputs WHERE spent = FALSE`),
		secrets: count(t, w, `SELECT COUNT(*) FROM secrets`),
	}
}

func TestReplaceWebcash_Success(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	a := insertToken(t, w, "in-a", 60)
	b := insertToken(t, w, "in-b", 40)
	inputs := []domain.WalletOutput{snapshot(t, w, a), snapshot(t, w, b)}

	minted, err := w.ReplaceWebcash(ctx, testNow, inputs, []domain.OutputSpec{
		{Amount: 70, Mine: false},
		{Amount: 30, Mine: true, Sweep: true},
	})
	require.NoError(t, err)
	defer releaseMinted(minted)

	require.Len(t, minted, 2)
	assert.True(t, inputs[0].Spent, "caller inputs are marked spent")
	assert.True(t, inputs[1].Spent)

	assert.Equal(t, derived(t, hdkey.ChainPay, 0), reveal(t, minted[0].Secret))
	assert.Equal(t, derived(t, hdkey.ChainChange, 0), reveal(t, minted[1].Secret))
	assert.False(t, minted[0].Secret.Mine)
	assert.True(t, minted[1].Secret.Sweep)

	for i, want := range []domain.Amount{70, 30} {
		out, err := w.GetOutput(ctx, minted[i].OutputID, true)
		require.NoError(t, err)
		assert.Equal(t, want, out.Amount)
		assert.False(t, out.Spent)
		assert.Equal(t, minted[i].Secret.Commitment(), out.Commitment)
		out.Release()
	}

	for _, id := range []int64{a, b} {
		assert.True(t, snapshot(t, w, id).Spent)
	}
}

func TestReplaceWebcash_PreconditionsLeaveStoreUnchanged(t *testing.T) {
	w := newTestWallet(t)
	a := insertToken(t, w, "p-a", 50)
	b := insertToken(t, w, "p-b", 50)
	in := snapshot(t, w, a)
	inB := snapshot(t, w, b)
	spent := in
	spent.Spent = true

	tests := []struct {
		name    string
		inputs  []domain.WalletOutput
		outputs []domain.OutputSpec
		want    error
	}{
		{"no inputs", nil, []domain.OutputSpec{{Amount: 50}}, apperror.Validation("")},
		{"no outputs", []domain.WalletOutput{in}, nil, apperror.Validation("")},
		{"duplicate input", []domain.WalletOutput{in, in}, []domain.OutputSpec{{Amount: 100}}, apperror.Validation("")},
		{"zero output", []domain.WalletOutput{in}, []domain.OutputSpec{{Amount: 50}, {Amount: 0}}, apperror.ErrInvalidAmount("")},
		{"negative output", []domain.WalletOutput{in}, []domain.OutputSpec{{Amount: 60}, {Amount: -10}}, apperror.ErrInvalidAmount("")},
		{"not conserved", []domain.WalletOutput{in}, []domain.OutputSpec{{Amount: 49}}, apperror.ErrValueNotConserved()},
		{"creates value", []domain.WalletOutput{in, inB}, []domain.OutputSpec{{Amount: 101}}, apperror.ErrValueNotConserved()},
		{"overflow", []domain.WalletOutput{in}, []domain.OutputSpec{{Amount: math.MaxInt64}, {Amount: 1}}, apperror.ErrAmountOverflow()},
		{"snapshot already spent", []domain.WalletOutput{spent}, []domain.OutputSpec{{Amount: 50}}, apperror.ErrAlreadySpent(0)},
	}

	before := counts(t, w)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := append([]domain.WalletOutput(nil), tt.inputs...)
			_, err := w.ReplaceWebcash(context.Background(), testNow, inputs, tt.outputs)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperror.Recoverable(err))
			assert.Equal(t, tt.inputs, inputs, "inputs untouched on failure")
		})
	}
	assert.Equal(t, before, counts(t, w))
}

func TestReplaceWebcash_StoreChecksRollBack(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	good := snapshot(t, w, insertToken(t, w, "s-good", 10))
	used := snapshot(t, w, insertToken(t, w, "s-used", 10))
	minted, err := w.ReplaceWebcash(ctx, testNow, []domain.WalletOutput{used}, []domain.OutputSpec{{Amount: 10, Mine: true}})
	require.NoError(t, err)
	releaseMinted(minted)
	stale := snapshot(t, w, used.ID)
	stale.Spent = false

	unknown := good
	unknown.ID = 9999

	wrongAmount := good
	wrongAmount.Amount = 20

	wrongCommitment := good
	wrongCommitment.Commitment = domain.CommitmentOf([]byte("other"))

	tests := []struct {
		name   string
		inputs []domain.WalletOutput
		total  domain.Amount
		want   error
	}{
		{"stale snapshot of spent input", []domain.WalletOutput{good, stale}, 20, apperror.ErrAlreadySpent(0)},
		{"unknown input", []domain.WalletOutput{good, unknown}, 20, apperror.ErrUnknownInput(0)},
		{"amount differs from store", []domain.WalletOutput{wrongAmount}, 20, apperror.ErrInputMismatch(0)},
		{"commitment differs from store", []domain.WalletOutput{wrongCommitment}, 10, apperror.ErrInputMismatch(0)},
	}

	before := counts(t, w)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs := append([]domain.WalletOutput(nil), tt.inputs...)
			_, err := w.ReplaceWebcash(ctx, testNow, inputs, []domain.OutputSpec{{Amount: tt.total, Mine: true}})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, apperror.KindConflict, apperror.KindOf(err))
			assert.False(t, inputs[0].Spent)
		})
	}

	assert.Equal(t, before, counts(t, w), "failed replaces leave no rows behind")
	assert.False(t, snapshot(t, w, good.ID).Spent, "the valid input was rolled back")

	// The change chain was not advanced by the failures.
	minted, err = w.ReplaceWebcash(ctx, testNow, []domain.WalletOutput{good}, []domain.OutputSpec{{Amount: 10, Mine: true}})
	require.NoError(t, err)
	defer releaseMinted(minted)
	assert.Equal(t, derived(t, hdkey.ChainChange, 1), reveal(t, minted[0].Secret))
}

func TestReplaceWebcash_RejectsOutputWithoutSecret(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	var watchedID int64
	require.NoError(t, w.withTx(ctx, func(tx ports.Tx) error {
		var err error
		watchedID, err = w.AddOutputToWallet(ctx, tx, domain.WalletOutput{
			CreatedAt:  testNow,
			Commitment: domain.CommitmentOf([]byte("watched")),
			Secret:     fn.None[domain.WalletSecret](),
			Amount:     100,
		})
		return err
	}))
	before := counts(t, w)

	inputs := []domain.WalletOutput{snapshot(t, w, watchedID)}
	minted, err := w.ReplaceWebcash(ctx, testNow, inputs, []domain.OutputSpec{
		{Amount: 60, Mine: true},
		{Amount: 40, Mine: true},
	})
	require.Error(t, err)
	assert.Nil(t, minted)
	assert.ErrorIs(t, err, apperror.ErrUnknownInput(0))
	assert.False(t, inputs[0].Spent)

	assert.Equal(t, before, counts(t, w))
	assert.False(t, snapshot(t, w, watchedID).Spent)

	total, err := w.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), total)
}

func TestReplaceWebcash_ConcurrentDoubleSpend(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()
	in := snapshot(t, w, insertToken(t, w, "race", 100))

	const racers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins []domain.ReplacedOutput
		errs []error
	)
	for range racers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inputs := []domain.WalletOutput{in}
			minted, err := w.ReplaceWebcash(ctx, testNow, inputs, []domain.OutputSpec{{Amount: 100, Mine: true}})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			wins = append(wins, minted...)
		}()
	}
	wg.Wait()
	defer releaseMinted(wins)

	require.Len(t, wins, 1, "exactly one replace spends the input")
	require.Len(t, errs, racers-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, apperror.ErrAlreadySpent(in.ID))
	}

	total, err := w.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(100), total)
	assert.Equal(t, int64(2), count(t, w, `SELECT COUNT(*) FROM outputs`))
}

func TestReplaceWebcash_ConcurrentDisjointInputs(t *testing.T) {
	w := newTestWallet(t)
	ctx := context.Background()

	const n = 10
	inputs := make([]domain.WalletOutput, n)
	for i := range n {
		inputs[i] = snapshot(t, w, insertToken(t, w, "disjoint-"+string(rune('a'+i)), 5))
	}

	var wg sync.WaitGroup
	results := make([][]domain.ReplacedOutput, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = w.ReplaceWebcash(ctx, testNow, inputs[i:i+1], []domain.OutputSpec{{Amount: 5, Mine: true}})
		}()
	}
	wg.Wait()

	seen := make(map[domain.Commitment]bool)
	for i := range n {
		require.NoError(t, errs[i])
		c := results[i][0].Secret.Commitment()
		assert.False(t, seen[c], "every replace gets a fresh secret")
		seen[c] = true
		releaseMinted(results[i])
	}

	total, err := w.Balance(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(5*n), total)
}
