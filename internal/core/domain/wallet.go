package domain

import (
	"time"

	"webcash-wallet/internal/core/securemem"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// WalletSecret is a persisted secret the wallet generated or was given.
type WalletSecret struct {
	ID        int64
	CreatedAt time.Time
	Secret    *securemem.Secret
	Mine      bool // generated by this wallet
	Sweep     bool // to be drained rather than held
}

// Commitment hashes the secret.
func (s WalletSecret) Commitment() Commitment {
	return CommitmentOf(s.Secret.Bytes())
}

// Release zeroes the secret.
func (s WalletSecret) Release() {
	s.Secret.Destroy()
}

// WalletOutput is a public token the wallet tracks. Secret is set when the
// wallet can spend it and is owned by the output.
type WalletOutput struct {
	ID         int64
	CreatedAt  time.Time
	Commitment Commitment
	Secret     fn.Option[WalletSecret]
	Amount     Amount
	Spent      bool
}

// Public returns the public token for the output.
func (o WalletOutput) Public() PublicWebcash {
	return PublicWebcash{Commitment: o.Commitment, Amount: o.Amount}
}

// Webcash returns the spendable token when the secret is known. The token
// shares the output's secret buffer.
func (o WalletOutput) Webcash() fn.Option[SecretWebcash] {
	if o.Secret.IsNone() {
		return fn.None[SecretWebcash]()
	}
	s := o.Secret.UnsafeFromSome()
	return fn.Some(SecretWebcash{Secret: s.Secret, Amount: o.Amount})
}

// Release zeroes the linked secret, if any, and detaches it.
func (o *WalletOutput) Release() {
	o.Secret.WhenSome(func(s WalletSecret) {
		s.Release()
	})
	o.Secret = fn.None[WalletSecret]()
}

// ReleaseOutputs releases every output in outs.
func ReleaseOutputs(outs []WalletOutput) {
	for i := range outs {
		outs[i].Release()
	}
}

// OutputSpec requests one new output from a replace.
type OutputSpec struct {
	Amount Amount
	Mine   bool
	Sweep  bool
}

// ReplacedOutput is a secret minted by a replace and the id of its output.
type ReplacedOutput struct {
	Secret   WalletSecret
	OutputID int64
}

// OutputFilter narrows ListOutputs. Zero Limit means no limit.
type OutputFilter struct {
	Spent  fn.Option[bool]
	Limit  int
	Offset int
}
