package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"webcash-wallet/internal/core/securemem"
	"webcash-wallet/pkg/apperror"
)

const (
	tokenPrefix = "e"
	kindSecret  = "secret"
	kindPublic  = "public"
)

// Commitment is the SHA-256 hash of a webcash secret.
type Commitment [sha256.Size]byte

// CommitmentOf hashes a secret.
func CommitmentOf(secret []byte) Commitment {
	return sha256.Sum256(secret)
}

// Hex returns the lowercase hex form stored and transmitted for a commitment.
func (c Commitment) Hex() string {
	return hex.EncodeToString(c[:])
}

func (c Commitment) String() string {
	return c.Hex()
}

// ParseCommitment decodes a 64-character hex commitment.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	if len(s) != hex.EncodedLen(len(c)) {
		return c, apperror.ErrInvalidToken("commitment must be 64 hex characters")
	}
	if _, err := hex.Decode(c[:], []byte(s)); err != nil {
		return c, apperror.ErrInvalidToken("commitment is not valid hex")
	}
	return c, nil
}

// SecretWebcash is a spendable token. Release it when done.
type SecretWebcash struct {
	Secret *securemem.Secret
	Amount Amount
}

// NewSecretWebcash copies secret into locked memory.
func NewSecretWebcash(secret []byte, amount Amount) (SecretWebcash, error) {
	s, err := securemem.New(secret)
	if err != nil {
		return SecretWebcash{}, apperror.InternalError(err)
	}
	return SecretWebcash{Secret: s, Amount: amount}, nil
}

// ParseSecretWebcash parses "e<amount>:secret:<secret>".
func ParseSecretWebcash(token string) (SecretWebcash, error) {
	amount, body, err := splitToken(token, kindSecret)
	if err != nil {
		return SecretWebcash{}, err
	}
	if body == "" {
		return SecretWebcash{}, apperror.ErrInvalidToken("secret must not be empty")
	}
	s, err := securemem.FromString(body)
	if err != nil {
		return SecretWebcash{}, apperror.InternalError(err)
	}
	return SecretWebcash{Secret: s, Amount: amount}, nil
}

// Public derives the public form.
func (sk SecretWebcash) Public() PublicWebcash {
	return PublicWebcash{
		Commitment: CommitmentOf(sk.Secret.Bytes()),
		Amount:     sk.Amount,
	}
}

// Reveal renders the full spendable token. The result carries value and
// must not be logged.
func (sk SecretWebcash) Reveal() (string, error) {
	secret, err := sk.Secret.Reveal()
	if err != nil {
		return "", err
	}
	return tokenPrefix + FormatWebcash(sk.Amount) + ":" + kindSecret + ":" + secret, nil
}

// String renders the token with the secret redacted.
func (sk SecretWebcash) String() string {
	return tokenPrefix + FormatWebcash(sk.Amount) + ":" + kindSecret + ":" + sk.Secret.String()
}

// Release zeroes the secret.
func (sk SecretWebcash) Release() {
	sk.Secret.Destroy()
}

// PublicWebcash identifies a token without conferring spending power.
type PublicWebcash struct {
	Commitment Commitment
	Amount     Amount
}

// String renders "e<amount>:public:<hex commitment>".
func (pk PublicWebcash) String() string {
	return tokenPrefix + FormatWebcash(pk.Amount) + ":" + kindPublic + ":" + pk.Commitment.Hex()
}

// ParsePublicWebcash parses the form produced by String.
func ParsePublicWebcash(token string) (PublicWebcash, error) {
	amount, body, err := splitToken(token, kindPublic)
	if err != nil {
		return PublicWebcash{}, err
	}
	c, err := ParseCommitment(body)
	if err != nil {
		return PublicWebcash{}, err
	}
	return PublicWebcash{Commitment: c, Amount: amount}, nil
}

func splitToken(token, kind string) (Amount, string, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || !strings.HasPrefix(parts[0], tokenPrefix) {
		return 0, "", apperror.ErrInvalidToken("token must look like e<amount>:" + kind + ":<value>")
	}
	if parts[1] != kind {
		return 0, "", apperror.ErrInvalidToken("expected a " + kind + " token, got " + parts[1])
	}
	amount, err := ParseWebcash(strings.TrimPrefix(parts[0], tokenPrefix))
	if err != nil {
		return 0, "", err
	}
	if amount <= 0 {
		return 0, "", apperror.ErrInvalidAmount("token amount must be positive")
	}
	return amount, parts[2], nil
}
