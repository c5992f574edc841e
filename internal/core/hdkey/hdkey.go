// Package hdkey derives child webcash secrets from a wallet root secret.
package hdkey

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// Chain selects an independent derivation sequence.
type Chain uint64

const (
	ChainReceive Chain = 0
	ChainPay     Chain = 1
	ChainChange  Chain = 2
	ChainMining  Chain = 3
)

func (c Chain) String() string {
	switch c {
	case ChainReceive:
		return "RECEIVE"
	case ChainPay:
		return "PAY"
	case ChainChange:
		return "CHANGE"
	case ChainMining:
		return "MINING"
	default:
		return fmt.Sprintf("CHAIN(%d)", uint64(c))
	}
}

// RootSize is the decoded length of a root secret.
const RootSize = 32

var tag = sha256.Sum256([]byte("webcashwalletv1"))

// Derive returns the hex-encoded child secret at (chain, depth) for the
// hex-encoded root. The returned slice is owned by the caller.
func Derive(root []byte, chain Chain, depth uint64) ([]byte, error) {
	if len(root) != hex.EncodedLen(RootSize) {
		return nil, fmt.Errorf("root secret must be %d hex characters, got %d", hex.EncodedLen(RootSize), len(root))
	}

	var raw [RootSize]byte
	defer clear(raw[:])
	if _, err := hex.Decode(raw[:], root); err != nil {
		return nil, fmt.Errorf("decoding root secret: %w", err)
	}

	var suffix [16]byte
	binary.BigEndian.PutUint64(suffix[:8], uint64(chain))
	binary.BigEndian.PutUint64(suffix[8:], depth)

	h := sha256.New()
	h.Write(tag[:])
	h.Write(tag[:])
	h.Write(raw[:])
	h.Write(suffix[:])

	var sum [sha256.Size]byte
	h.Sum(sum[:0])
	defer clear(sum[:])

	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return out, nil
}
