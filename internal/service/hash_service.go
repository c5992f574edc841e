package service

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params are the Argon2id cost parameters used for new hashes.
// Verification always uses the parameters encoded in the stored hash.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2Params: 64MB, one pass, four lanes.
var DefaultArgon2Params = Argon2Params{
	Time:    1,
	Memory:  64 * 1024,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

// Argon2HashService implements ports.HashService using Argon2id.
type Argon2HashService struct {
	params Argon2Params
}

// NewArgon2HashService creates a hash service with DefaultArgon2Params.
func NewArgon2HashService() *Argon2HashService {
	return &Argon2HashService{params: DefaultArgon2Params}
}

// NewArgon2HashServiceWithParams creates a hash service with custom costs.
func NewArgon2HashServiceWithParams(p Argon2Params) *Argon2HashService {
	return &Argon2HashService{params: p}
}

// Hash generates an Argon2id hash of the password.
// Returns format: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (s *Argon2HashService) Hash(password string) (string, error) {
	salt := make([]byte, s.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, s.params.Time, s.params.Memory, s.params.Threads, s.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		s.params.Memory, s.params.Time, s.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// Verify checks if a password matches the given Argon2id hash.
func (s *Argon2HashService) Verify(password string, encodedHash string) (bool, error) {
	salt, hash, params, err := decodeArgon2Hash(encodedHash)
	if err != nil {
		return false, err
	}

	otherHash := argon2.IDKey([]byte(password), salt, params.Time, params.Memory, params.Threads, params.KeyLen)

	return subtle.ConstantTimeCompare(hash, otherHash) == 1, nil
}

// decodeArgon2Hash parses the encoded hash string.
func decodeArgon2Hash(encodedHash string) (salt, hash []byte, params Argon2Params, err error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return nil, nil, params, fmt.Errorf("invalid hash format: expected 6 parts, got %d", len(parts))
	}

	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Time, &params.Threads); err != nil {
		return nil, nil, params, fmt.Errorf("parsing params: %w", err)
	}
	if params.Time == 0 || params.Threads == 0 {
		return nil, nil, params, fmt.Errorf("invalid params: t=%d p=%d", params.Time, params.Threads)
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding salt: %w", err)
	}

	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, params, fmt.Errorf("decoding hash: %w", err)
	}
	if len(hash) == 0 {
		return nil, nil, params, fmt.Errorf("empty hash")
	}

	params.KeyLen = uint32(len(hash))
	params.SaltLen = uint32(len(salt))

	return salt, hash, params, nil
}
