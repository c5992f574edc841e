// Package securemem holds value-bearing secrets in page-aligned buffers that
// are locked against swapping where the OS allows it and zeroed on Destroy.
package securemem

import (
	"crypto/subtle"
	"errors"
	"sync"
)

// ErrNotSerializable is returned when a Secret is passed to an encoder.
var ErrNotSerializable = errors.New("securemem: secret is not serializable")

// ErrDestroyed is returned when a destroyed Secret is read.
var ErrDestroyed = errors.New("securemem: secret destroyed")

const redacted = "[redacted]"

// noCopy triggers go vet's copylocks check on values that embed it.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Secret is an immutable byte string held outside the Go heap.
// Always handle it by pointer.
type Secret struct {
	_ noCopy

	mu     sync.Mutex
	region []byte // whole mapping
	n      int
	locked bool
	dead   bool
}

// New copies b into a fresh locked region. The caller still owns b and
// should Wipe it when no longer needed.
func New(b []byte) (*Secret, error) {
	region, locked, err := allocate(len(b))
	if err != nil {
		return nil, err
	}
	copy(region, b)
	return &Secret{region: region, n: len(b), locked: locked}, nil
}

// FromString copies s into a fresh locked region. The string itself stays on
// the heap, so prefer New for material that has not been materialised yet.
func FromString(s string) (*Secret, error) {
	region, locked, err := allocate(len(s))
	if err != nil {
		return nil, err
	}
	copy(region, s)
	return &Secret{region: region, n: len(s), locked: locked}, nil
}

// Bytes returns a view of the secret. The slice is invalid after Destroy and
// must not be retained or modified.
func (s *Secret) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return nil
	}
	return s.region[:s.n:s.n]
}

// Reveal returns a heap copy of the secret as a string. Callers that use it
// take over responsibility for where the copy goes.
func (s *Secret) Reveal() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return "", ErrDestroyed
	}
	return string(s.region[:s.n]), nil
}

// Len is the secret length in bytes.
func (s *Secret) Len() int {
	return s.n
}

// Locked reports whether the backing pages are pinned in RAM.
func (s *Secret) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// Equal compares two secrets in constant time.
func (s *Secret) Equal(o *Secret) bool {
	if s == nil || o == nil {
		return s == o
	}
	a, b := s.Bytes(), o.Bytes()
	if a == nil || b == nil {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Clone copies the secret into a new independent region.
func (s *Secret) Clone() (*Secret, error) {
	b := s.Bytes()
	if b == nil {
		return nil, ErrDestroyed
	}
	return New(b)
}

// Destroy zeroes and releases the region. Safe to call more than once and on
// a nil Secret.
func (s *Secret) Destroy() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	Wipe(s.region)
	release(s.region, s.locked)
	s.region = nil
	s.dead = true
}

func (s *Secret) String() string {
	return redacted
}

func (s *Secret) GoString() string {
	return redacted
}

func (s *Secret) MarshalText() ([]byte, error) {
	return nil, ErrNotSerializable
}

// Wipe zeroes b in place.
func Wipe(b []byte) {
	clear(b)
}
