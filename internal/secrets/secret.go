// Package secrets holds credential material in zeroizable buffers and
// persists it through the operating system keyring.
package secrets

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/j-veylop/quotabar/internal/sanitize"
)

// Secret holds sensitive bytes that can be wiped after use. Every holder
// releases it with Zero on all exit paths; WithValue is the only sanctioned
// read.
type Secret struct {
	data []byte
}

// New wraps b without copying. The secret takes ownership: Zero wipes the
// caller's slice too.
func New(b []byte) *Secret {
	return &Secret{data: b}
}

// FromString copies s into a fresh buffer. The source string itself cannot
// be wiped.
func FromString(s string) *Secret {
	return &Secret{data: []byte(s)}
}

// WithValue exposes the raw bytes to fn. The slice must not be retained or
// modified past fn's return.
func (s *Secret) WithValue(fn func([]byte) error) error {
	return fn(s.data)
}

// Zero overwrites the buffer with zeros and drops it. Safe on nil and safe
// to call more than once.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	for i := range s.data {
		s.data[i] = 0
	}
	s.data = nil
}

// Len returns the number of secret bytes held.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return len(s.data)
}

// IsEmpty reports whether no material is held.
func (s *Secret) IsEmpty() bool {
	return s.Len() == 0
}

// Equal compares two secrets in constant time.
func (s *Secret) Equal(other *Secret) bool {
	if s == nil || other == nil {
		return s == other
	}
	return subtle.ConstantTimeCompare(s.data, other.data) == 1
}

// String implements fmt.Stringer; the value never prints.
func (s *Secret) String() string {
	return sanitize.Placeholder
}

// Format implements fmt.Formatter so every verb, including %#v, prints the
// placeholder instead of the buffer.
func (s *Secret) Format(f fmt.State, verb rune) {
	fmt.Fprint(f, sanitize.Placeholder)
}

// MarshalJSON refuses serialization so a Secret can never ride along in a
// struct dump.
func (s *Secret) MarshalJSON() ([]byte, error) {
	return nil, errors.New("secrets: refusing to marshal secret material")
}
