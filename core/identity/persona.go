package identity

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// HashLength is the width of a persona fingerprint.
const HashLength = 32

// Hash is the opaque fingerprint referencing an off-chain persona document.
type Hash [HashLength]byte

var (
	// ErrMalformedHash is returned when a textual persona hash cannot be parsed.
	ErrMalformedHash = errors.New("identity: malformed persona hash")
)

// ParseHash decodes a 0x-prefixed (or bare) 64 character hex string.
func ParseHash(value string) (Hash, error) {
	trimmed := strings.TrimSpace(value)
	trimmed = strings.TrimPrefix(strings.TrimPrefix(trimmed, "0x"), "0X")
	if len(trimmed) != HashLength*2 {
		return Hash{}, fmt.Errorf("%w: expected %d hex characters", ErrMalformedHash, HashLength*2)
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Hash{}, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	var h Hash
	copy(h[:], raw)
	return h, nil
}

// IsZero reports whether the hash is the all-zero value.
func (h Hash) IsZero() bool { return h == Hash{} }

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Binding is the persona slot of a user: either Unbound or bound to exactly
// one non-zero hash. The zero value is Unbound.
type Binding struct {
	hash  Hash
	bound bool
}

// Unbound is the empty persona slot.
var Unbound = Binding{}

// Bind returns a binding to h. Binding the zero hash yields Unbound.
func Bind(h Hash) Binding {
	if h.IsZero() {
		return Unbound
	}
	return Binding{hash: h, bound: true}
}

// Hash returns the bound hash and whether the slot is bound.
func (b Binding) Hash() (Hash, bool) { return b.hash, b.bound }

// IsBound reports whether a hash is bound.
func (b Binding) IsBound() bool { return b.bound }

func (b Binding) String() string {
	if !b.bound {
		return "unbound"
	}
	return b.hash.String()
}
