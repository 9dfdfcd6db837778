package identity

import (
	"errors"
	"strings"
	"testing"
)

func TestParseHash(t *testing.T) {
	raw := "0x" + strings.Repeat("ab", HashLength)
	h, err := ParseHash(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if h.String() != raw {
		t.Fatalf("unexpected round trip %s", h)
	}
	bare, err := ParseHash(strings.Repeat("ab", HashLength))
	if err != nil || bare != h {
		t.Fatalf("expected bare hex to parse identically: %v", err)
	}
	if _, err := ParseHash("0x1234"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}
	if _, err := ParseHash("0x" + strings.Repeat("zz", HashLength)); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash for non-hex, got %v", err)
	}
}

func TestBinding(t *testing.T) {
	if Unbound.IsBound() {
		t.Fatalf("zero binding must be unbound")
	}
	if Bind(Hash{}).IsBound() {
		t.Fatalf("binding the zero hash must stay unbound")
	}
	h := Hash{1}
	b := Bind(h)
	got, ok := b.Hash()
	if !ok || got != h {
		t.Fatalf("unexpected binding %v", b)
	}
}
