package crypto

import (
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, "vtr1") {
		t.Fatalf("unexpected encoding %q", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestDecodeAddressRejectsForeignPrefix(t *testing.T) {
	conv, err := bech32.ConvertBits(make([]byte, AddressLength), 8, 5, true)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	foreign, err := bech32.Encode("cosmos", conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeAddress(foreign); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if _, err := DecodeAddress("not-an-address"); !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress for garbage, got %v", err)
	}
}

func TestAddressTextMarshalling(t *testing.T) {
	addr := BytesToAddress([]byte{0x01, 0x02, 0x03})
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Address
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != addr {
		t.Fatalf("expected %s, got %s", addr, decoded)
	}
	if addr[AddressLength-1] != 0x03 {
		t.Fatalf("expected right-aligned bytes, got %x", addr[:])
	}
}

func TestKeccak256Deterministic(t *testing.T) {
	first := Keccak256([]byte("persona"))
	second := Keccak256([]byte("per"), []byte("sona"))
	if first != second {
		t.Fatalf("expected concatenation to hash identically")
	}
	if first == ([32]byte{}) {
		t.Fatalf("expected non-zero digest")
	}
}
