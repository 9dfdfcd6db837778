package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vitrine/crypto"
	"vitrine/native/affiliate"
	"vitrine/native/identity"
	"vitrine/native/market"
	"vitrine/services/payments"
)

func newTestAddress(t *testing.T) crypto.Address {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.PubKey().Address()
}

func writeSeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func newSeedMarket(t *testing.T) *market.Marketplace {
	t.Helper()
	params := market.DefaultParams(newTestAddress(t))
	return market.NewWithDefaults(params, identity.DefaultParams(), affiliate.DefaultParams())
}

func TestApplySeed(t *testing.T) {
	seller := newTestAddress(t)
	promoter := newTestAddress(t)
	buyer := newTestAddress(t)
	hash := "0x" + strings.Repeat("ab", 32)

	path := writeSeed(t, fmt.Sprintf(`
funds:
  - address: %[3]s
    amount: "1000"
credits:
  - address: %[1]s
    amount: "25"
reputation:
  - address: %[2]s
    delta: 3
personas:
  - address: %[3]s
    hash: %[4]s
products:
  - seller: %[1]s
    price: "100"
    commissionBps: 500
  - seller: %[1]s
    price: "40"
    inactive: true
links:
  - promoter: %[2]s
    product: 1
`, seller, promoter, buyer, hash))

	seed, err := loadSeed(path)
	require.NoError(t, err)
	require.Len(t, seed.Products, 2)

	m := newSeedMarket(t)
	rail := payments.NewMemoryRail(true)
	require.NoError(t, applySeed(context.Background(), m, rail, nil, seed))

	require.Equal(t, big.NewInt(25), m.Balance(seller))
	require.Equal(t, uint64(13), m.Reputation(promoter))
	bound, ok := m.PersonaHash(buyer)
	require.True(t, ok)
	require.Equal(t, hash, bound.String())
	require.Equal(t, big.NewInt(1000), rail.Funds(buyer))

	active := m.ActiveProducts()
	require.Len(t, active, 1)
	require.Equal(t, big.NewInt(100), active[0].Price)
	require.Len(t, m.ProductsBySeller(seller), 2)

	_, ok = m.AffiliateLink(active[0].ID, promoter)
	require.True(t, ok)
}

func TestLoadSeedRejectsUnknownFields(t *testing.T) {
	path := writeSeed(t, "products:\n  - seller: x\n    cost: 1\n")
	_, err := loadSeed(path)
	require.Error(t, err)
}

func TestApplySeedErrors(t *testing.T) {
	seller := newTestAddress(t)
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "bad_address", body: "credits:\n  - address: nope\n    amount: \"1\"\n", want: "credits.address"},
		{name: "negative_amount", body: fmt.Sprintf("credits:\n  - address: %s\n    amount: \"-5\"\n", seller), want: "invalid amount"},
		{name: "bad_hash", body: fmt.Sprintf("personas:\n  - address: %s\n    hash: 0x12\n", seller), want: "seed persona"},
		{name: "link_index", body: fmt.Sprintf("links:\n  - promoter: %s\n    product: 2\n", seller), want: "out of range"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seed, err := loadSeed(writeSeed(t, tc.body))
			require.NoError(t, err)
			err = applySeed(context.Background(), newSeedMarket(t), payments.NewMemoryRail(false), nil, seed)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}
}
