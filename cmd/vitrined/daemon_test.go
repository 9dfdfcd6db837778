package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"vitrine/config"
	"vitrine/native/market"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Market.PlatformAccount = newTestAddress(t).String()
	cfg.Audit.DSN = filepath.Join(cfg.DataDir, "audit.db")
	require.NoError(t, config.ValidateConfig(cfg))
	return cfg
}

func TestDaemonServesHealthAndRPC(t *testing.T) {
	d, err := newDaemon(context.Background(), testConfig(t), "", nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	srv := httptest.NewServer(d.handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", string(body))

	resp, err = http.Post(srv.URL+"/rpc", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"market_getStats"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var decoded struct {
		Result map[string]interface{} `json:"result"`
		Error  interface{}            `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	require.Nil(t, decoded.Error)
	require.NotNil(t, decoded.Result)
}

func TestDaemonRestoresSnapshotInsteadOfSeeding(t *testing.T) {
	cfg := testConfig(t)
	seller := newTestAddress(t)
	buyer := newTestAddress(t)
	seedPath := writeSeed(t, fmt.Sprintf(`
funds:
  - address: %s
    amount: "500"
products:
  - seller: %s
    price: "100"
    commissionBps: 500
`, buyer, seller))

	ctx := context.Background()
	d, err := newDaemon(ctx, cfg, seedPath, nil)
	require.NoError(t, err)
	products := d.market.ActiveProducts()
	require.Len(t, products, 1)

	receipt, err := d.market.Purchase(ctx, market.PurchaseRequest{
		Buyer:     buyer,
		ProductID: products[0].ID,
		Payment:   big.NewInt(100),
	})
	require.NoError(t, err)
	require.Equal(t, uint64(1), receipt.Sequence)

	snap, err := d.snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), snap.Sequence)
	d.Close()

	restored, err := newDaemon(ctx, cfg, seedPath, nil)
	require.NoError(t, err)
	t.Cleanup(restored.Close)

	require.Len(t, restored.market.ProductsBySeller(seller), 1)
	require.Equal(t, receipt.SellerAmount, restored.market.Balance(seller))
	got, err := restored.market.Receipt(1)
	require.NoError(t, err)
	require.Equal(t, buyer, got.Buyer)
	require.NoError(t, restored.market.Ledger().Verify())
	require.Equal(t, big.NewInt(400), restored.rail.Funds(buyer))
}

func TestRunSnapshotsStopsOnCancel(t *testing.T) {
	d, err := newDaemon(context.Background(), testConfig(t), "", nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.runSnapshots(ctx, 5*time.Millisecond)
	}()
	require.Eventually(t, func() bool {
		seqs, err := d.snapshots.Sequences()
		return err == nil && len(seqs) > 0
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("snapshot loop did not stop")
	}
}
