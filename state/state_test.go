package state

import (
	"context"
	"math/big"
	"testing"

	"vitrine/crypto"
	"vitrine/native/affiliate"
	"vitrine/native/identity"
	"vitrine/native/market"
	"vitrine/storage"

	coreid "vitrine/core/identity"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

func TestKVRoundTrip(t *testing.T) {
	kv := NewManager(storage.NewMemDB())
	type record struct {
		Name  string
		Value *big.Int
	}
	if err := kv.KVPut([]byte("a"), record{Name: "x", Value: big.NewInt(42)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out record
	ok, err := kv.KVGet([]byte("a"), &out)
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if out.Name != "x" || out.Value.Int64() != 42 {
		t.Fatalf("unexpected record %+v", out)
	}
	if ok, err := kv.KVGet([]byte("missing"), &out); err != nil || ok {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	var list [][]byte
	if err := kv.KVGetList([]byte("empty"), &list); err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v (%v)", list, err)
	}

	batch := kv.NewBatch()
	if err := batch.Put([]byte("l"), [][]byte{{1}, {2}}); err != nil {
		t.Fatalf("stage: %v", err)
	}
	batch.Delete([]byte("a"))
	if err := kv.Commit(batch); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if err := kv.KVGetList([]byte("l"), &list); err != nil || len(list) != 2 {
		t.Fatalf("expected batched list, got %v (%v)", list, err)
	}
	if ok, err := kv.KVGet([]byte("a"), &out); err != nil || ok {
		t.Fatalf("expected batched delete, got %v %v", ok, err)
	}
}

func TestSnapshotStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := market.NewWithDefaults(market.DefaultParams(addr(0xEE)), identity.DefaultParams(), affiliate.DefaultParams())
	seller, promoter, buyer := addr(1), addr(2), addr(3)
	id, err := m.ListProduct(ctx, seller, big.NewInt(100), 500, "cid-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := m.RegisterLink(ctx, promoter, id); err != nil {
		t.Fatalf("link: %v", err)
	}
	var h coreid.Hash
	h[5] = 9
	if err := m.RegisterPersona(ctx, buyer, h); err != nil {
		t.Fatalf("persona: %v", err)
	}
	if _, err := m.Purchase(ctx, market.PurchaseRequest{Buyer: buyer, ProductID: id, Payment: big.NewInt(150), Referral: &promoter}); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	snap, err := m.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	store := NewSnapshotStore(NewManager(storage.NewMemDB()), 2)
	if err := store.Save(snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, ok, err := store.Latest()
	if err != nil || !ok {
		t.Fatalf("latest: %v %v", ok, err)
	}
	restored := market.NewWithDefaults(market.DefaultParams(addr(0xEE)), identity.DefaultParams(), affiliate.DefaultParams())
	if err := restored.Restore(ctx, loaded); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Balance(seller).Int64() != 94 || restored.Balance(promoter).Int64() != 4 {
		t.Fatalf("balances not restored")
	}
	if got, ok := restored.PersonaHash(buyer); !ok || got != h {
		t.Fatalf("persona not restored")
	}
	receipt, err := restored.Receipt(1)
	if err != nil || receipt.Promoter == nil || *receipt.Promoter != promoter {
		t.Fatalf("receipt not restored: %+v (%v)", receipt, err)
	}
	restored.Ledger().MustVerify()
}

func TestSnapshotRetention(t *testing.T) {
	store := NewSnapshotStore(NewManager(storage.NewMemDB()), 2)
	for seq := uint64(1); seq <= 4; seq++ {
		if err := store.Save(&market.Snapshot{Sequence: seq}); err != nil {
			t.Fatalf("save %d: %v", seq, err)
		}
	}
	sequences, err := store.Sequences()
	if err != nil {
		t.Fatalf("sequences: %v", err)
	}
	if len(sequences) != 2 || sequences[0] != 3 || sequences[1] != 4 {
		t.Fatalf("unexpected retained sequences %v", sequences)
	}
	if _, ok, _ := store.Load(1); ok {
		t.Fatalf("expected snapshot 1 to be pruned")
	}
	latest, ok, err := store.Latest()
	if err != nil || !ok || latest.Sequence != 4 {
		t.Fatalf("unexpected latest %+v %v %v", latest, ok, err)
	}
}
