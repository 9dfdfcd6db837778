package catalog

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"vitrine/core/events"
	"vitrine/crypto"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

func TestListProductAssignsSequentialIDs(t *testing.T) {
	cat := New()
	cat.SetNowFunc(func() int64 { return 1_700_000_000 })
	rec := &events.Recorder{}
	cat.SetEmitter(rec)
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		id, err := cat.ListProduct(ctx, addr(1), big.NewInt(100), 500, "cid-1")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if id != want {
			t.Fatalf("expected id %d, got %d", want, id)
		}
	}
	p, ok := cat.Product(1)
	if !ok {
		t.Fatalf("product missing")
	}
	if !p.Active || p.Sales != 0 || p.CommissionBps != 500 || p.ListedAt != 1_700_000_000 {
		t.Fatalf("unexpected product %+v", p)
	}
	if cat.Count() != 3 || len(rec.Events()) != 3 {
		t.Fatalf("unexpected count %d / events %d", cat.Count(), len(rec.Events()))
	}
}

func TestListProductValidation(t *testing.T) {
	cat := New()
	ctx := context.Background()
	if _, err := cat.ListProduct(ctx, addr(1), big.NewInt(0), 0, ""); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if _, err := cat.ListProduct(ctx, addr(1), big.NewInt(1), 10_001, ""); !errors.Is(err, ErrInvalidCommission) {
		t.Fatalf("expected ErrInvalidCommission, got %v", err)
	}
	if _, err := cat.ListProduct(ctx, addr(1), big.NewInt(1), 10_000, ""); err != nil {
		t.Fatalf("full commission must be accepted: %v", err)
	}
	if cat.Count() != 1 {
		t.Fatalf("rejected listings must not consume ids")
	}
}

func TestUpdateProduct(t *testing.T) {
	cat := New()
	ctx := context.Background()
	id, _ := cat.ListProduct(ctx, addr(1), big.NewInt(100), 250, "")

	if err := cat.UpdateProduct(ctx, addr(2), id, big.NewInt(90), true); !errors.Is(err, ErrNotSeller) {
		t.Fatalf("expected ErrNotSeller, got %v", err)
	}
	if err := cat.UpdateProduct(ctx, addr(1), 99, big.NewInt(90), true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := cat.UpdateProduct(ctx, addr(1), id, big.NewInt(0), true); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
	if err := cat.UpdateProduct(ctx, addr(1), id, big.NewInt(90), false); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, _ := cat.Product(id)
	if p.Price.Int64() != 90 || p.Active || p.CommissionBps != 250 {
		t.Fatalf("unexpected product after update %+v", p)
	}
	if len(cat.ActiveProducts()) != 0 {
		t.Fatalf("deactivated product listed as active")
	}
}

func TestRecordSale(t *testing.T) {
	cat := New()
	ctx := context.Background()
	id, _ := cat.ListProduct(ctx, addr(1), big.NewInt(100), 0, "")
	if err := cat.RecordSale(ctx, id); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if err := cat.RecordSale(ctx, 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = cat.UpdateProduct(ctx, addr(1), id, big.NewInt(100), false)
	if err := cat.RecordSale(ctx, id); !errors.Is(err, ErrInactive) {
		t.Fatalf("expected ErrInactive, got %v", err)
	}
	p, _ := cat.Product(id)
	if p.Sales != 1 {
		t.Fatalf("expected one sale, got %d", p.Sales)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	cat := New()
	id, _ := cat.ListProduct(context.Background(), addr(1), big.NewInt(100), 0, "")
	p, _ := cat.Product(id)
	p.Price.SetInt64(1)
	again, _ := cat.Product(id)
	if again.Price.Int64() != 100 {
		t.Fatalf("caller mutated catalog state")
	}
}

func TestProductsBySellerAndSnapshot(t *testing.T) {
	cat := New()
	ctx := context.Background()
	_, _ = cat.ListProduct(ctx, addr(1), big.NewInt(10), 0, "")
	_, _ = cat.ListProduct(ctx, addr(2), big.NewInt(20), 0, "")
	_, _ = cat.ListProduct(ctx, addr(1), big.NewInt(30), 0, "")
	mine := cat.ProductsBySeller(addr(1))
	if len(mine) != 2 || mine[0].ID != 1 || mine[1].ID != 3 {
		t.Fatalf("unexpected seller listings %+v", mine)
	}

	restored := New()
	if err := restored.Restore(ctx, cat.Snapshot()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	id, err := restored.ListProduct(ctx, addr(3), big.NewInt(5), 0, "")
	if err != nil || id != 4 {
		t.Fatalf("expected id sequence to continue at 4, got %d (%v)", id, err)
	}
}
