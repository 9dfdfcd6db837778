package market

import (
	"context"
	"fmt"
	"math/big"

	"vitrine/crypto"
	"vitrine/native/affiliate"
	"vitrine/native/catalog"
	"vitrine/native/fees"
	"vitrine/native/identity"
	"vitrine/native/ledger"
)

// ReceiptRecord is the persisted form of a Receipt.
type ReceiptRecord struct {
	Sequence       uint64
	ProductID      uint64
	Buyer          crypto.Address
	Seller         crypto.Address
	HasPromoter    bool
	Promoter       crypto.Address
	PricePaid      *big.Int
	PlatformFee    *big.Int
	SellerAmount   *big.Int
	PromoterAmount *big.Int
	Change         *big.Int
	Timestamp      uint64
}

// Snapshot is a consistent copy of the whole marketplace.
type Snapshot struct {
	Identity   identity.Snapshot
	Catalog    catalog.Snapshot
	Affiliate  affiliate.Snapshot
	Ledger     ledger.Snapshot
	Sequence   uint64
	Sales      uint64
	Receipts   []ReceiptRecord
	Gross      *big.Int
	Platform   *big.Int
	Commission *big.Int
	Seller     *big.Int
	// Rail is the payment rail's book when the rail keeps one.
	Rail []RailAccount `rlp:"optional"`
}

// Snapshot blocks writers on every aggregate in lock order and copies the
// state they guard.
func (m *Marketplace) Snapshot(ctx context.Context) (*Snapshot, error) {
	txs, err := m.begin(ctx)
	if err != nil {
		return nil, m.observeErr("snapshot", err)
	}
	defer txs.rollback()
	snap := &Snapshot{
		Identity:  m.identity.Snapshot(),
		Catalog:   m.catalog.Snapshot(),
		Affiliate: m.affiliate.Snapshot(),
		Ledger:    m.ledger.Snapshot(),
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap.Sequence = m.sequence
	snap.Sales = m.sales
	snap.Gross = new(big.Int).Set(m.totals.Gross)
	snap.Platform = new(big.Int).Set(m.totals.Platform)
	snap.Commission = new(big.Int).Set(m.totals.Commission)
	snap.Seller = new(big.Int).Set(m.totals.Seller)
	snap.Receipts = make([]ReceiptRecord, 0, len(m.receipts))
	for _, r := range m.receipts {
		snap.Receipts = append(snap.Receipts, toRecord(r))
	}
	// No purchase sits between escrow and commit while the writer locks are
	// held, so the book matches the aggregates.
	if book, ok := m.rail.(BookKeeper); ok {
		snap.Rail = book.Book()
	}
	return snap, nil
}

// Restore replaces every aggregate with the snapshot contents. Writer locks
// are taken in the global order and every part is validated before any of it
// becomes visible, so a bad snapshot leaves the marketplace unchanged.
func (m *Marketplace) Restore(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return nil
	}
	receipts := make([]*Receipt, 0, len(snap.Receipts))
	var last uint64
	for _, rec := range snap.Receipts {
		if rec.Sequence <= last || rec.Sequence > snap.Sequence {
			return fmt.Errorf("market: receipt sequence %d out of order", rec.Sequence)
		}
		last = rec.Sequence
		receipts = append(receipts, fromRecord(rec))
	}
	totals := fees.Totals{
		Gross:      cloneBig(snap.Gross),
		Platform:   cloneBig(snap.Platform),
		Commission: cloneBig(snap.Commission),
		Seller:     cloneBig(snap.Seller),
	}

	txs, err := m.begin(ctx)
	if err != nil {
		return m.observeErr("restore", err)
	}
	stages := []struct {
		name  string
		stage func() error
	}{
		{"identity", func() error { return txs.identity.Restore(snap.Identity) }},
		{"catalog", func() error { return txs.catalog.Restore(snap.Catalog) }},
		{"affiliate", func() error { return txs.affiliate.Restore(snap.Affiliate) }},
		{"ledger", func() error { return txs.ledger.Restore(snap.Ledger) }},
	}
	for _, s := range stages {
		if err := s.stage(); err != nil {
			txs.rollback()
			return fmt.Errorf("market: restore %s: %w", s.name, err)
		}
	}
	if book, ok := m.rail.(BookKeeper); ok {
		if err := book.RestoreBook(snap.Rail); err != nil {
			txs.rollback()
			return fmt.Errorf("market: restore rail: %w", err)
		}
	}

	txs.apply()
	m.mu.Lock()
	m.sequence = snap.Sequence
	m.sales = snap.Sales
	m.receipts = receipts
	m.totals = totals
	m.mu.Unlock()
	txs.commit()
	m.metrics.SetOutstanding(m.ledger.Totals().Outstanding)
	return nil
}

func toRecord(r *Receipt) ReceiptRecord {
	rec := ReceiptRecord{
		Sequence:       r.Sequence,
		ProductID:      r.ProductID,
		Buyer:          r.Buyer,
		Seller:         r.Seller,
		PricePaid:      cloneBig(r.PricePaid),
		PlatformFee:    cloneBig(r.PlatformFee),
		SellerAmount:   cloneBig(r.SellerAmount),
		PromoterAmount: cloneBig(r.PromoterAmount),
		Change:         cloneBig(r.Change),
		Timestamp:      uint64(r.Timestamp),
	}
	if r.Promoter != nil {
		rec.HasPromoter = true
		rec.Promoter = *r.Promoter
	}
	return rec
}

func fromRecord(rec ReceiptRecord) *Receipt {
	r := &Receipt{
		Sequence:       rec.Sequence,
		ProductID:      rec.ProductID,
		Buyer:          rec.Buyer,
		Seller:         rec.Seller,
		PricePaid:      cloneBig(rec.PricePaid),
		PlatformFee:    cloneBig(rec.PlatformFee),
		SellerAmount:   cloneBig(rec.SellerAmount),
		PromoterAmount: cloneBig(rec.PromoterAmount),
		Change:         cloneBig(rec.Change),
		Timestamp:      int64(rec.Timestamp),
	}
	if rec.HasPromoter {
		promoter := rec.Promoter
		r.Promoter = &promoter
	}
	return r
}
