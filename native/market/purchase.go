package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"vitrine/crypto"
	"vitrine/native/affiliate"
	"vitrine/native/catalog"
	"vitrine/native/common"
	"vitrine/native/fees"
	"vitrine/native/identity"
	"vitrine/native/ledger"

	coreerrors "vitrine/core/errors"
)

// refundTimeout bounds a compensating refund once the caller's context is
// detached.
const refundTimeout = 10 * time.Second

// txSet holds one open transaction per aggregate, opened in the global lock
// order identity, catalog, affiliate, ledger.
type txSet struct {
	identity  *identity.Tx
	catalog   *catalog.Tx
	affiliate *affiliate.Tx
	ledger    *ledger.Tx
}

func (m *Marketplace) begin(ctx context.Context) (*txSet, error) {
	set := &txSet{}
	var err error
	if set.identity, err = m.identity.Begin(ctx); err != nil {
		return nil, err
	}
	if set.catalog, err = m.catalog.Begin(ctx); err != nil {
		set.rollback()
		return nil, err
	}
	if set.affiliate, err = m.affiliate.Begin(ctx); err != nil {
		set.rollback()
		return nil, err
	}
	if set.ledger, err = m.ledger.Begin(ctx); err != nil {
		set.rollback()
		return nil, err
	}
	return set, nil
}

func (s *txSet) rollback() {
	if s.ledger != nil {
		s.ledger.Rollback()
	}
	if s.affiliate != nil {
		s.affiliate.Rollback()
	}
	if s.catalog != nil {
		s.catalog.Rollback()
	}
	if s.identity != nil {
		s.identity.Rollback()
	}
}

// apply makes every transaction's writes visible while all writer locks are
// still held. Apply and Commit only fail on a closed transaction, which would
// be a coordinator bug.
func (s *txSet) apply() {
	err := errors.Join(
		s.identity.Apply(),
		s.catalog.Apply(),
		s.affiliate.Apply(),
		s.ledger.Apply(),
	)
	if err != nil {
		panic(fmt.Sprintf("market: apply failed: %v", err))
	}
}

// commit releases every writer lock and emits the buffered events.
func (s *txSet) commit() {
	err := errors.Join(
		s.identity.Commit(),
		s.catalog.Commit(),
		s.affiliate.Commit(),
		s.ledger.Commit(),
	)
	if err != nil {
		panic(fmt.Sprintf("market: commit failed: %v", err))
	}
}

// Purchase settles a sale: validate, escrow, stage every aggregate change,
// settle the split with the rail, then publish atomically. On any failure
// nothing is published and the escrow is refunded in full.
func (m *Marketplace) Purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	start := time.Now()
	receipt, err := m.purchase(ctx, req)
	m.metrics.ObservePurchase(purchaseOutcome(err), time.Since(start))
	if err != nil {
		if errors.Is(err, common.ErrBusy) {
			m.metrics.RecordLockTimeout("purchase")
		}
		m.logger.Debug("purchase rejected", "buyer", req.Buyer.String(), "productId", req.ProductID, "error", err)
		return nil, err
	}
	m.logger.Info("purchase settled",
		"sequence", receipt.Sequence,
		"productId", receipt.ProductID,
		"buyer", receipt.Buyer.String(),
		"price", receipt.PricePaid.String())
	return receipt, nil
}

func (m *Marketplace) purchase(ctx context.Context, req PurchaseRequest) (*Receipt, error) {
	if err := common.Guard(m.pauses, common.ModuleMarket); err != nil {
		return nil, err
	}
	if req.Payment == nil || req.Payment.Sign() < 0 {
		return nil, ErrInvalidPayment
	}
	txs, err := m.begin(ctx)
	if err != nil {
		return nil, err
	}

	product, ok := txs.catalog.Product(req.ProductID)
	if !ok {
		txs.rollback()
		return nil, catalog.ErrNotFound
	}
	if !product.Active {
		txs.rollback()
		return nil, catalog.ErrInactive
	}
	if req.Buyer == product.Seller {
		txs.rollback()
		return nil, ErrSelfPurchase
	}
	if req.Payment.Cmp(product.Price) < 0 {
		txs.rollback()
		return nil, ErrInsufficientPayment
	}
	price := new(big.Int).Set(product.Price)
	change := new(big.Int).Sub(req.Payment, price)

	link, hasPromoter := txs.affiliate.Resolve(req.ProductID, req.Buyer, req.Referral)
	input := fees.SplitInput{Price: price, HasPromoter: hasPromoter}
	if hasPromoter {
		input.CommissionBps = link.CommissionBps
	}
	split := fees.Apply(m.params.Fees, input)

	var handle EscrowHandle
	if m.rail != nil {
		handle, err = m.rail.ValidateAndEscrow(ctx, req.Buyer, req.Payment)
		if err != nil {
			txs.rollback()
			return nil, fmt.Errorf("%w: %v", ErrEscrowFailed, err)
		}
	}

	splits, err := m.stage(txs, req, product, link, hasPromoter, split)
	if err != nil {
		txs.rollback()
		m.refund(ctx, handle, req.Payment)
		return nil, err
	}
	if m.rail != nil {
		if err := m.rail.Settle(ctx, handle, splits); err != nil {
			txs.rollback()
			m.refund(ctx, handle, req.Payment)
			return nil, fmt.Errorf("%w: %v", ErrSettlementFailed, err)
		}
	}

	receipt := &Receipt{
		ProductID:      req.ProductID,
		Buyer:          req.Buyer,
		Seller:         product.Seller,
		PricePaid:      price,
		PlatformFee:    split.PlatformFee,
		SellerAmount:   split.SellerAmount,
		PromoterAmount: split.PromoterAmount,
		Change:         change,
		Timestamp:      m.nowFn(),
	}
	if hasPromoter {
		promoter := link.Promoter
		receipt.Promoter = &promoter
	}

	// The aggregates become visible before the receipt does. Every writer lock
	// is still held, so sequence order is commit order.
	txs.apply()
	m.mu.Lock()
	m.sequence++
	receipt.Sequence = m.sequence
	m.receipts = append(m.receipts, receipt)
	m.sales++
	m.totals.Add(price, split)
	m.mu.Unlock()
	txs.commit()

	m.metrics.RecordSale(price, split.PlatformFee, split.PromoterAmount, split.SellerAmount)
	m.emit(PurchaseCompletedEvent(receipt))
	if change.Sign() > 0 {
		m.refund(ctx, handle, change)
	}
	return receipt.Clone(), nil
}

// stage applies the purchase to the open transactions and returns the payee
// instructions for the rail.
func (m *Marketplace) stage(txs *txSet, req PurchaseRequest, product *catalog.Product, link *affiliate.Link, hasPromoter bool, split fees.Split) ([]Split, error) {
	splits := make([]Split, 0, 3)
	credit := func(payee crypto.Address, amount *big.Int, reason ledger.Reason) error {
		if amount.Sign() == 0 {
			return nil
		}
		if err := txs.ledger.Credit(payee, amount, reason); err != nil {
			return err
		}
		splits = append(splits, Split{Payee: payee, Amount: new(big.Int).Set(amount), Reason: reason})
		return nil
	}
	if err := credit(product.Seller, split.SellerAmount, ledger.ReasonSaleProceeds); err != nil {
		return nil, err
	}
	if err := credit(m.params.PlatformAccount, split.PlatformFee, ledger.ReasonPlatformFee); err != nil {
		return nil, err
	}
	if hasPromoter {
		if err := credit(link.Promoter, split.PromoterAmount, ledger.ReasonAffiliateCommission); err != nil {
			return nil, err
		}
		if err := txs.affiliate.RecordCredit(req.ProductID, link.Promoter, split.PromoterAmount); err != nil {
			return nil, err
		}
	}
	if err := txs.catalog.RecordSale(req.ProductID); err != nil {
		return nil, err
	}
	if m.params.SaleReputationReward != 0 {
		txs.identity.UpdateReputation(product.Seller, m.params.SaleReputationReward)
	}
	txs.identity.RecordInteraction(req.Buyer)
	return splits, nil
}

// refund returns amount from the escrow to the buyer. It runs detached from
// the caller's cancellation so an abandoned request still gets its money back.
func (m *Marketplace) refund(ctx context.Context, handle EscrowHandle, amount *big.Int) {
	if m.rail == nil || amount == nil || amount.Sign() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()
	if err := m.rail.Refund(ctx, handle, amount); err != nil {
		m.logger.Error("escrow refund failed", "handle", string(handle), "amount", amount.String(), "error", err)
	}
}

func purchaseOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, common.ErrBusy):
		return "busy"
	case errors.Is(err, ErrSettlementFailed), errors.Is(err, ErrEscrowFailed):
		return "rail_failure"
	default:
		return coreerrors.KindOf(err).String()
	}
}
