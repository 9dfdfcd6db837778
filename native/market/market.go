package market

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
	"vitrine/native/affiliate"
	"vitrine/native/catalog"
	"vitrine/native/common"
	"vitrine/native/fees"
	"vitrine/native/identity"
	"vitrine/native/ledger"
	"vitrine/observability"

	coreerrors "vitrine/core/errors"
	coreid "vitrine/core/identity"
)

var (
	ErrSelfPurchase           = coreerrors.New(coreerrors.KindConflict, "market: sellers cannot buy their own listings")
	ErrInsufficientPayment    = coreerrors.New(coreerrors.KindResource, "market: payment below price")
	ErrInvalidPayment         = coreerrors.New(coreerrors.KindValidation, "market: invalid payment amount")
	ErrInsufficientReputation = coreerrors.New(coreerrors.KindAuthorization, "market: insufficient reputation to list")
	ErrEscrowFailed           = coreerrors.New(coreerrors.KindUnavailable, "market: payment escrow failed")
	ErrSettlementFailed       = coreerrors.New(coreerrors.KindUnavailable, "market: payment settlement failed")
	ErrReceiptNotFound        = coreerrors.New(coreerrors.KindNotFound, "market: receipt not found")
)

// Marketplace coordinates the identity registry, catalog, attribution book
// and ledger.
type Marketplace struct {
	params    Params
	identity  *identity.Registry
	catalog   *catalog.Catalog
	affiliate *affiliate.Attribution
	ledger    *ledger.Ledger
	rail      Rail
	pauses    common.PauseView
	emitter   events.Emitter
	logger    *slog.Logger
	metrics   *observability.MarketMetrics
	nowFn     func() int64

	// Guarded by holding every aggregate writer lock; mu covers readers.
	mu       sync.RWMutex
	sequence uint64
	receipts []*Receipt
	sales    uint64
	totals   fees.Totals
}

// New wires a marketplace over existing aggregates.
func New(params Params, reg *identity.Registry, cat *catalog.Catalog, att *affiliate.Attribution, led *ledger.Ledger) *Marketplace {
	m := &Marketplace{
		params:    params,
		identity:  reg,
		catalog:   cat,
		affiliate: att,
		ledger:    led,
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		metrics:   observability.Market(),
		nowFn:     func() int64 { return time.Now().Unix() },
		totals:    fees.NewTotals(),
	}
	m.SetLockTimeout(params.LockTimeout)
	return m
}

// NewWithDefaults builds fresh aggregates with the supplied parameters.
func NewWithDefaults(params Params, idParams identity.Params, affParams affiliate.Params) *Marketplace {
	reg := identity.NewRegistry(idParams)
	cat := catalog.New()
	att := affiliate.New(affParams, cat, reg)
	return New(params, reg, cat, att, ledger.New())
}

// SetRail configures the payment rail. A nil rail skips escrow and
// settlement.
func (m *Marketplace) SetRail(rail Rail) { m.rail = rail }

// SetPauses configures the module pause view.
func (m *Marketplace) SetPauses(p common.PauseView) { m.pauses = p }

// SetLogger configures the marketplace logger.
func (m *Marketplace) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	m.logger = logger
}

// SetEmitter configures the event sink for the marketplace and every
// aggregate it coordinates.
func (m *Marketplace) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	m.emitter = emitter
	m.identity.SetEmitter(emitter)
	m.catalog.SetEmitter(emitter)
	m.affiliate.SetEmitter(emitter)
	m.ledger.SetEmitter(emitter)
}

// SetNowFunc overrides the clock for receipts, listings and attribution.
func (m *Marketplace) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	m.nowFn = now
	m.catalog.SetNowFunc(now)
	m.affiliate.SetNowFunc(now)
}

// SetLockTimeout bounds lock acquisition on every aggregate.
func (m *Marketplace) SetLockTimeout(timeout time.Duration) {
	m.identity.SetLockTimeout(timeout)
	m.catalog.SetLockTimeout(timeout)
	m.affiliate.SetLockTimeout(timeout)
	m.ledger.SetLockTimeout(timeout)
}

// Params returns the marketplace parameters.
func (m *Marketplace) Params() Params { return m.params }

// Identity exposes the registry for read-only callers.
func (m *Marketplace) Identity() *identity.Registry { return m.identity }

// Ledger exposes the ledger for read-only callers.
func (m *Marketplace) Ledger() *ledger.Ledger { return m.ledger }

func (m *Marketplace) emit(evt *types.Event) {
	if evt == nil || m.emitter == nil {
		return
	}
	m.emitter.Emit(wrap(evt))
}

func (m *Marketplace) observeErr(operation string, err error) error {
	if errors.Is(err, common.ErrBusy) {
		m.metrics.RecordLockTimeout(operation)
	}
	return err
}

// ListProduct lists a product for a seller whose reputation clears the
// seller threshold.
func (m *Marketplace) ListProduct(ctx context.Context, seller crypto.Address, price *big.Int, commissionBps uint16, metadataRef types.ContentID) (uint64, error) {
	if err := common.Guard(m.pauses, common.ModuleCatalog); err != nil {
		return 0, err
	}
	if m.identity.ReputationOf(seller) < m.params.SellerThreshold {
		return 0, ErrInsufficientReputation
	}
	id, err := m.catalog.ListProduct(ctx, seller, price, commissionBps, metadataRef)
	return id, m.observeErr("list_product", err)
}

// UpdateProduct changes price and availability on behalf of the seller.
func (m *Marketplace) UpdateProduct(ctx context.Context, caller crypto.Address, id uint64, newPrice *big.Int, active bool) error {
	if err := common.Guard(m.pauses, common.ModuleCatalog); err != nil {
		return err
	}
	return m.observeErr("update_product", m.catalog.UpdateProduct(ctx, caller, id, newPrice, active))
}

// Withdraw drains the user's balance and returns the amount for payout.
func (m *Marketplace) Withdraw(ctx context.Context, user crypto.Address) (*big.Int, error) {
	if err := common.Guard(m.pauses, common.ModuleLedger); err != nil {
		return nil, err
	}
	amount, err := m.ledger.Withdraw(ctx, user)
	if err != nil {
		return nil, m.observeErr("withdraw", err)
	}
	m.metrics.RecordWithdrawal(amount)
	m.metrics.SetOutstanding(m.ledger.Totals().Outstanding)
	m.logger.Info("balance withdrawn", "user", user.String(), "amount", amount.String())
	return amount, nil
}

// AdminCredit credits a balance outside of a sale.
func (m *Marketplace) AdminCredit(ctx context.Context, user crypto.Address, amount *big.Int) error {
	if err := common.Guard(m.pauses, common.ModuleLedger); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ledger.ErrInvalidAmount
	}
	if err := m.ledger.Credit(ctx, user, amount, ledger.ReasonAdminCredit); err != nil {
		return m.observeErr("admin_credit", err)
	}
	m.metrics.SetOutstanding(m.ledger.Totals().Outstanding)
	m.emit(AdminCreditedEvent(user, amount.String()))
	m.logger.Info("admin credit applied", "user", user.String(), "amount", amount.String())
	return nil
}

// RegisterPersona binds a persona hash to the user.
func (m *Marketplace) RegisterPersona(ctx context.Context, user crypto.Address, hash coreid.Hash) error {
	if err := common.Guard(m.pauses, common.ModuleIdentity); err != nil {
		return err
	}
	return m.observeErr("register_persona", m.identity.RegisterPersona(ctx, user, hash))
}

// RemovePersona clears the user's persona binding.
func (m *Marketplace) RemovePersona(ctx context.Context, user crypto.Address) error {
	if err := common.Guard(m.pauses, common.ModuleIdentity); err != nil {
		return err
	}
	return m.observeErr("remove_persona", m.identity.RemovePersona(ctx, user))
}

// UpdateReputation applies an operator adjustment to the user's score.
func (m *Marketplace) UpdateReputation(ctx context.Context, user crypto.Address, delta int64) (uint64, error) {
	if err := common.Guard(m.pauses, common.ModuleIdentity); err != nil {
		return 0, err
	}
	score, err := m.identity.UpdateReputation(ctx, user, delta)
	return score, m.observeErr("update_reputation", err)
}

// RegisterLink registers the promoter for a product.
func (m *Marketplace) RegisterLink(ctx context.Context, promoter crypto.Address, productID uint64) (*affiliate.Link, error) {
	if err := common.Guard(m.pauses, common.ModuleAffiliate); err != nil {
		return nil, err
	}
	link, err := m.affiliate.RegisterLink(ctx, promoter, productID)
	return link, m.observeErr("register_link", err)
}

// TrackReferral attributes a buyer's session to a promoter.
func (m *Marketplace) TrackReferral(ctx context.Context, buyer crypto.Address, productID uint64, promoter crypto.Address) error {
	if err := common.Guard(m.pauses, common.ModuleAffiliate); err != nil {
		return err
	}
	return m.observeErr("track_referral", m.affiliate.TrackReferral(ctx, buyer, productID, promoter))
}

// Product returns a listing.
func (m *Marketplace) Product(id uint64) (*catalog.Product, bool) { return m.catalog.Product(id) }

// ActiveProducts returns the active listings in id order.
func (m *Marketplace) ActiveProducts() []*catalog.Product { return m.catalog.ActiveProducts() }

// ProductsBySeller returns the seller's listings, active or not.
func (m *Marketplace) ProductsBySeller(seller crypto.Address) []*catalog.Product {
	return m.catalog.ProductsBySeller(seller)
}

// Balance returns the user's withdrawable balance.
func (m *Marketplace) Balance(user crypto.Address) *big.Int { return m.ledger.BalanceOf(user) }

// Reputation returns the user's reputation score.
func (m *Marketplace) Reputation(user crypto.Address) uint64 { return m.identity.ReputationOf(user) }

// PersonaHash returns the user's bound persona hash.
func (m *Marketplace) PersonaHash(user crypto.Address) (coreid.Hash, bool) {
	return m.identity.PersonaOf(user)
}

// AffiliateLink returns the link for a product and promoter.
func (m *Marketplace) AffiliateLink(productID uint64, promoter crypto.Address) (*affiliate.Link, bool) {
	return m.affiliate.Link(productID, promoter)
}

// AffiliateLinks returns every link the promoter registered.
func (m *Marketplace) AffiliateLinks(promoter crypto.Address) []*affiliate.Link {
	return m.affiliate.LinksByPromoter(promoter)
}

// Stats returns product, sale and volume totals.
func (m *Marketplace) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		TotalProducts: m.catalog.Count(),
		TotalSales:    m.sales,
		TotalVolume:   new(big.Int).Set(m.totals.Gross),
	}
}

// FeeTotals returns the accumulated split totals.
func (m *Marketplace) FeeTotals() fees.Totals {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.totals.Clone()
}

// Receipt returns the receipt with the given sequence number.
func (m *Marketplace) Receipt(sequence uint64) (*Receipt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := sort.Search(len(m.receipts), func(i int) bool { return m.receipts[i].Sequence >= sequence })
	if idx == len(m.receipts) || m.receipts[idx].Sequence != sequence {
		return nil, ErrReceiptNotFound
	}
	return m.receipts[idx].Clone(), nil
}

// Receipts returns up to limit receipts with sequence numbers >= from. A
// non-positive limit returns every remaining receipt.
func (m *Marketplace) Receipts(from uint64, limit int) []*Receipt {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := sort.Search(len(m.receipts), func(i int) bool { return m.receipts[i].Sequence >= from })
	remaining := m.receipts[idx:]
	if limit > 0 && len(remaining) > limit {
		remaining = remaining[:limit]
	}
	out := make([]*Receipt, 0, len(remaining))
	for _, r := range remaining {
		out = append(out, r.Clone())
	}
	return out
}
