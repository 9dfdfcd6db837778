package affiliate

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
	"vitrine/native/catalog"
	"vitrine/native/common"

	coreerrors "vitrine/core/errors"
)

var (
	ErrInsufficientReputation = coreerrors.New(coreerrors.KindAuthorization, "affiliate: insufficient reputation")
	ErrProductNotFound        = coreerrors.New(coreerrors.KindNotFound, "affiliate: product not found")
	ErrAlreadyLinked          = coreerrors.New(coreerrors.KindConflict, "affiliate: link already registered")
	ErrLinkNotFound           = coreerrors.New(coreerrors.KindNotFound, "affiliate: link not found")
	ErrSelfReferral           = coreerrors.New(coreerrors.KindConflict, "affiliate: buyer cannot refer themselves")
	ErrInvalidAmount          = coreerrors.New(coreerrors.KindValidation, "affiliate: invalid amount")
	ErrTxClosed               = coreerrors.New(coreerrors.KindConflict, "affiliate: transaction already closed")
)

type productSource interface {
	Product(id uint64) (*catalog.Product, bool)
}

type reputationSource interface {
	ReputationOf(user crypto.Address) uint64
}

// Attribution owns affiliate links and tracked buyer sessions.
type Attribution struct {
	lock       *common.Lock
	mu         sync.RWMutex
	links      map[linkKey]*Link
	sessions   map[sessionKey]session
	params     Params
	products   productSource
	reputation reputationSource
	emitter    events.Emitter
	nowFn      func() int64
}

// New constructs an attribution book reading products and reputation from
// the supplied sources.
func New(params Params, products productSource, reputation reputationSource) *Attribution {
	return &Attribution{
		lock:       common.NewLock("affiliate", 0),
		links:      make(map[linkKey]*Link),
		sessions:   make(map[sessionKey]session),
		params:     params,
		products:   products,
		reputation: reputation,
		emitter:    events.NoopEmitter{},
		nowFn:      func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event sink.
func (a *Attribution) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		a.emitter = events.NoopEmitter{}
		return
	}
	a.emitter = emitter
}

// SetNowFunc overrides the clock used for session expiry.
func (a *Attribution) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	a.nowFn = now
}

// SetLockTimeout bounds writer lock acquisition.
func (a *Attribution) SetLockTimeout(timeout time.Duration) { a.lock.SetTimeout(timeout) }

// Begin acquires the writer lock and opens a transaction.
func (a *Attribution) Begin(ctx context.Context) (*Tx, error) {
	if err := a.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{att: a, links: make(map[linkKey]*Link), sessions: make(map[sessionKey]session)}, nil
}

// RegisterLink creates a link for promoter on productID, snapshotting the
// product's commission rate.
func (a *Attribution) RegisterLink(ctx context.Context, promoter crypto.Address, productID uint64) (*Link, error) {
	var link *Link
	err := a.update(ctx, func(tx *Tx) error {
		var err error
		link, err = tx.RegisterLink(promoter, productID)
		return err
	})
	return link, err
}

// TrackReferral attributes the buyer's session on productID to promoter.
func (a *Attribution) TrackReferral(ctx context.Context, buyer crypto.Address, productID uint64, promoter crypto.Address) error {
	return a.update(ctx, func(tx *Tx) error { return tx.TrackReferral(buyer, productID, promoter) })
}

// RecordCredit adds a credited sale to the link.
func (a *Attribution) RecordCredit(ctx context.Context, productID uint64, promoter crypto.Address, amount *big.Int) error {
	return a.update(ctx, func(tx *Tx) error { return tx.RecordCredit(productID, promoter, amount) })
}

func (a *Attribution) update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := a.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Link returns a copy of the link for the pair.
func (a *Attribution) Link(productID uint64, promoter crypto.Address) (*Link, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	link, ok := a.links[linkKey{productID: productID, promoter: promoter}]
	if !ok {
		return nil, false
	}
	return link.Clone(), true
}

// LinksByPromoter returns the promoter's links ordered by product id.
func (a *Attribution) LinksByPromoter(promoter crypto.Address) []*Link {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Link, 0)
	for key, link := range a.links {
		if key.promoter == promoter {
			out = append(out, link.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// Resolve returns the link the buyer's purchase should be attributed to.
func (a *Attribution) Resolve(productID uint64, buyer crypto.Address, referral *crypto.Address) (*Link, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.resolve(productID, buyer, referral, a.lookupLink, a.lookupSession)
}

func (a *Attribution) lookupLink(key linkKey) (*Link, bool) {
	link, ok := a.links[key]
	return link, ok
}

func (a *Attribution) lookupSession(key sessionKey) (session, bool) {
	s, ok := a.sessions[key]
	return s, ok
}

// resolve prefers an explicit referral and falls back to the tracked session.
// A promoter equal to the buyer never resolves.
func (a *Attribution) resolve(productID uint64, buyer crypto.Address, referral *crypto.Address,
	links func(linkKey) (*Link, bool), sessions func(sessionKey) (session, bool)) (*Link, bool) {
	if referral != nil && *referral != buyer {
		if link, ok := links(linkKey{productID: productID, promoter: *referral}); ok {
			return link.Clone(), true
		}
	}
	s, ok := sessions(sessionKey{buyer: buyer, productID: productID})
	if !ok || s.promoter == buyer || a.nowFn() >= s.expiresAt {
		return nil, false
	}
	link, ok := links(linkKey{productID: productID, promoter: s.promoter})
	if !ok {
		return nil, false
	}
	return link.Clone(), true
}

// PruneSessions drops expired sessions and returns how many were removed.
func (a *Attribution) PruneSessions(ctx context.Context) (int, error) {
	if err := a.lock.Acquire(ctx); err != nil {
		return 0, err
	}
	defer a.lock.Release()
	now := a.nowFn()
	a.mu.Lock()
	defer a.mu.Unlock()
	removed := 0
	for key, s := range a.sessions {
		if now >= s.expiresAt {
			delete(a.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// Tx buffers attribution writes until Commit.
type Tx struct {
	att      *Attribution
	links    map[linkKey]*Link
	sessions map[sessionKey]session
	events   []*types.Event
	closed   bool
	applied  bool
	replace  bool
}

func (tx *Tx) link(key linkKey) (*Link, bool) {
	if link, ok := tx.links[key]; ok {
		return link, true
	}
	link, ok := tx.att.links[key]
	return link, ok
}

func (tx *Tx) session(key sessionKey) (session, bool) {
	if s, ok := tx.sessions[key]; ok {
		return s, true
	}
	s, ok := tx.att.sessions[key]
	return s, ok
}

// Resolve returns the attributed link as seen by the transaction.
func (tx *Tx) Resolve(productID uint64, buyer crypto.Address, referral *crypto.Address) (*Link, bool) {
	return tx.att.resolve(productID, buyer, referral, tx.link, tx.session)
}

// RegisterLink creates a link within the transaction.
func (tx *Tx) RegisterLink(promoter crypto.Address, productID uint64) (*Link, error) {
	a := tx.att
	if a.reputation != nil && a.reputation.ReputationOf(promoter) < a.params.PromoterThreshold {
		return nil, ErrInsufficientReputation
	}
	var product *catalog.Product
	var ok bool
	if a.products != nil {
		product, ok = a.products.Product(productID)
	}
	if !ok {
		return nil, ErrProductNotFound
	}
	key := linkKey{productID: productID, promoter: promoter}
	if _, exists := tx.link(key); exists {
		return nil, ErrAlreadyLinked
	}
	link := &Link{
		ProductID:      productID,
		Promoter:       promoter,
		CommissionBps:  product.CommissionBps,
		CreditedAmount: big.NewInt(0),
		CreatedAt:      uint64(a.nowFn()),
	}
	tx.links[key] = link
	tx.events = append(tx.events, LinkRegisteredEvent(link))
	return link.Clone(), nil
}

// TrackReferral records a session attribution within the transaction.
func (tx *Tx) TrackReferral(buyer crypto.Address, productID uint64, promoter crypto.Address) error {
	if buyer == promoter {
		return ErrSelfReferral
	}
	if _, ok := tx.link(linkKey{productID: productID, promoter: promoter}); !ok {
		return ErrLinkNotFound
	}
	expiresAt := tx.att.nowFn() + int64(tx.att.params.AttributionWindow/time.Second)
	tx.sessions[sessionKey{buyer: buyer, productID: productID}] = session{promoter: promoter, expiresAt: expiresAt}
	tx.events = append(tx.events, ReferralTrackedEvent(buyer, productID, promoter, expiresAt))
	return nil
}

// RecordCredit adds a credited sale to the link within the transaction.
func (tx *Tx) RecordCredit(productID uint64, promoter crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	key := linkKey{productID: productID, promoter: promoter}
	current, ok := tx.link(key)
	if !ok {
		return ErrLinkNotFound
	}
	link, staged := tx.links[key]
	if !staged {
		link = current.Clone()
		tx.links[key] = link
	}
	link.CreditedSales++
	link.CreditedAmount.Add(link.CreditedAmount, amount)
	tx.events = append(tx.events, CommissionCreditedEvent(link, amount.String()))
	return nil
}

// Apply publishes the buffered writes but keeps the writer lock. Callers
// coordinating several aggregates apply each one before committing any.
func (tx *Tx) Apply() error {
	if tx.closed {
		return ErrTxClosed
	}
	if tx.applied {
		return nil
	}
	tx.applied = true
	a := tx.att
	a.mu.Lock()
	if tx.replace {
		a.links = make(map[linkKey]*Link, len(tx.links))
		a.sessions = make(map[sessionKey]session, len(tx.sessions))
	}
	for key, link := range tx.links {
		a.links[key] = link
	}
	for key, s := range tx.sessions {
		a.sessions[key] = s
	}
	a.mu.Unlock()
	return nil
}

// Commit applies the buffered writes if needed, releases the writer lock and
// emits the buffered events.
func (tx *Tx) Commit() error {
	if err := tx.Apply(); err != nil {
		return err
	}
	tx.closed = true
	tx.att.lock.Release()
	for _, evt := range tx.events {
		tx.att.emitter.Emit(wrap(evt))
	}
	return nil
}

// Rollback discards the buffered writes and releases the writer lock.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.att.lock.Release()
}
