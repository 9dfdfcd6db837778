package catalog

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
	"vitrine/native/common"

	coreerrors "vitrine/core/errors"
)

var (
	ErrInvalidPrice      = coreerrors.New(coreerrors.KindValidation, "catalog: price must be positive")
	ErrInvalidCommission = coreerrors.New(coreerrors.KindValidation, "catalog: commission exceeds 10000 bps")
	ErrNotFound          = coreerrors.New(coreerrors.KindNotFound, "catalog: product not found")
	ErrNotSeller         = coreerrors.New(coreerrors.KindAuthorization, "catalog: caller is not the seller")
	ErrInactive          = coreerrors.New(coreerrors.KindConflict, "catalog: product inactive")
	ErrTxClosed          = coreerrors.New(coreerrors.KindConflict, "catalog: transaction already closed")
)

// maxPriceBits caps prices at 2^128-1.
const maxPriceBits = 128

// Catalog owns product listings.
type Catalog struct {
	lock     *common.Lock
	mu       sync.RWMutex
	products map[uint64]*Product
	lastID   uint64
	emitter  events.Emitter
	nowFn    func() int64
}

// New constructs an empty catalog.
func New() *Catalog {
	return &Catalog{
		lock:     common.NewLock("catalog", 0),
		products: make(map[uint64]*Product),
		emitter:  events.NoopEmitter{},
		nowFn:    func() int64 { return time.Now().Unix() },
	}
}

// SetEmitter configures the event sink.
func (c *Catalog) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

// SetNowFunc overrides the listing clock.
func (c *Catalog) SetNowFunc(now func() int64) {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	c.nowFn = now
}

// SetLockTimeout bounds writer lock acquisition.
func (c *Catalog) SetLockTimeout(timeout time.Duration) { c.lock.SetTimeout(timeout) }

// Begin acquires the writer lock and opens a transaction.
func (c *Catalog) Begin(ctx context.Context) (*Tx, error) {
	if err := c.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{cat: c, products: make(map[uint64]*Product), lastID: c.lastID}, nil
}

// ListProduct registers a new listing and returns its id.
func (c *Catalog) ListProduct(ctx context.Context, seller crypto.Address, price *big.Int, commissionBps uint16, metadataRef types.ContentID) (uint64, error) {
	var id uint64
	err := c.update(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.ListProduct(seller, price, commissionBps, metadataRef)
		return err
	})
	return id, err
}

// UpdateProduct changes price and availability on behalf of the seller.
func (c *Catalog) UpdateProduct(ctx context.Context, caller crypto.Address, id uint64, newPrice *big.Int, active bool) error {
	return c.update(ctx, func(tx *Tx) error { return tx.UpdateProduct(caller, id, newPrice, active) })
}

// RecordSale increments the sale counter of an active product.
func (c *Catalog) RecordSale(ctx context.Context, id uint64) error {
	return c.update(ctx, func(tx *Tx) error { return tx.RecordSale(id) })
}

func (c *Catalog) update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Product returns a copy of the listing.
func (c *Catalog) Product(id uint64) (*Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.products[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

// ActiveProducts returns the active listings in id order.
func (c *Catalog) ActiveProducts() []*Product {
	return c.filter(func(p *Product) bool { return p.Active })
}

// ProductsBySeller returns the seller's listings in id order.
func (c *Catalog) ProductsBySeller(seller crypto.Address) []*Product {
	return c.filter(func(p *Product) bool { return p.Seller == seller })
}

func (c *Catalog) filter(keep func(*Product) bool) []*Product {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Product, 0)
	for _, p := range c.products {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of products ever listed.
func (c *Catalog) Count() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastID
}

// Tx buffers catalog writes until Commit.
type Tx struct {
	cat      *Catalog
	products map[uint64]*Product
	lastID   uint64
	events   []*types.Event
	closed   bool
	applied  bool
	replace  bool
}

func (tx *Tx) product(id uint64) (*Product, bool) {
	if p, ok := tx.products[id]; ok {
		return p, true
	}
	base, ok := tx.cat.products[id]
	if !ok {
		return nil, false
	}
	p := base.Clone()
	tx.products[id] = p
	return p, true
}

// Product returns a copy of the listing as seen by the transaction.
func (tx *Tx) Product(id uint64) (*Product, bool) {
	if p, ok := tx.products[id]; ok {
		return p.Clone(), true
	}
	base, ok := tx.cat.products[id]
	if !ok {
		return nil, false
	}
	return base.Clone(), true
}

// ListProduct registers a listing within the transaction.
func (tx *Tx) ListProduct(seller crypto.Address, price *big.Int, commissionBps uint16, metadataRef types.ContentID) (uint64, error) {
	if err := validatePrice(price); err != nil {
		return 0, err
	}
	if commissionBps > MaxBps {
		return 0, ErrInvalidCommission
	}
	tx.lastID++
	p := &Product{
		ID:            tx.lastID,
		Seller:        seller,
		Price:         new(big.Int).Set(price),
		CommissionBps: commissionBps,
		MetadataRef:   metadataRef,
		Active:        true,
		ListedAt:      uint64(tx.cat.nowFn()),
	}
	tx.products[p.ID] = p
	tx.events = append(tx.events, ProductListedEvent(p))
	return p.ID, nil
}

// UpdateProduct changes price and availability within the transaction.
func (tx *Tx) UpdateProduct(caller crypto.Address, id uint64, newPrice *big.Int, active bool) error {
	current, ok := tx.Product(id)
	if !ok {
		return ErrNotFound
	}
	if current.Seller != caller {
		return ErrNotSeller
	}
	if err := validatePrice(newPrice); err != nil {
		return err
	}
	p, _ := tx.product(id)
	p.Price = new(big.Int).Set(newPrice)
	p.Active = active
	tx.events = append(tx.events, ProductUpdatedEvent(p))
	return nil
}

// RecordSale increments the sale counter within the transaction. Inactive
// products are rejected here and nowhere else.
func (tx *Tx) RecordSale(id uint64) error {
	current, ok := tx.Product(id)
	if !ok {
		return ErrNotFound
	}
	if !current.Active {
		return ErrInactive
	}
	p, _ := tx.product(id)
	p.Sales++
	tx.events = append(tx.events, ProductSoldEvent(p))
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
	c := tx.cat
	c.mu.Lock()
	if tx.replace {
		c.products = make(map[uint64]*Product, len(tx.products))
	}
	for id, p := range tx.products {
		c.products[id] = p
	}
	c.lastID = tx.lastID
	c.mu.Unlock()
	return nil
}

// Commit applies the buffered writes if needed, releases the writer lock and
// emits the buffered events.
func (tx *Tx) Commit() error {
	if err := tx.Apply(); err != nil {
		return err
	}
	tx.closed = true
	tx.cat.lock.Release()
	for _, evt := range tx.events {
		tx.cat.emitter.Emit(wrap(evt))
	}
	return nil
}

// Rollback discards the buffered writes and releases the writer lock.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.cat.lock.Release()
}

func validatePrice(price *big.Int) error {
	if price == nil || price.Sign() <= 0 || price.BitLen() > maxPriceBits {
		return ErrInvalidPrice
	}
	return nil
}
