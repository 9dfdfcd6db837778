package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
	"vitrine/native/common"

	coreerrors "vitrine/core/errors"
)

// Reason tags a credit for auditors.
type Reason string

const (
	ReasonSaleProceeds        Reason = "sale_proceeds"
	ReasonPlatformFee         Reason = "platform_fee"
	ReasonAffiliateCommission Reason = "affiliate_commission"
	ReasonAdminCredit         Reason = "admin_credit"
)

// Valid reports whether r is a known credit reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonSaleProceeds, ReasonPlatformFee, ReasonAffiliateCommission, ReasonAdminCredit:
		return true
	}
	return false
}

var (
	ErrInvalidAmount       = coreerrors.New(coreerrors.KindValidation, "ledger: invalid amount")
	ErrInvalidReason       = coreerrors.New(coreerrors.KindValidation, "ledger: unknown credit reason")
	ErrInsufficientBalance = coreerrors.New(coreerrors.KindResource, "ledger: insufficient balance")
	ErrTxClosed            = coreerrors.New(coreerrors.KindConflict, "ledger: transaction already closed")
	// ErrConservation marks a broken balance invariant. It indicates a logic
	// bug rather than a caller error.
	ErrConservation = coreerrors.New(coreerrors.KindUnknown, "ledger: conservation violated")
)

// MaxAmount is the largest representable balance (2^128-1).
var MaxAmount = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 128), uint256.NewInt(1))

// Totals summarises ledger flows.
type Totals struct {
	Credited    *big.Int `json:"credited"`
	PaidOut     *big.Int `json:"paidOut"`
	Outstanding *big.Int `json:"outstanding"`
}

// Ledger owns withdrawable balances.
type Ledger struct {
	lock     *common.Lock
	mu       sync.RWMutex
	balances map[crypto.Address]*uint256.Int
	credited uint256.Int
	paidOut  uint256.Int
	emitter  events.Emitter
}

// New constructs an empty ledger.
func New() *Ledger {
	return &Ledger{
		lock:     common.NewLock("ledger", 0),
		balances: make(map[crypto.Address]*uint256.Int),
		emitter:  events.NoopEmitter{},
	}
}

// SetEmitter configures the event sink.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// SetLockTimeout bounds writer lock acquisition.
func (l *Ledger) SetLockTimeout(timeout time.Duration) { l.lock.SetTimeout(timeout) }

// ParseAmount converts a big integer into the ledger representation,
// rejecting negative values and values above MaxAmount. Nil is zero.
func ParseAmount(amount *big.Int) (*uint256.Int, error) {
	if amount == nil {
		return new(uint256.Int), nil
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative", ErrInvalidAmount)
	}
	value, overflow := uint256.FromBig(amount)
	if overflow || value.Gt(MaxAmount) {
		return nil, fmt.Errorf("%w: exceeds maximum", ErrInvalidAmount)
	}
	return value, nil
}

// Begin acquires the writer lock and opens a transaction.
func (l *Ledger) Begin(ctx context.Context) (*Tx, error) {
	if err := l.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	tx := &Tx{led: l, balances: make(map[crypto.Address]*uint256.Int)}
	tx.credited.Set(&l.credited)
	tx.paidOut.Set(&l.paidOut)
	return tx, nil
}

// Credit adds amount to user's balance.
func (l *Ledger) Credit(ctx context.Context, user crypto.Address, amount *big.Int, reason Reason) error {
	return l.update(ctx, func(tx *Tx) error { return tx.Credit(user, amount, reason) })
}

// Debit subtracts amount from user's balance.
func (l *Ledger) Debit(ctx context.Context, user crypto.Address, amount *big.Int) error {
	return l.update(ctx, func(tx *Tx) error { return tx.Debit(user, amount) })
}

// Withdraw drains user's balance and returns the amount for the payment rail.
func (l *Ledger) Withdraw(ctx context.Context, user crypto.Address) (*big.Int, error) {
	var out *big.Int
	err := l.update(ctx, func(tx *Tx) error {
		amount, err := tx.Withdraw(user)
		out = amount
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (l *Ledger) update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := l.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// BalanceOf returns the user's balance; unknown users hold zero.
func (l *Ledger) BalanceOf(user crypto.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if bal, ok := l.balances[user]; ok {
		return bal.ToBig()
	}
	return big.NewInt(0)
}

// Totals returns the cumulative credited and paid-out amounts.
func (l *Ledger) Totals() Totals {
	l.mu.RLock()
	defer l.mu.RUnlock()
	outstanding := new(uint256.Int).Sub(&l.credited, &l.paidOut)
	return Totals{
		Credited:    l.credited.ToBig(),
		PaidOut:     l.paidOut.ToBig(),
		Outstanding: outstanding.ToBig(),
	}
}

// Verify recomputes the sum of balances and checks it against the credited
// and paid-out totals.
func (l *Ledger) Verify() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return checkConservation(l.balances, &l.credited, &l.paidOut)
}

func checkConservation(balances map[crypto.Address]*uint256.Int, credited, paidOut *uint256.Int) error {
	sum := new(uint256.Int)
	for _, bal := range balances {
		if bal.Gt(MaxAmount) {
			return fmt.Errorf("%w: balance above maximum", ErrConservation)
		}
		sum.Add(sum, bal)
	}
	sum.Add(sum, paidOut)
	if !sum.Eq(credited) {
		return fmt.Errorf("%w: balances+paid out %s != credited %s", ErrConservation, sum.Dec(), credited.Dec())
	}
	return nil
}

// MustVerify panics when the conservation invariant is broken.
func (l *Ledger) MustVerify() {
	if err := l.Verify(); err != nil {
		panic(err)
	}
}

// Tx buffers ledger writes until Commit.
type Tx struct {
	led      *Ledger
	balances map[crypto.Address]*uint256.Int
	credited uint256.Int
	paidOut  uint256.Int
	events   []*types.Event
	closed   bool
	applied  bool
	replace  bool
}

func (tx *Tx) balance(user crypto.Address) *uint256.Int {
	if bal, ok := tx.balances[user]; ok {
		return bal
	}
	bal := new(uint256.Int)
	if base, ok := tx.led.balances[user]; ok {
		bal.Set(base)
	}
	tx.balances[user] = bal
	return bal
}

// BalanceOf reads the balance as seen by the transaction.
func (tx *Tx) BalanceOf(user crypto.Address) *big.Int {
	if bal, ok := tx.balances[user]; ok {
		return bal.ToBig()
	}
	if bal, ok := tx.led.balances[user]; ok {
		return bal.ToBig()
	}
	return big.NewInt(0)
}

// Credit adds amount to user's balance, saturating at MaxAmount. Only the
// applied portion counts towards the credited total. Zero credits are
// ignored.
func (tx *Tx) Credit(user crypto.Address, amount *big.Int, reason Reason) error {
	if !reason.Valid() {
		return ErrInvalidReason
	}
	value, err := ParseAmount(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	bal := tx.balance(user)
	headroom := new(uint256.Int).Sub(MaxAmount, bal)
	applied := value
	if value.Gt(headroom) {
		applied = headroom
	}
	bal.Add(bal, applied)
	tx.credited.Add(&tx.credited, applied)
	tx.events = append(tx.events, CreditedEvent(user, applied.Dec(), reason, bal.Dec()))
	return nil
}

// Debit subtracts amount from user's balance.
func (tx *Tx) Debit(user crypto.Address, amount *big.Int) error {
	value, err := ParseAmount(amount)
	if err != nil {
		return err
	}
	if value.IsZero() {
		return nil
	}
	bal := tx.balance(user)
	if value.Gt(bal) {
		return ErrInsufficientBalance
	}
	bal.Sub(bal, value)
	tx.paidOut.Add(&tx.paidOut, value)
	tx.events = append(tx.events, DebitedEvent(user, value.Dec(), bal.Dec()))
	return nil
}

// Withdraw drains user's balance within the transaction.
func (tx *Tx) Withdraw(user crypto.Address) (*big.Int, error) {
	bal := tx.balance(user)
	if bal.IsZero() {
		return nil, ErrInsufficientBalance
	}
	amount := new(uint256.Int).Set(bal)
	bal.Clear()
	tx.paidOut.Add(&tx.paidOut, amount)
	tx.events = append(tx.events, WithdrawnEvent(user, amount.Dec()))
	return amount.ToBig(), nil
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
	l := tx.led
	l.mu.Lock()
	if tx.replace {
		l.balances = make(map[crypto.Address]*uint256.Int, len(tx.balances))
	}
	for user, bal := range tx.balances {
		l.balances[user] = bal
	}
	l.credited.Set(&tx.credited)
	l.paidOut.Set(&tx.paidOut)
	l.mu.Unlock()
	return nil
}

// Commit applies the buffered writes if needed, releases the writer lock and
// emits the buffered events.
func (tx *Tx) Commit() error {
	if err := tx.Apply(); err != nil {
		return err
	}
	tx.closed = true
	tx.led.lock.Release()
	for _, evt := range tx.events {
		tx.led.emitter.Emit(wrap(evt))
	}
	return nil
}

// Rollback discards the buffered writes and releases the writer lock.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.led.lock.Release()
}
