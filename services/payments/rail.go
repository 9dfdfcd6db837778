// Package payments provides the in-process payment rail used by the daemon
// and tests. Funds are tracked per account; each purchase escrows the payer's
// funds, settles the marketplace splits and refunds whatever remains.
package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/google/uuid"

	"vitrine/crypto"
	"vitrine/native/market"
)

// EscrowStatus tracks the lifecycle of one escrow.
type EscrowStatus uint8

const (
	EscrowFunded EscrowStatus = iota + 1
	EscrowSettled
	EscrowRefunded
)

func (s EscrowStatus) String() string {
	switch s {
	case EscrowFunded:
		return "funded"
	case EscrowSettled:
		return "settled"
	case EscrowRefunded:
		return "refunded"
	default:
		return "unknown"
	}
}

var (
	ErrInvalidAmount     = errors.New("payments: amount must be positive")
	ErrInsufficientFunds = errors.New("payments: insufficient funds")
	ErrEscrowNotFound    = errors.New("payments: escrow not found")
	ErrEscrowClosed      = errors.New("payments: escrow already refunded")
	ErrOverdrawn         = errors.New("payments: splits exceed escrowed amount")
)

type escrow struct {
	payer     crypto.Address
	remaining *big.Int
	status    EscrowStatus
}

// MemoryRail implements market.Rail against an in-memory account book.
// Accounts without an explicit funding are unlimited unless Strict is set.
type MemoryRail struct {
	mu       sync.Mutex
	strict   bool
	funds    map[crypto.Address]*big.Int
	settled  map[crypto.Address]*big.Int
	escrows  map[market.EscrowHandle]*escrow
	failNext error
}

var (
	_ market.Rail       = (*MemoryRail)(nil)
	_ market.BookKeeper = (*MemoryRail)(nil)
)

// NewMemoryRail returns an empty rail. With strict set, payers must be funded
// before they can escrow.
func NewMemoryRail(strict bool) *MemoryRail {
	return &MemoryRail{
		strict:  strict,
		funds:   make(map[crypto.Address]*big.Int),
		settled: make(map[crypto.Address]*big.Int),
		escrows: make(map[market.EscrowHandle]*escrow),
	}
}

// Fund adds amount to the spendable funds of addr.
func (r *MemoryRail) Fund(addr crypto.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.funds[addr]
	if current == nil {
		current = new(big.Int)
	}
	r.funds[addr] = new(big.Int).Add(current, amount)
	return nil
}

// Funds returns the spendable funds of addr.
func (r *MemoryRail) Funds(addr crypto.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyOrZero(r.funds[addr])
}

// Settled returns the total settled to addr across all escrows.
func (r *MemoryRail) Settled(addr crypto.Address) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyOrZero(r.settled[addr])
}

// Status reports the lifecycle state of an escrow.
func (r *MemoryRail) Status(handle market.EscrowHandle) (EscrowStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[handle]
	if !ok {
		return 0, false
	}
	return e.status, true
}

// FailNextSettlement makes the next Settle call return err. Used by operators
// rehearsing failure handling.
func (r *MemoryRail) FailNextSettlement(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = err
}

// ValidateAndEscrow moves amount from the payer into a fresh escrow.
func (r *MemoryRail) ValidateAndEscrow(ctx context.Context, payer crypto.Address, amount *big.Int) (market.EscrowHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if balance, funded := r.funds[payer]; funded || r.strict {
		if balance == nil || balance.Cmp(amount) < 0 {
			return "", fmt.Errorf("%w: payer %s", ErrInsufficientFunds, payer)
		}
		r.funds[payer] = new(big.Int).Sub(balance, amount)
	}
	handle := market.EscrowHandle(uuid.NewString())
	r.escrows[handle] = &escrow{payer: payer, remaining: new(big.Int).Set(amount), status: EscrowFunded}
	return handle, nil
}

// Settle pays each split out of the escrow. Either every split is paid or
// none is.
func (r *MemoryRail) Settle(ctx context.Context, handle market.EscrowHandle, splits []market.Split) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.failNext; err != nil {
		r.failNext = nil
		return err
	}
	e, ok := r.escrows[handle]
	if !ok {
		return ErrEscrowNotFound
	}
	if e.status == EscrowRefunded {
		return ErrEscrowClosed
	}
	total := new(big.Int)
	for _, split := range splits {
		if split.Amount == nil || split.Amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		total.Add(total, split.Amount)
	}
	if total.Cmp(e.remaining) > 0 {
		return ErrOverdrawn
	}
	for _, split := range splits {
		if split.Amount.Sign() == 0 {
			continue
		}
		current := r.settled[split.Payee]
		if current == nil {
			current = new(big.Int)
		}
		r.settled[split.Payee] = new(big.Int).Add(current, split.Amount)
	}
	e.remaining.Sub(e.remaining, total)
	e.status = EscrowSettled
	return nil
}

// Refund returns amount from the escrow to its payer. Refunding the full
// remaining balance closes the escrow.
func (r *MemoryRail) Refund(ctx context.Context, handle market.EscrowHandle, amount *big.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.escrows[handle]
	if !ok {
		return ErrEscrowNotFound
	}
	if amount.Cmp(e.remaining) > 0 {
		return ErrOverdrawn
	}
	e.remaining.Sub(e.remaining, amount)
	if current, funded := r.funds[e.payer]; funded || r.strict {
		r.funds[e.payer] = new(big.Int).Add(copyOrZero(current), amount)
	}
	if e.remaining.Sign() == 0 && e.status == EscrowFunded {
		e.status = EscrowRefunded
	}
	return nil
}

// Book returns every account holding funds or settlements, ordered by
// address. Value still sitting in an escrow is owed back to its payer and is
// reported as the payer's funds.
func (r *MemoryRail) Book() []market.RailAccount {
	r.mu.Lock()
	defer r.mu.Unlock()
	accounts := make(map[crypto.Address]*market.RailAccount)
	account := func(addr crypto.Address) *market.RailAccount {
		acct, ok := accounts[addr]
		if !ok {
			acct = &market.RailAccount{Address: addr, Funds: new(big.Int), Settled: new(big.Int)}
			accounts[addr] = acct
		}
		return acct
	}
	for addr, funds := range r.funds {
		acct := account(addr)
		acct.Funded = true
		acct.Funds.Add(acct.Funds, funds)
	}
	for addr, settled := range r.settled {
		acct := account(addr)
		acct.Settled.Add(acct.Settled, settled)
	}
	for _, e := range r.escrows {
		if e.remaining.Sign() == 0 {
			continue
		}
		if _, funded := r.funds[e.payer]; !funded && !r.strict {
			continue
		}
		acct := account(e.payer)
		acct.Funded = true
		acct.Funds.Add(acct.Funds, e.remaining)
	}
	out := make([]market.RailAccount, 0, len(accounts))
	for _, acct := range accounts {
		out = append(out, *acct)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Address[:], out[j].Address[:]) < 0
	})
	return out
}

// RestoreBook replaces every account and drops all escrows.
func (r *MemoryRail) RestoreBook(accounts []market.RailAccount) error {
	funds := make(map[crypto.Address]*big.Int)
	settled := make(map[crypto.Address]*big.Int)
	for _, acct := range accounts {
		if acct.Funds == nil || acct.Funds.Sign() < 0 || acct.Settled == nil || acct.Settled.Sign() < 0 {
			return fmt.Errorf("%w: account %s", ErrInvalidAmount, acct.Address)
		}
		if acct.Funded {
			funds[acct.Address] = new(big.Int).Set(acct.Funds)
		}
		if acct.Settled.Sign() > 0 {
			settled[acct.Address] = new(big.Int).Set(acct.Settled)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funds = funds
	r.settled = settled
	r.escrows = make(map[market.EscrowHandle]*escrow)
	return nil
}

func copyOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
