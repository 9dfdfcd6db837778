package ledger

import (
	"context"
	"math/big"
	"sort"

	"github.com/holiman/uint256"

	"vitrine/crypto"
)

// BalanceRecord is the persisted form of a single balance.
type BalanceRecord struct {
	User   crypto.Address
	Amount *big.Int
}

// Snapshot is a consistent copy of the ledger.
type Snapshot struct {
	Balances []BalanceRecord
	Credited *big.Int
	PaidOut  *big.Int
}

// Snapshot returns a copy of the ledger ordered by user. Zero balances are
// omitted.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	snap := Snapshot{
		Balances: make([]BalanceRecord, 0, len(l.balances)),
		Credited: l.credited.ToBig(),
		PaidOut:  l.paidOut.ToBig(),
	}
	for user, bal := range l.balances {
		if bal.IsZero() {
			continue
		}
		snap.Balances = append(snap.Balances, BalanceRecord{User: user, Amount: bal.ToBig()})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return string(snap.Balances[i].User[:]) < string(snap.Balances[j].User[:])
	})
	return snap
}

// Restore replaces the ledger contents with snap and verifies conservation.
func (l *Ledger) Restore(ctx context.Context, snap Snapshot) error {
	return l.update(ctx, func(tx *Tx) error { return tx.Restore(snap) })
}

// Restore stages a full replacement of the ledger after checking that the
// snapshot conserves value.
func (tx *Tx) Restore(snap Snapshot) error {
	balances := make(map[crypto.Address]*uint256.Int, len(snap.Balances))
	for _, rec := range snap.Balances {
		value, err := ParseAmount(rec.Amount)
		if err != nil {
			return err
		}
		balances[rec.User] = value
	}
	credited, overflow := uint256.FromBig(nonNil(snap.Credited))
	if overflow {
		return ErrInvalidAmount
	}
	paidOut, overflow := uint256.FromBig(nonNil(snap.PaidOut))
	if overflow {
		return ErrInvalidAmount
	}
	if err := checkConservation(balances, credited, paidOut); err != nil {
		return err
	}
	tx.balances = balances
	tx.credited.Set(credited)
	tx.paidOut.Set(paidOut)
	tx.events = nil
	tx.replace = true
	return nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
