package ledger

import (
	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
)

const (
	// EventTypeCredited is emitted for every applied credit.
	EventTypeCredited = "ledger.credited"
	// EventTypeDebited is emitted for every applied debit.
	EventTypeDebited = "ledger.debited"
	// EventTypeWithdrawn is emitted when a balance is drained for payout.
	EventTypeWithdrawn = "ledger.withdrawn"
)

// CreditedEvent reports a credit and the resulting balance.
func CreditedEvent(user crypto.Address, amount string, reason Reason, balance string) *types.Event {
	return &types.Event{
		Type: EventTypeCredited,
		Attributes: map[string]string{
			"user":    user.String(),
			"amount":  amount,
			"reason":  string(reason),
			"balance": balance,
		},
	}
}

// DebitedEvent reports a debit and the resulting balance.
func DebitedEvent(user crypto.Address, amount string, balance string) *types.Event {
	return &types.Event{
		Type: EventTypeDebited,
		Attributes: map[string]string{
			"user":    user.String(),
			"amount":  amount,
			"balance": balance,
		},
	}
}

// WithdrawnEvent reports a drained balance.
func WithdrawnEvent(user crypto.Address, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeWithdrawn,
		Attributes: map[string]string{
			"user":   user.String(),
			"amount": amount,
		},
	}
}

func wrap(evt *types.Event) events.Event { return events.Wrap(evt) }
