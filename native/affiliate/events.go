package affiliate

import (
	"strconv"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
)

const (
	// EventTypeLinkRegistered is emitted when a promoter links to a product.
	EventTypeLinkRegistered = "affiliate.link.registered"
	// EventTypeReferralTracked is emitted when a buyer session is attributed.
	EventTypeReferralTracked = "affiliate.referral.tracked"
	// EventTypeCommissionCredited is emitted when a sale is credited to a link.
	EventTypeCommissionCredited = "affiliate.commission.credited"
)

// LinkRegisteredEvent describes a new affiliate link.
func LinkRegisteredEvent(link *Link) *types.Event {
	return &types.Event{
		Type: EventTypeLinkRegistered,
		Attributes: map[string]string{
			"productId":     strconv.FormatUint(link.ProductID, 10),
			"promoter":      link.Promoter.String(),
			"commissionBps": strconv.FormatUint(uint64(link.CommissionBps), 10),
		},
	}
}

// ReferralTrackedEvent describes a session attribution.
func ReferralTrackedEvent(buyer crypto.Address, productID uint64, promoter crypto.Address, expiresAt int64) *types.Event {
	return &types.Event{
		Type: EventTypeReferralTracked,
		Attributes: map[string]string{
			"buyer":     buyer.String(),
			"productId": strconv.FormatUint(productID, 10),
			"promoter":  promoter.String(),
			"expiresAt": strconv.FormatInt(expiresAt, 10),
		},
	}
}

// CommissionCreditedEvent reports a credited sale and the link's totals.
func CommissionCreditedEvent(link *Link, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeCommissionCredited,
		Attributes: map[string]string{
			"productId":      strconv.FormatUint(link.ProductID, 10),
			"promoter":       link.Promoter.String(),
			"amount":         amount,
			"creditedSales":  strconv.FormatUint(link.CreditedSales, 10),
			"creditedAmount": link.CreditedAmount.String(),
		},
	}
}

func wrap(evt *types.Event) events.Event { return events.Wrap(evt) }
