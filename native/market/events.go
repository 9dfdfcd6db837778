package market

import (
	"strconv"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
)

const (
	// EventTypePurchaseCompleted is emitted once per receipt, after every
	// aggregate change of the purchase has been published.
	EventTypePurchaseCompleted = "market.purchase.completed"
	// EventTypeAdminCredited is emitted when an operator credits a balance.
	EventTypeAdminCredited = "market.admin.credited"
)

// PurchaseCompletedEvent flattens a receipt for subscribers.
func PurchaseCompletedEvent(r *Receipt) *types.Event {
	attrs := map[string]string{
		"sequence":       strconv.FormatUint(r.Sequence, 10),
		"productId":      strconv.FormatUint(r.ProductID, 10),
		"buyer":          r.Buyer.String(),
		"seller":         r.Seller.String(),
		"pricePaid":      r.PricePaid.String(),
		"platformFee":    r.PlatformFee.String(),
		"sellerAmount":   r.SellerAmount.String(),
		"promoterAmount": r.PromoterAmount.String(),
		"change":         r.Change.String(),
	}
	if r.Promoter != nil {
		attrs["promoter"] = r.Promoter.String()
	}
	return &types.Event{Type: EventTypePurchaseCompleted, Attributes: attrs}
}

// AdminCreditedEvent records an operator credit.
func AdminCreditedEvent(user crypto.Address, amount string) *types.Event {
	return &types.Event{
		Type: EventTypeAdminCredited,
		Attributes: map[string]string{
			"user":   user.String(),
			"amount": amount,
		},
	}
}

func wrap(evt *types.Event) events.Event { return events.Wrap(evt) }
