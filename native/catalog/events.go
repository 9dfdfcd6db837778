package catalog

import (
	"strconv"

	"vitrine/core/events"
	"vitrine/core/types"
)

const (
	// EventTypeProductListed is emitted when a seller lists a product.
	EventTypeProductListed = "catalog.product.listed"
	// EventTypeProductUpdated is emitted when price or availability changes.
	EventTypeProductUpdated = "catalog.product.updated"
	// EventTypeProductSold is emitted when a sale is recorded.
	EventTypeProductSold = "catalog.product.sold"
)

// ProductListedEvent describes a new listing.
func ProductListedEvent(p *Product) *types.Event {
	return &types.Event{
		Type: EventTypeProductListed,
		Attributes: map[string]string{
			"productId":     strconv.FormatUint(p.ID, 10),
			"seller":        p.Seller.String(),
			"price":         p.Price.String(),
			"commissionBps": strconv.FormatUint(uint64(p.CommissionBps), 10),
			"metadataRef":   p.MetadataRef.String(),
		},
	}
}

// ProductUpdatedEvent describes a price or availability change.
func ProductUpdatedEvent(p *Product) *types.Event {
	return &types.Event{
		Type: EventTypeProductUpdated,
		Attributes: map[string]string{
			"productId": strconv.FormatUint(p.ID, 10),
			"price":     p.Price.String(),
			"active":    strconv.FormatBool(p.Active),
		},
	}
}

// ProductSoldEvent reports the updated sale count.
func ProductSoldEvent(p *Product) *types.Event {
	return &types.Event{
		Type: EventTypeProductSold,
		Attributes: map[string]string{
			"productId": strconv.FormatUint(p.ID, 10),
			"sales":     strconv.FormatUint(p.Sales, 10),
		},
	}
}

func wrap(evt *types.Event) events.Event { return events.Wrap(evt) }
