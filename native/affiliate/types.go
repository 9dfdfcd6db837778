package affiliate

import (
	"math/big"
	"time"

	"vitrine/crypto"
)

const (
	// DefaultPromoterThreshold is the minimum reputation required to promote.
	DefaultPromoterThreshold uint64 = 10
	// DefaultAttributionWindow bounds how long a tracked referral stays valid.
	DefaultAttributionWindow = 7 * 24 * time.Hour
)

// Params configure promoter gating and session attribution.
type Params struct {
	PromoterThreshold uint64
	AttributionWindow time.Duration
}

// DefaultParams returns the production attribution rules.
func DefaultParams() Params {
	return Params{PromoterThreshold: DefaultPromoterThreshold, AttributionWindow: DefaultAttributionWindow}
}

// Link binds a promoter to a product. CommissionBps is copied from the
// product when the link is created and never changes.
type Link struct {
	ProductID      uint64         `json:"productId"`
	Promoter       crypto.Address `json:"promoter"`
	CommissionBps  uint16         `json:"commissionBps"`
	CreditedSales  uint64         `json:"creditedSales"`
	CreditedAmount *big.Int       `json:"creditedAmount"`
	CreatedAt      uint64         `json:"createdAt"`
}

// Clone returns a deep copy of the link.
func (l *Link) Clone() *Link {
	if l == nil {
		return nil
	}
	out := *l
	out.CreditedAmount = new(big.Int)
	if l.CreditedAmount != nil {
		out.CreditedAmount.Set(l.CreditedAmount)
	}
	return &out
}

type linkKey struct {
	productID uint64
	promoter  crypto.Address
}

type sessionKey struct {
	buyer     crypto.Address
	productID uint64
}

type session struct {
	promoter  crypto.Address
	expiresAt int64
}
