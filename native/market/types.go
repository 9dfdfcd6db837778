package market

import (
	"context"
	"math/big"
	"time"

	"vitrine/crypto"
	"vitrine/native/fees"
	"vitrine/native/ledger"
)

const (
	// DefaultSellerThreshold is the reputation needed to list products. It
	// matches the base reputation so new users may sell.
	DefaultSellerThreshold uint64 = 10
	// DefaultSaleReputationReward is added to the seller's score per sale.
	DefaultSaleReputationReward int64 = 1
	// DefaultLockTimeout bounds lock acquisition for every operation.
	DefaultLockTimeout = 2 * time.Second
)

// Params configure the marketplace coordinator.
type Params struct {
	PlatformAccount      crypto.Address
	Fees                 fees.Policy
	SellerThreshold      uint64
	SaleReputationReward int64
	LockTimeout          time.Duration
}

// DefaultParams returns the production parameters for the supplied platform
// account.
func DefaultParams(platform crypto.Address) Params {
	return Params{
		PlatformAccount:      platform,
		Fees:                 fees.DefaultPolicy(),
		SellerThreshold:      DefaultSellerThreshold,
		SaleReputationReward: DefaultSaleReputationReward,
		LockTimeout:          DefaultLockTimeout,
	}
}

// PurchaseRequest describes a buyer's purchase. Referral carries the
// promoter named by the calling layer's referral token, if any.
type PurchaseRequest struct {
	Buyer     crypto.Address
	ProductID uint64
	Payment   *big.Int
	Referral  *crypto.Address
}

// Receipt is the immutable record of a completed purchase.
type Receipt struct {
	Sequence       uint64          `json:"sequence"`
	ProductID      uint64          `json:"productId"`
	Buyer          crypto.Address  `json:"buyer"`
	Seller         crypto.Address  `json:"seller"`
	Promoter       *crypto.Address `json:"promoter,omitempty"`
	PricePaid      *big.Int        `json:"pricePaid"`
	PlatformFee    *big.Int        `json:"platformFee"`
	SellerAmount   *big.Int        `json:"sellerAmount"`
	PromoterAmount *big.Int        `json:"promoterAmount"`
	Change         *big.Int        `json:"change"`
	Timestamp      int64           `json:"timestamp"`
}

// Clone returns a deep copy of the receipt.
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	out := *r
	if r.Promoter != nil {
		promoter := *r.Promoter
		out.Promoter = &promoter
	}
	out.PricePaid = cloneBig(r.PricePaid)
	out.PlatformFee = cloneBig(r.PlatformFee)
	out.SellerAmount = cloneBig(r.SellerAmount)
	out.PromoterAmount = cloneBig(r.PromoterAmount)
	out.Change = cloneBig(r.Change)
	return &out
}

// Stats summarises marketplace activity.
type Stats struct {
	TotalProducts uint64   `json:"totalProducts"`
	TotalSales    uint64   `json:"totalSales"`
	TotalVolume   *big.Int `json:"totalVolume"`
}

// EscrowHandle identifies funds held by the payment rail for one purchase.
type EscrowHandle string

// Split is a single payee instruction passed to the payment rail.
type Split struct {
	Payee  crypto.Address
	Amount *big.Int
	Reason ledger.Reason
}

// Rail moves funds outside the marketplace. Settlement atomicity is the
// rail's responsibility.
type Rail interface {
	ValidateAndEscrow(ctx context.Context, payer crypto.Address, amount *big.Int) (EscrowHandle, error)
	Settle(ctx context.Context, handle EscrowHandle, splits []Split) error
	Refund(ctx context.Context, handle EscrowHandle, amount *big.Int) error
}

// RailAccount is one account of a rail that keeps its own book.
type RailAccount struct {
	Address crypto.Address
	Funded  bool
	Funds   *big.Int
	Settled *big.Int
}

// BookKeeper is implemented by rails whose accounts are persisted with the
// marketplace snapshot.
type BookKeeper interface {
	Book() []RailAccount
	RestoreBook(accounts []RailAccount) error
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
