package fees

import (
	"fmt"
	"math/big"
)

const (
	// BpsDenominator expresses 100% in basis points.
	BpsDenominator = 10_000
	// DefaultPlatformFeeBps is the platform's cut of every sale (2.5%).
	DefaultPlatformFeeBps uint32 = 250
)

// Policy configures the sale split.
type Policy struct {
	PlatformFeeBps uint32
}

// DefaultPolicy returns the production fee policy.
func DefaultPolicy() Policy { return Policy{PlatformFeeBps: DefaultPlatformFeeBps} }

// Validate ensures the configured rate does not exceed 100%.
func (p Policy) Validate() error {
	if p.PlatformFeeBps > BpsDenominator {
		return fmt.Errorf("fees: platform fee %d bps exceeds %d", p.PlatformFeeBps, BpsDenominator)
	}
	return nil
}

// SplitInput captures a sale to divide between platform, promoter and seller.
// CommissionBps applies only when HasPromoter is set.
type SplitInput struct {
	Price         *big.Int
	HasPromoter   bool
	CommissionBps uint16
}

// Split is the three-way division of a sale price. The parts always sum to
// the price.
type Split struct {
	PlatformFee    *big.Int
	PromoterAmount *big.Int
	SellerAmount   *big.Int
}

// Apply divides the price using truncating integer division at each step:
//
//	platform = price * feeBps / 10000
//	promoter = (price - platform) * commissionBps / 10000
//	seller   = price - platform - promoter
func Apply(policy Policy, input SplitInput) Split {
	price := big.NewInt(0)
	if input.Price != nil && input.Price.Sign() > 0 {
		price.Set(input.Price)
	}
	platform := bps(price, uint64(policy.PlatformFeeBps))
	if platform.Cmp(price) > 0 {
		platform.Set(price)
	}
	remainder := new(big.Int).Sub(price, platform)
	promoter := big.NewInt(0)
	if input.HasPromoter && input.CommissionBps > 0 {
		promoter = bps(remainder, uint64(input.CommissionBps))
		if promoter.Cmp(remainder) > 0 {
			promoter.Set(remainder)
		}
	}
	seller := new(big.Int).Sub(remainder, promoter)
	return Split{PlatformFee: platform, PromoterAmount: promoter, SellerAmount: seller}
}

func bps(amount *big.Int, rate uint64) *big.Int {
	out := new(big.Int).Mul(amount, new(big.Int).SetUint64(rate))
	return out.Quo(out, big.NewInt(BpsDenominator))
}

// Totals aggregates fee accounting across sales.
type Totals struct {
	Gross      *big.Int
	Platform   *big.Int
	Commission *big.Int
	Seller     *big.Int
}

// NewTotals returns zeroed totals.
func NewTotals() Totals {
	return Totals{Gross: big.NewInt(0), Platform: big.NewInt(0), Commission: big.NewInt(0), Seller: big.NewInt(0)}
}

// Add accumulates a split into the totals.
func (t *Totals) Add(price *big.Int, s Split) {
	t.Gross.Add(t.Gross, price)
	t.Platform.Add(t.Platform, s.PlatformFee)
	t.Commission.Add(t.Commission, s.PromoterAmount)
	t.Seller.Add(t.Seller, s.SellerAmount)
}

// Clone returns a copy of the totals structure with duplicated big.Int values.
func (t Totals) Clone() Totals {
	return Totals{
		Gross:      new(big.Int).Set(t.Gross),
		Platform:   new(big.Int).Set(t.Platform),
		Commission: new(big.Int).Set(t.Commission),
		Seller:     new(big.Int).Set(t.Seller),
	}
}
