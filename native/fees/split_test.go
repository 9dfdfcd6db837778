package fees

import (
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestApplySplits(t *testing.T) {
	cases := []struct {
		name                       string
		price                      int64
		promoter                   bool
		commission                 uint16
		platform, promo, sellerAmt int64
	}{
		{name: "no promoter", price: 1_000_000, platform: 25_000, sellerAmt: 975_000},
		{name: "ten percent promoter", price: 1_000_000, promoter: true, commission: 1000, platform: 25_000, promo: 97_500, sellerAmt: 877_500},
		{name: "rounds down", price: 100, promoter: true, commission: 500, platform: 2, promo: 4, sellerAmt: 94},
		{name: "commission ignored without promoter", price: 100, commission: 500, platform: 2, sellerAmt: 98},
		{name: "dust price", price: 39, promoter: true, commission: 10_000, platform: 0, promo: 39, sellerAmt: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			split := Apply(DefaultPolicy(), SplitInput{Price: big.NewInt(tc.price), HasPromoter: tc.promoter, CommissionBps: tc.commission})
			if split.PlatformFee.Int64() != tc.platform {
				t.Fatalf("platform fee: expected %d got %s", tc.platform, split.PlatformFee)
			}
			if split.PromoterAmount.Int64() != tc.promo {
				t.Fatalf("promoter amount: expected %d got %s", tc.promo, split.PromoterAmount)
			}
			if split.SellerAmount.Int64() != tc.sellerAmt {
				t.Fatalf("seller amount: expected %d got %s", tc.sellerAmt, split.SellerAmount)
			}
		})
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := (Policy{PlatformFeeBps: 10_001}).Validate(); err == nil {
		t.Fatalf("expected error for fee above 100%%")
	}
	if err := DefaultPolicy().Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
}

func TestTotalsAccumulate(t *testing.T) {
	totals := NewTotals()
	price := big.NewInt(1_000_000)
	totals.Add(price, Apply(DefaultPolicy(), SplitInput{Price: price, HasPromoter: true, CommissionBps: 1000}))
	snapshot := totals.Clone()
	totals.Add(price, Apply(DefaultPolicy(), SplitInput{Price: price}))
	if snapshot.Gross.Int64() != 1_000_000 {
		t.Fatalf("clone aliased totals")
	}
	if totals.Platform.Int64() != 50_000 || totals.Commission.Int64() != 97_500 || totals.Seller.Int64() != 1_852_500 {
		t.Fatalf("unexpected totals %+v", totals)
	}
}

// Property: the three parts always sum to the price and never go negative.
func TestSplitConservesPrice(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	properties.Property("platform + promoter + seller == price", prop.ForAll(
		func(price uint64, feeBps uint32, commission uint16, promoter bool) bool {
			policy := Policy{PlatformFeeBps: feeBps % (BpsDenominator + 1)}
			p := new(big.Int).SetUint64(price)
			split := Apply(policy, SplitInput{Price: p, HasPromoter: promoter, CommissionBps: commission % (BpsDenominator + 1)})
			if split.PlatformFee.Sign() < 0 || split.PromoterAmount.Sign() < 0 || split.SellerAmount.Sign() < 0 {
				return false
			}
			sum := new(big.Int).Add(split.PlatformFee, split.PromoterAmount)
			sum.Add(sum, split.SellerAmount)
			return sum.Cmp(p) == 0
		},
		gen.UInt64(),
		gen.UInt32(),
		gen.UInt16(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
