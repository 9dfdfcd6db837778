package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: balances plus everything paid out always equals everything
// credited.
func TestConservationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	reasons := []Reason{ReasonSaleProceeds, ReasonPlatformFee, ReasonAffiliateCommission, ReasonAdminCredit}

	properties.Property("sum(balances) + paid out == credited", prop.ForAll(
		func(ops []uint32) bool {
			led := New()
			ctx := context.Background()
			credited := new(big.Int)
			withdrawn := new(big.Int)
			for _, op := range ops {
				user := addr(byte(op % 4))
				amount := big.NewInt(int64(op >> 8))
				switch (op >> 2) % 3 {
				case 0:
					if err := led.Credit(ctx, user, amount, reasons[op%4]); err == nil {
						credited.Add(credited, amount)
					}
				case 1:
					if out, err := led.Withdraw(ctx, user); err == nil {
						withdrawn.Add(withdrawn, out)
					}
				default:
					if err := led.Debit(ctx, user, amount); err == nil {
						withdrawn.Add(withdrawn, amount)
					}
				}
				if led.Verify() != nil {
					return false
				}
			}
			sum := new(big.Int)
			for i := byte(0); i < 4; i++ {
				sum.Add(sum, led.BalanceOf(addr(i)))
			}
			sum.Add(sum, withdrawn)
			totals := led.Totals()
			return sum.Cmp(credited) == 0 && totals.Credited.Cmp(credited) == 0 && totals.PaidOut.Cmp(withdrawn) == 0
		},
		gen.SliceOf(gen.UInt32()),
	))

	properties.TestingRun(t)
}
