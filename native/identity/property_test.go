package identity

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: no two users are ever bound to the same persona hash, whatever the
// interleaving of register and remove calls.
func TestPersonaUniquenessProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("persona hashes stay unique", prop.ForAll(
		func(ops []uint16) bool {
			reg := NewRegistry(DefaultParams())
			ctx := context.Background()
			for _, op := range ops {
				user := addr(byte(op%6) + 1)
				if op&0x100 != 0 {
					_ = reg.RemovePersona(ctx, user)
				} else {
					_ = reg.RegisterPersona(ctx, user, hash(byte(op>>4)%5+1))
				}
				seen := make(map[string]bool)
				var bound uint64
				for i := byte(1); i <= 6; i++ {
					h, ok := reg.PersonaOf(addr(i))
					if !ok {
						continue
					}
					if seen[h.String()] {
						return false
					}
					seen[h.String()] = true
					bound++
					if owner, ok := reg.OwnerOf(h); !ok || owner != addr(i) {
						return false
					}
				}
				if reg.Stats().ActivePersonas != bound {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt16()),
	))

	properties.TestingRun(t)
}
