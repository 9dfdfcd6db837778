package catalog

import (
	"math/big"

	"vitrine/core/types"
	"vitrine/crypto"
)

// MaxBps is the upper bound for commission rates (100%).
const MaxBps uint16 = 10_000

// Product is a listing owned by its seller. Commission is fixed at listing
// time; only price and the active flag change afterwards.
type Product struct {
	ID            uint64          `json:"id"`
	Seller        crypto.Address  `json:"seller"`
	Price         *big.Int        `json:"price"`
	CommissionBps uint16          `json:"commissionBps"`
	MetadataRef   types.ContentID `json:"metadataRef"`
	Active        bool            `json:"active"`
	Sales         uint64          `json:"sales"`
	ListedAt      uint64          `json:"listedAt"`
}

// Clone returns a deep copy of the product.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	out := *p
	if p.Price != nil {
		out.Price = new(big.Int).Set(p.Price)
	}
	return &out
}
