package catalog

import (
	"context"
	"fmt"
)

// Snapshot is a consistent copy of the catalog.
type Snapshot struct {
	Products []Product
	LastID   uint64
}

// Snapshot returns every listing in id order.
func (c *Catalog) Snapshot() Snapshot {
	all := c.filter(func(*Product) bool { return true })
	c.mu.RLock()
	lastID := c.lastID
	c.mu.RUnlock()
	snap := Snapshot{Products: make([]Product, 0, len(all)), LastID: lastID}
	for _, p := range all {
		snap.Products = append(snap.Products, *p)
	}
	return snap
}

// Restore replaces the catalog contents with snap.
func (c *Catalog) Restore(ctx context.Context, snap Snapshot) error {
	return c.update(ctx, func(tx *Tx) error { return tx.Restore(snap) })
}

// Restore stages a full replacement of the catalog.
func (tx *Tx) Restore(snap Snapshot) error {
	products := make(map[uint64]*Product, len(snap.Products))
	for i := range snap.Products {
		p := snap.Products[i].Clone()
		if p.ID == 0 || p.ID > snap.LastID {
			return fmt.Errorf("catalog: snapshot product id %d outside sequence %d", p.ID, snap.LastID)
		}
		if err := validatePrice(p.Price); err != nil {
			return fmt.Errorf("catalog: snapshot product %d: %w", p.ID, err)
		}
		products[p.ID] = p
	}
	tx.products = products
	tx.lastID = snap.LastID
	tx.events = nil
	tx.replace = true
	return nil
}
