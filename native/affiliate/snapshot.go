package affiliate

import (
	"context"
	"sort"

	"vitrine/crypto"
)

// SessionRecord is the persisted form of a tracked referral.
type SessionRecord struct {
	Buyer     crypto.Address
	ProductID uint64
	Promoter  crypto.Address
	ExpiresAt uint64
}

// Snapshot is a consistent copy of the attribution book.
type Snapshot struct {
	Links    []Link
	Sessions []SessionRecord
}

// Snapshot returns links ordered by product then promoter, and unexpired
// sessions.
func (a *Attribution) Snapshot() Snapshot {
	now := a.nowFn()
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap := Snapshot{Links: make([]Link, 0, len(a.links))}
	for _, link := range a.links {
		snap.Links = append(snap.Links, *link.Clone())
	}
	sort.Slice(snap.Links, func(i, j int) bool {
		if snap.Links[i].ProductID != snap.Links[j].ProductID {
			return snap.Links[i].ProductID < snap.Links[j].ProductID
		}
		return string(snap.Links[i].Promoter[:]) < string(snap.Links[j].Promoter[:])
	})
	for key, s := range a.sessions {
		if now >= s.expiresAt {
			continue
		}
		snap.Sessions = append(snap.Sessions, SessionRecord{
			Buyer:     key.buyer,
			ProductID: key.productID,
			Promoter:  s.promoter,
			ExpiresAt: uint64(s.expiresAt),
		})
	}
	sort.Slice(snap.Sessions, func(i, j int) bool {
		if snap.Sessions[i].ProductID != snap.Sessions[j].ProductID {
			return snap.Sessions[i].ProductID < snap.Sessions[j].ProductID
		}
		return string(snap.Sessions[i].Buyer[:]) < string(snap.Sessions[j].Buyer[:])
	})
	return snap
}

// Restore replaces the attribution book with snap.
func (a *Attribution) Restore(ctx context.Context, snap Snapshot) error {
	return a.update(ctx, func(tx *Tx) error { return tx.Restore(snap) })
}

// Restore stages a full replacement of links and sessions.
func (tx *Tx) Restore(snap Snapshot) error {
	links := make(map[linkKey]*Link, len(snap.Links))
	for i := range snap.Links {
		link := snap.Links[i].Clone()
		links[linkKey{productID: link.ProductID, promoter: link.Promoter}] = link
	}
	sessions := make(map[sessionKey]session, len(snap.Sessions))
	for _, rec := range snap.Sessions {
		sessions[sessionKey{buyer: rec.Buyer, productID: rec.ProductID}] = session{
			promoter:  rec.Promoter,
			expiresAt: int64(rec.ExpiresAt),
		}
	}
	tx.links = links
	tx.sessions = sessions
	tx.events = nil
	tx.replace = true
	return nil
}
