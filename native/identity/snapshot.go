package identity

import (
	"context"
	"sort"

	"vitrine/crypto"

	coreid "vitrine/core/identity"
)

// UserRecord is the persisted form of a User.
type UserRecord struct {
	Address        crypto.Address
	Bound          bool
	Persona        coreid.Hash
	Reputation     uint64
	Interactions   uint64
	EverRegistered bool
}

// Snapshot is a consistent copy of the registry.
type Snapshot struct {
	Users          []UserRecord
	TotalUsers     uint64
	TotalPersonas  uint64
	ActivePersonas uint64
}

// Snapshot returns a copy of the registry ordered by address.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		Users:          make([]UserRecord, 0, len(r.users)),
		TotalUsers:     r.stats.TotalUsers,
		TotalPersonas:  r.stats.TotalPersonas,
		ActivePersonas: r.stats.ActivePersonas,
	}
	for _, u := range r.users {
		hash, bound := u.Persona.Hash()
		snap.Users = append(snap.Users, UserRecord{
			Address:        u.Address,
			Bound:          bound,
			Persona:        hash,
			Reputation:     u.Reputation,
			Interactions:   u.Interactions,
			EverRegistered: u.EverRegistered,
		})
	}
	sort.Slice(snap.Users, func(i, j int) bool {
		return string(snap.Users[i].Address[:]) < string(snap.Users[j].Address[:])
	})
	return snap
}

// Restore replaces the registry contents with snap.
func (r *Registry) Restore(ctx context.Context, snap Snapshot) error {
	return r.update(ctx, func(tx *Tx) error { return tx.Restore(snap) })
}

// Restore stages a full replacement of the registry. Nothing changes until the
// transaction is applied, and an invalid snapshot leaves the overlay untouched.
func (tx *Tx) Restore(snap Snapshot) error {
	users := make(map[crypto.Address]*User, len(snap.Users))
	owners := make(map[coreid.Hash]ownerEntry)
	for _, rec := range snap.Users {
		u := &User{
			Address:        rec.Address,
			Reputation:     rec.Reputation,
			Interactions:   rec.Interactions,
			EverRegistered: rec.EverRegistered,
		}
		if rec.Bound {
			if _, dup := owners[rec.Persona]; dup || rec.Persona.IsZero() {
				return ErrHashInUse
			}
			u.Persona = coreid.Bind(rec.Persona)
			owners[rec.Persona] = ownerEntry{owner: rec.Address}
		}
		users[rec.Address] = u
	}
	tx.users = users
	tx.owners = owners
	tx.stats = Stats{
		TotalUsers:     snap.TotalUsers,
		TotalPersonas:  snap.TotalPersonas,
		ActivePersonas: snap.ActivePersonas,
	}
	tx.events = nil
	tx.replace = true
	return nil
}
