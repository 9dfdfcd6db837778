package identity

import (
	"context"
	"math"
	"sync"
	"time"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"
	"vitrine/native/common"

	coreerrors "vitrine/core/errors"
	coreid "vitrine/core/identity"
)

var (
	ErrInvalidHash   = coreerrors.New(coreerrors.KindValidation, "identity: invalid persona hash")
	ErrHashInUse     = coreerrors.New(coreerrors.KindConflict, "identity: persona hash bound to another user")
	ErrNotRegistered = coreerrors.New(coreerrors.KindConflict, "identity: persona not registered")
	ErrTxClosed      = coreerrors.New(coreerrors.KindConflict, "identity: transaction already closed")
)

// Registry owns persona bindings and reputation scores. Writers serialise
// through a bounded lock; readers take a short read lock.
type Registry struct {
	lock    *common.Lock
	mu      sync.RWMutex
	users   map[crypto.Address]*User
	owners  map[coreid.Hash]crypto.Address
	stats   Stats
	params  Params
	emitter events.Emitter
}

// NewRegistry constructs an empty registry.
func NewRegistry(params Params) *Registry {
	return &Registry{
		lock:    common.NewLock("identity", 0),
		users:   make(map[crypto.Address]*User),
		owners:  make(map[coreid.Hash]crypto.Address),
		params:  params,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event sink.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// SetLockTimeout bounds writer lock acquisition.
func (r *Registry) SetLockTimeout(timeout time.Duration) { r.lock.SetTimeout(timeout) }

// Params returns the scoring rules.
func (r *Registry) Params() Params { return r.params }

// Begin acquires the writer lock and opens a transaction. The caller must
// Commit or Rollback it.
func (r *Registry) Begin(ctx context.Context) (*Tx, error) {
	if err := r.lock.Acquire(ctx); err != nil {
		return nil, err
	}
	return &Tx{
		reg:    r,
		users:  make(map[crypto.Address]*User),
		owners: make(map[coreid.Hash]ownerEntry),
		stats:  r.stats,
	}, nil
}

// RegisterPersona binds hash to user.
func (r *Registry) RegisterPersona(ctx context.Context, user crypto.Address, hash coreid.Hash) error {
	return r.update(ctx, func(tx *Tx) error { return tx.RegisterPersona(user, hash) })
}

// RemovePersona clears the user's binding.
func (r *Registry) RemovePersona(ctx context.Context, user crypto.Address) error {
	return r.update(ctx, func(tx *Tx) error { return tx.RemovePersona(user) })
}

// UpdateReputation applies a saturating delta and returns the new score.
func (r *Registry) UpdateReputation(ctx context.Context, user crypto.Address, delta int64) (uint64, error) {
	var score uint64
	err := r.update(ctx, func(tx *Tx) error {
		score = tx.UpdateReputation(user, delta)
		return nil
	})
	return score, err
}

// RecordInteraction increments the user's interaction counter.
func (r *Registry) RecordInteraction(ctx context.Context, user crypto.Address) (uint64, error) {
	var count uint64
	err := r.update(ctx, func(tx *Tx) error {
		count = tx.RecordInteraction(user)
		return nil
	})
	return count, err
}

func (r *Registry) update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReputationOf returns the user's score; unknown users report the base score.
func (r *Registry) ReputationOf(user crypto.Address) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[user]; ok {
		return u.Reputation
	}
	return r.params.BaseReputation
}

// PersonaOf returns the user's bound hash, if any.
func (r *Registry) PersonaOf(user crypto.Address) (coreid.Hash, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if u, ok := r.users[user]; ok {
		return u.Persona.Hash()
	}
	return coreid.Hash{}, false
}

// OwnerOf returns the user currently bound to hash.
func (r *Registry) OwnerOf(hash coreid.Hash) (crypto.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[hash]
	return owner, ok
}

// User returns a copy of the user record.
func (r *Registry) User(user crypto.Address) (User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[user]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// Stats returns the registry counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

type ownerEntry struct {
	owner   crypto.Address
	deleted bool
}

// Tx buffers registry writes until Commit. It is not safe for concurrent use.
type Tx struct {
	reg     *Registry
	users   map[crypto.Address]*User
	owners  map[coreid.Hash]ownerEntry
	stats   Stats
	events  []*types.Event
	closed  bool
	applied bool
	replace bool
}

// user returns the writable overlay record, creating the user on first
// contact.
func (tx *Tx) user(addr crypto.Address) *User {
	if u, ok := tx.users[addr]; ok {
		return u
	}
	var u User
	if base, ok := tx.reg.users[addr]; ok {
		u = *base
	} else {
		u = User{Address: addr, Reputation: tx.reg.params.BaseReputation}
		tx.stats.TotalUsers++
	}
	tx.users[addr] = &u
	return &u
}

func (tx *Tx) owner(hash coreid.Hash) (crypto.Address, bool) {
	if entry, ok := tx.owners[hash]; ok {
		if entry.deleted {
			return crypto.Address{}, false
		}
		return entry.owner, true
	}
	owner, ok := tx.reg.owners[hash]
	return owner, ok
}

// ReputationOf reads the score as seen by the transaction.
func (tx *Tx) ReputationOf(addr crypto.Address) uint64 {
	if u, ok := tx.users[addr]; ok {
		return u.Reputation
	}
	if u, ok := tx.reg.users[addr]; ok {
		return u.Reputation
	}
	return tx.reg.params.BaseReputation
}

// RegisterPersona binds hash to addr within the transaction.
func (tx *Tx) RegisterPersona(addr crypto.Address, hash coreid.Hash) error {
	if hash.IsZero() {
		return ErrInvalidHash
	}
	if owner, ok := tx.owner(hash); ok {
		if owner != addr {
			return ErrHashInUse
		}
		// Same hash, same user.
		return nil
	}
	u := tx.user(addr)
	previous := u.Persona
	if prev, ok := previous.Hash(); ok {
		tx.owners[prev] = ownerEntry{deleted: true}
	} else {
		tx.stats.ActivePersonas++
	}
	var bonus uint64
	if !u.EverRegistered {
		u.EverRegistered = true
		bonus = tx.reg.params.RegistrationBonus
		u.Reputation = saturatingAdd(u.Reputation, bonus)
		tx.stats.TotalPersonas++
	}
	u.Persona = coreid.Bind(hash)
	tx.owners[hash] = ownerEntry{owner: addr}
	tx.events = append(tx.events, PersonaRegisteredEvent(addr, hash, previous, bonus))
	return nil
}

// RemovePersona clears addr's binding within the transaction.
func (tx *Tx) RemovePersona(addr crypto.Address) error {
	if _, ok := tx.users[addr]; !ok {
		if _, known := tx.reg.users[addr]; !known {
			return ErrNotRegistered
		}
	}
	u := tx.user(addr)
	hash, ok := u.Persona.Hash()
	if !ok {
		return ErrNotRegistered
	}
	u.Persona = coreid.Unbound
	tx.owners[hash] = ownerEntry{deleted: true}
	if tx.stats.ActivePersonas > 0 {
		tx.stats.ActivePersonas--
	}
	tx.events = append(tx.events, PersonaRemovedEvent(addr, hash))
	return nil
}

// UpdateReputation applies a saturating delta within the transaction.
func (tx *Tx) UpdateReputation(addr crypto.Address, delta int64) uint64 {
	u := tx.user(addr)
	u.Reputation = applyDelta(u.Reputation, delta)
	tx.events = append(tx.events, ReputationUpdatedEvent(addr, delta, u.Reputation))
	return u.Reputation
}

// RecordInteraction increments addr's interaction counter within the
// transaction.
func (tx *Tx) RecordInteraction(addr crypto.Address) uint64 {
	u := tx.user(addr)
	u.Interactions = saturatingAdd(u.Interactions, 1)
	tx.events = append(tx.events, InteractionRecordedEvent(addr, u.Interactions))
	return u.Interactions
}

// Apply publishes the buffered writes but keeps the writer lock. Callers
// coordinating several aggregates apply each one before committing any.
func (tx *Tx) Apply() error {
	if tx.closed {
		return ErrTxClosed
	}
	if tx.applied {
		return nil
	}
	tx.applied = true
	r := tx.reg
	r.mu.Lock()
	if tx.replace {
		r.users = make(map[crypto.Address]*User, len(tx.users))
		r.owners = make(map[coreid.Hash]crypto.Address, len(tx.owners))
	}
	for addr, u := range tx.users {
		r.users[addr] = u
	}
	for hash, entry := range tx.owners {
		if entry.deleted {
			delete(r.owners, hash)
			continue
		}
		r.owners[hash] = entry.owner
	}
	r.stats = tx.stats
	r.mu.Unlock()
	return nil
}

// Commit applies the buffered writes if needed, releases the writer lock and
// emits the buffered events.
func (tx *Tx) Commit() error {
	if err := tx.Apply(); err != nil {
		return err
	}
	tx.closed = true
	tx.reg.lock.Release()
	for _, evt := range tx.events {
		tx.reg.emitter.Emit(wrap(evt))
	}
	return nil
}

// Rollback discards the buffered writes and releases the writer lock. It is a
// no-op on a closed transaction.
func (tx *Tx) Rollback() {
	if tx.closed {
		return
	}
	tx.closed = true
	tx.reg.lock.Release()
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func applyDelta(score uint64, delta int64) uint64 {
	if delta >= 0 {
		return saturatingAdd(score, uint64(delta))
	}
	magnitude := uint64(-(delta + 1)) + 1
	if magnitude >= score {
		return 0
	}
	return score - magnitude
}
