package identity

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"vitrine/core/events"
	"vitrine/crypto"
	"vitrine/native/common"

	coreid "vitrine/core/identity"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

func hash(b byte) coreid.Hash {
	var h coreid.Hash
	h[0] = b
	h[31] = b
	return h
}

func newTestRegistry() (*Registry, *events.Recorder) {
	reg := NewRegistry(DefaultParams())
	rec := &events.Recorder{}
	reg.SetEmitter(rec)
	return reg, rec
}

func TestRegisterPersonaAppliesBonusOnce(t *testing.T) {
	reg, rec := newTestRegistry()
	ctx := context.Background()
	alice := addr(1)

	if err := reg.RegisterPersona(ctx, alice, hash(1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := reg.ReputationOf(alice); got != 15 {
		t.Fatalf("expected reputation 15, got %d", got)
	}
	if got, ok := reg.PersonaOf(alice); !ok || got != hash(1) {
		t.Fatalf("unexpected persona %v %v", got, ok)
	}

	// Re-registering the same hash is a silent no-op.
	rec.Reset()
	if err := reg.RegisterPersona(ctx, alice, hash(1)); err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if got := reg.ReputationOf(alice); got != 15 {
		t.Fatalf("expected reputation unchanged, got %d", got)
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("expected no events, got %v", rec.Types())
	}
	stats := reg.Stats()
	if stats.TotalPersonas != 1 || stats.ActivePersonas != 1 || stats.TotalUsers != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	// Rebinding releases the old hash without another bonus.
	if err := reg.RegisterPersona(ctx, alice, hash(2)); err != nil {
		t.Fatalf("rebind: %v", err)
	}
	if got := reg.ReputationOf(alice); got != 15 {
		t.Fatalf("rebind must not award bonus, got %d", got)
	}
	if _, ok := reg.OwnerOf(hash(1)); ok {
		t.Fatalf("expected old hash released")
	}
	if owner, ok := reg.OwnerOf(hash(2)); !ok || owner != alice {
		t.Fatalf("expected new hash owned by alice")
	}
	stats = reg.Stats()
	if stats.TotalPersonas != 1 || stats.ActivePersonas != 1 {
		t.Fatalf("unexpected stats after rebind %+v", stats)
	}
}

func TestRegisterPersonaRejectsInvalidAndTakenHashes(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()

	if err := reg.RegisterPersona(ctx, addr(1), coreid.Hash{}); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("expected ErrInvalidHash, got %v", err)
	}
	if err := reg.RegisterPersona(ctx, addr(1), hash(9)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RegisterPersona(ctx, addr(2), hash(9)); !errors.Is(err, ErrHashInUse) {
		t.Fatalf("expected ErrHashInUse, got %v", err)
	}
	if _, ok := reg.User(addr(2)); ok {
		t.Fatalf("rejected registration must not create a user")
	}
	if stats := reg.Stats(); stats.TotalUsers != 1 {
		t.Fatalf("unexpected user count %d", stats.TotalUsers)
	}
}

func TestRemovePersona(t *testing.T) {
	reg, rec := newTestRegistry()
	ctx := context.Background()
	alice := addr(1)

	if err := reg.RemovePersona(ctx, alice); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered for unknown user, got %v", err)
	}
	if err := reg.RegisterPersona(ctx, alice, hash(3)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.RemovePersona(ctx, alice); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := reg.PersonaOf(alice); ok {
		t.Fatalf("expected persona cleared")
	}
	if err := reg.RemovePersona(ctx, alice); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered on unbound user, got %v", err)
	}
	stats := reg.Stats()
	if stats.TotalPersonas != 1 || stats.ActivePersonas != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	// The released hash may be claimed by someone else.
	if err := reg.RegisterPersona(ctx, addr(2), hash(3)); err != nil {
		t.Fatalf("expected released hash to be claimable: %v", err)
	}
	types := rec.Types()
	if types[len(types)-1] != EventTypePersonaRegistered {
		t.Fatalf("unexpected event order %v", types)
	}
}

func TestUpdateReputationSaturates(t *testing.T) {
	reg, rec := newTestRegistry()
	ctx := context.Background()
	alice := addr(1)

	score, err := reg.UpdateReputation(ctx, alice, -100)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if score != 0 {
		t.Fatalf("expected floor at zero, got %d", score)
	}
	score, err = reg.UpdateReputation(ctx, alice, math.MinInt64)
	if err != nil || score != 0 {
		t.Fatalf("expected zero, got %d (%v)", score, err)
	}
	if _, err := reg.UpdateReputation(ctx, alice, math.MaxInt64); err != nil {
		t.Fatalf("update: %v", err)
	}
	score, err = reg.UpdateReputation(ctx, alice, math.MaxInt64)
	if err != nil || score != math.MaxUint64 {
		t.Fatalf("expected saturation, got %d (%v)", score, err)
	}
	evts := rec.Events()
	last := events.Flatten(evts[len(evts)-1])
	if last.Attributes["reputation"] != "18446744073709551615" {
		t.Fatalf("event must carry absolute score, got %v", last.Attributes)
	}
}

func TestReputationDefaultsToBase(t *testing.T) {
	reg, _ := newTestRegistry()
	if got := reg.ReputationOf(addr(7)); got != DefaultBaseReputation {
		t.Fatalf("expected base reputation, got %d", got)
	}
	count, err := reg.RecordInteraction(context.Background(), addr(7))
	if err != nil || count != 1 {
		t.Fatalf("unexpected interaction count %d (%v)", count, err)
	}
	if got := reg.ReputationOf(addr(7)); got != DefaultBaseReputation {
		t.Fatalf("interactions must not change reputation, got %d", got)
	}
}

func TestRollbackDiscardsWrites(t *testing.T) {
	reg, rec := newTestRegistry()
	tx, err := reg.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.RegisterPersona(addr(1), hash(1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	tx.UpdateReputation(addr(1), 10)
	tx.Rollback()
	if _, ok := reg.User(addr(1)); ok {
		t.Fatalf("rollback leaked user")
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("rollback leaked events %v", rec.Types())
	}
	if err := tx.Commit(); !errors.Is(err, ErrTxClosed) {
		t.Fatalf("expected ErrTxClosed, got %v", err)
	}
}

func TestBusyRegistryReturnsErrBusy(t *testing.T) {
	reg, _ := newTestRegistry()
	reg.SetLockTimeout(10 * time.Millisecond)
	tx, err := reg.Begin(context.Background())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	if err := reg.RegisterPersona(context.Background(), addr(1), hash(1)); !errors.Is(err, common.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

func TestConcurrentRegistrationsKeepHashesUnique(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 1; i <= 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = reg.RegisterPersona(ctx, addr(byte(i)), hash(byte(i%4+1)))
		}(i)
	}
	wg.Wait()
	if stats := reg.Stats(); stats.ActivePersonas != 4 {
		t.Fatalf("expected four bound personas, got %+v", stats)
	}
}

func TestSnapshotRestore(t *testing.T) {
	reg, _ := newTestRegistry()
	ctx := context.Background()
	if err := reg.RegisterPersona(ctx, addr(1), hash(1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.UpdateReputation(ctx, addr(2), 3); err != nil {
		t.Fatalf("update: %v", err)
	}
	snap := reg.Snapshot()

	restored := NewRegistry(DefaultParams())
	if err := restored.Restore(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Stats() != reg.Stats() {
		t.Fatalf("stats mismatch %+v vs %+v", restored.Stats(), reg.Stats())
	}
	if owner, ok := restored.OwnerOf(hash(1)); !ok || owner != addr(1) {
		t.Fatalf("owner index not rebuilt")
	}
	if restored.ReputationOf(addr(2)) != 13 {
		t.Fatalf("unexpected restored reputation %d", restored.ReputationOf(addr(2)))
	}
}
