package common

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuard(t *testing.T) {
	pauses := NewPauses(map[string]bool{" Market ": true})
	if err := Guard(pauses, ModuleMarket); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(pauses, ModuleLedger); err != nil {
		t.Fatalf("expected ledger to be active, got %v", err)
	}
	pauses.Set(ModuleMarket, false)
	if err := Guard(pauses, ModuleMarket); err != nil {
		t.Fatalf("expected market resumed, got %v", err)
	}
	if err := Guard(nil, ModuleMarket); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}

func TestLockTimesOut(t *testing.T) {
	lock := NewLock("ledger", 20*time.Millisecond)
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	start := time.Now()
	err := lock.Acquire(context.Background())
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("acquire did not honour timeout")
	}
	lock.Release()
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	lock.Release()
}

func TestLockHonoursContext(t *testing.T) {
	lock := NewLock("catalog", 0)
	if err := lock.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer lock.Release()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := lock.Acquire(ctx); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for cancelled context, got %v", err)
	}
}
