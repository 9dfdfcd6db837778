package common

import (
	"strings"
	"sync"

	coreerrors "vitrine/core/errors"
)

// Module names understood by the pause guard.
const (
	ModuleIdentity  = "identity"
	ModuleCatalog   = "catalog"
	ModuleMarket    = "market"
	ModuleAffiliate = "affiliate"
	ModuleLedger    = "ledger"
)

var ErrModulePaused = coreerrors.New(coreerrors.KindUnavailable, "module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a concurrency-safe PauseView toggled by operators.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauses seeds the pause table with the supplied module flags.
func NewPauses(initial map[string]bool) *Pauses {
	p := &Pauses{paused: make(map[string]bool, len(initial))}
	for module, paused := range initial {
		p.paused[normalizeModule(module)] = paused
	}
	return p
}

// IsPaused implements PauseView.
func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[normalizeModule(module)]
}

// Set toggles the pause flag for module.
func (p *Pauses) Set(module string, paused bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused[normalizeModule(module)] = paused
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
