package identity

import (
	"vitrine/crypto"

	coreid "vitrine/core/identity"
)

const (
	// DefaultBaseReputation is the score assigned to users on first contact.
	DefaultBaseReputation uint64 = 10
	// DefaultRegistrationBonus is awarded on a user's first-ever persona
	// registration.
	DefaultRegistrationBonus uint64 = 5
)

// Params tune the registry scoring rules.
type Params struct {
	BaseReputation    uint64
	RegistrationBonus uint64
}

// DefaultParams returns the production scoring rules.
func DefaultParams() Params {
	return Params{BaseReputation: DefaultBaseReputation, RegistrationBonus: DefaultRegistrationBonus}
}

// User is the registry view of a marketplace participant.
type User struct {
	Address        crypto.Address
	Persona        coreid.Binding
	Reputation     uint64
	Interactions   uint64
	EverRegistered bool
}

// Stats aggregates registry counters.
type Stats struct {
	TotalUsers     uint64 `json:"totalUsers"`
	TotalPersonas  uint64 `json:"totalPersonas"`
	ActivePersonas uint64 `json:"activePersonas"`
}
