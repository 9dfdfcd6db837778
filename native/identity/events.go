package identity

import (
	"strconv"

	"vitrine/core/events"
	"vitrine/core/types"
	"vitrine/crypto"

	coreid "vitrine/core/identity"
)

const (
	// EventTypePersonaRegistered is emitted when a user binds a persona hash.
	EventTypePersonaRegistered = "identity.persona.registered"
	// EventTypePersonaRemoved is emitted when a user clears their persona.
	EventTypePersonaRemoved = "identity.persona.removed"
	// EventTypeReputationUpdated is emitted with the new absolute score.
	EventTypeReputationUpdated = "identity.reputation.updated"
	// EventTypeInteractionRecorded is emitted when a purchase counts towards a
	// user's interaction history.
	EventTypeInteractionRecorded = "identity.interaction.recorded"
)

// PersonaRegisteredEvent describes a new or replaced binding. previous is the
// zero hash for first bindings.
func PersonaRegisteredEvent(user crypto.Address, hash coreid.Hash, previous coreid.Binding, bonus uint64) *types.Event {
	attrs := map[string]string{
		"user":  user.String(),
		"hash":  hash.String(),
		"bonus": strconv.FormatUint(bonus, 10),
	}
	if prev, ok := previous.Hash(); ok {
		attrs["previous"] = prev.String()
	}
	return &types.Event{Type: EventTypePersonaRegistered, Attributes: attrs}
}

// PersonaRemovedEvent describes a cleared binding.
func PersonaRemovedEvent(user crypto.Address, hash coreid.Hash) *types.Event {
	return &types.Event{
		Type: EventTypePersonaRemoved,
		Attributes: map[string]string{
			"user": user.String(),
			"hash": hash.String(),
		},
	}
}

// ReputationUpdatedEvent reports the requested delta and resulting score.
func ReputationUpdatedEvent(user crypto.Address, delta int64, score uint64) *types.Event {
	return &types.Event{
		Type: EventTypeReputationUpdated,
		Attributes: map[string]string{
			"user":       user.String(),
			"delta":      strconv.FormatInt(delta, 10),
			"reputation": strconv.FormatUint(score, 10),
		},
	}
}

// InteractionRecordedEvent reports the new interaction count.
func InteractionRecordedEvent(user crypto.Address, count uint64) *types.Event {
	return &types.Event{
		Type: EventTypeInteractionRecorded,
		Attributes: map[string]string{
			"user":         user.String(),
			"interactions": strconv.FormatUint(count, 10),
		},
	}
}

func wrap(evt *types.Event) events.Event { return events.Wrap(evt) }
