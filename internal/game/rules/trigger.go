package rules

import (
	"sync"

	"github.com/google/uuid"
)

// SourceRelation constrains which event sources a triggered ability reacts to,
// relative to the card carrying the ability.
type SourceRelation string

const (
	// RelationSelf fires only for events sourced by the ability's own card.
	RelationSelf SourceRelation = "SELF"
	// RelationAny fires regardless of source.
	RelationAny SourceRelation = "ANY"
	// RelationAlly fires for events attributed to the card's controller.
	RelationAlly SourceRelation = "ALLY"
	// RelationEnemy fires for events attributed to the opposing player.
	RelationEnemy SourceRelation = "ENEMY"
)

// TriggeredAbility binds one or more event types to an effect, with an
// optional extra filter. Optional abilities are matched but never executed
// automatically; they are left for a higher-level choice flow.
type TriggeredAbility struct {
	ID         string
	Name       string
	EventTypes []EventType
	Relation   SourceRelation
	Filter     func(Event) bool
	Optional   bool
	Effect     EffectFunc
}

// BoundAbility is a registered ability together with its card binding.
type BoundAbility struct {
	CardID  string
	OwnerID string
	Ability TriggeredAbility
}

// TriggerRegistry associates cards' triggered abilities with their identity
// for as long as the caller considers the card active.
type TriggerRegistry struct {
	mu        sync.Mutex
	abilities map[string][]TriggeredAbility // cardID -> abilities
	owners    map[string]string             // cardID -> playerID
	order     []string                      // registration order of card IDs
}

// NewTriggerRegistry creates an empty registry.
func NewTriggerRegistry() *TriggerRegistry {
	return &TriggerRegistry{
		abilities: make(map[string][]TriggeredAbility),
		owners:    make(map[string]string),
	}
}

// RegisterCardAbilities binds the abilities to the card. Abilities without an
// ID get one assigned; a missing relation defaults to RelationAny.
func (tr *TriggerRegistry) RegisterCardAbilities(cardID, ownerID string, abilities []TriggeredAbility) {
	if cardID == "" || len(abilities) == 0 {
		return
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	prepared := make([]TriggeredAbility, 0, len(abilities))
	for _, ability := range abilities {
		if ability.ID == "" {
			ability.ID = uuid.NewString()
		}
		if ability.Relation == "" {
			ability.Relation = RelationAny
		}
		prepared = append(prepared, ability)
	}
	if _, exists := tr.abilities[cardID]; !exists {
		tr.order = append(tr.order, cardID)
	}
	tr.abilities[cardID] = append(tr.abilities[cardID], prepared...)
	tr.owners[cardID] = ownerID
}

// UnregisterCardAbilities removes every ability bound to the card.
func (tr *TriggerRegistry) UnregisterCardAbilities(cardID string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	delete(tr.abilities, cardID)
	delete(tr.owners, cardID)
	for i, id := range tr.order {
		if id == cardID {
			tr.order = append(tr.order[:i], tr.order[i+1:]...)
			break
		}
	}
}

// AbilitiesFor returns the abilities registered for cardID.
func (tr *TriggerRegistry) AbilitiesFor(cardID string) []TriggeredAbility {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	out := make([]TriggeredAbility, len(tr.abilities[cardID]))
	copy(out, tr.abilities[cardID])
	return out
}

// Collect returns every registered ability whose trigger matches the event's
// type, source relation, and custom filter, in card registration order.
// Non-matching event types never produce a binding.
func (tr *TriggerRegistry) Collect(event Event) []BoundAbility {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var matched []BoundAbility
	for _, cardID := range tr.order {
		owner := tr.owners[cardID]
		for _, ability := range tr.abilities[cardID] {
			if !typeMatches(ability.EventTypes, event.Type) {
				continue
			}
			if !relationMatches(ability.Relation, cardID, owner, event) {
				continue
			}
			if ability.Filter != nil && !ability.Filter(event) {
				continue
			}
			matched = append(matched, BoundAbility{
				CardID:  cardID,
				OwnerID: owner,
				Ability: ability,
			})
		}
	}
	return matched
}

func typeMatches(types []EventType, t EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

func relationMatches(relation SourceRelation, cardID, ownerID string, event Event) bool {
	switch relation {
	case RelationSelf:
		return event.Source.ID == cardID
	case RelationAlly:
		actor := ActingPlayer(event)
		return actor != "" && actor == ownerID
	case RelationEnemy:
		actor := ActingPlayer(event)
		return actor != "" && actor != ownerID
	default: // RelationAny
		return true
	}
}
