package rules

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType indicates the category of a rules event.
// The vocabulary is closed: consumers may exhaustively switch over it.
type EventType string

const (
	// Game lifecycle events
	EventGameStarted EventType = "GAME_STARTED"
	EventGameOver    EventType = "GAME_OVER"

	// Turn/Round lifecycle events
	EventTurnStarted       EventType = "TURN_STARTED"
	EventTurnEnded         EventType = "TURN_ENDED"
	EventRoundStarted      EventType = "ROUND_STARTED"
	EventRoundEnded        EventType = "ROUND_ENDED"
	EventMulliganCompleted EventType = "MULLIGAN_COMPLETED"

	// Phase events
	EventPhaseChanged EventType = "PHASE_CHANGED"

	// Card lifecycle events
	EventCardDrawn    EventType = "CARD_DRAWN"
	EventCardPlayed   EventType = "CARD_PLAYED"
	EventCardReversed EventType = "CARD_REVERSED"

	// Unit lifecycle events
	EventUnitSummoned  EventType = "UNIT_SUMMONED"
	EventUnitDamaged   EventType = "UNIT_DAMAGED"
	EventUnitHealed    EventType = "UNIT_HEALED"
	EventUnitDestroyed EventType = "UNIT_DESTROYED"

	// Combat lifecycle events
	EventAttackDeclared EventType = "ATTACK_DECLARED"
	EventCombatResolved EventType = "COMBAT_RESOLVED"

	// Player resource events
	EventManaSpent     EventType = "MANA_SPENT"
	EventManaRefilled  EventType = "MANA_REFILLED"
	EventPlayerDamaged EventType = "PLAYER_DAMAGED"
	EventPlayerHealed  EventType = "PLAYER_HEALED"

	// Ability/effect events
	EventAbilityTriggered EventType = "ABILITY_TRIGGERED"
	EventEffectExecuted   EventType = "EFFECT_EXECUTED"
	EventEffectQueued     EventType = "EFFECT_QUEUED"

	// Stack events
	EventStackItemAdded      EventType = "STACK_ITEM_ADDED"
	EventStackItemResolved   EventType = "STACK_ITEM_RESOLVED"
	EventStackItemFailed     EventType = "STACK_ITEM_FAILED"
	EventStackItemCountered  EventType = "STACK_ITEM_COUNTERED"
	EventStackCleared        EventType = "STACK_CLEARED"
	EventResponseWindowOpen  EventType = "RESPONSE_WINDOW_OPEN"
	EventResponseWindowClose EventType = "RESPONSE_WINDOW_CLOSE"
	EventPriorityPassed      EventType = "PRIORITY_PASSED"
)

// EntityKind classifies the source or target of an event.
type EntityKind string

const (
	EntityNone   EntityKind = ""
	EntityCard   EntityKind = "CARD"
	EntityPlayer EntityKind = "PLAYER"
	EntityStack  EntityKind = "STACK"
	EntitySystem EntityKind = "SYSTEM"
)

// EntityRef identifies a game object referenced by an event.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// NoEntity is the zero reference used when an event has no source or target.
var NoEntity = EntityRef{}

// CardRef builds a card reference.
func CardRef(id string) EntityRef { return EntityRef{Kind: EntityCard, ID: id} }

// PlayerRef builds a player reference.
func PlayerRef(id string) EntityRef { return EntityRef{Kind: EntityPlayer, ID: id} }

// EventPayload is the closed set of per-category payload shapes.
// Consumers type-switch over the concrete types; each event category has
// exactly one payload type.
type EventPayload interface {
	isEventPayload()
}

// TurnPayload accompanies turn/round lifecycle events.
type TurnPayload struct {
	ActivePlayer string
	Turn         int
	Round        int
}

// PhasePayload accompanies phase change events.
type PhasePayload struct {
	From Phase
	To   Phase
}

// CardPayload accompanies card lifecycle events.
type CardPayload struct {
	CardID   string
	CardName string
	PlayerID string
	Slot     int
	Reversed bool
}

// UnitPayload accompanies unit lifecycle events.
type UnitPayload struct {
	CardID          string
	PlayerID        string
	Amount          int
	RemainingHealth int
}

// CombatPayload accompanies combat lifecycle events.
type CombatPayload struct {
	AttackerID        string
	AttackerPlayer    string
	TargetID          string
	TargetPlayer      string
	Damage            int
	AttackerDestroyed bool
	TargetDestroyed   bool
}

// ResourcePayload accompanies player resource events.
type ResourcePayload struct {
	PlayerID string
	Resource string
	Delta    int
	NewValue int
}

// AbilityPayload accompanies ability/effect events.
type AbilityPayload struct {
	AbilityID    string
	AbilityName  string
	CardID       string
	PlayerID     string
	TriggeredBy  EventType
}

// StackPayload accompanies stack events.
type StackPayload struct {
	ItemID     string
	Kind       StackItemKind
	Controller string
	Reason     string
}

// GamePayload accompanies game lifecycle events.
type GamePayload struct {
	GameID      string
	WinnerID    string
	ConditionID string
	Message     string
}

func (TurnPayload) isEventPayload()     {}
func (PhasePayload) isEventPayload()    {}
func (CardPayload) isEventPayload()     {}
func (UnitPayload) isEventPayload()     {}
func (CombatPayload) isEventPayload()   {}
func (ResourcePayload) isEventPayload() {}
func (AbilityPayload) isEventPayload()  {}
func (StackPayload) isEventPayload()    {}
func (GamePayload) isEventPayload()     {}

// ActingPlayer extracts the player an event is attributed to, if any.
// Used for ally/enemy trigger relations and player-scoped filters.
func ActingPlayer(e Event) string {
	switch p := e.Payload.(type) {
	case TurnPayload:
		return p.ActivePlayer
	case PhasePayload:
		return ""
	case CardPayload:
		return p.PlayerID
	case UnitPayload:
		return p.PlayerID
	case CombatPayload:
		return p.AttackerPlayer
	case ResourcePayload:
		return p.PlayerID
	case AbilityPayload:
		return p.PlayerID
	case StackPayload:
		return p.Controller
	case GamePayload:
		return p.WinnerID
	default:
		return ""
	}
}

// GameContext carries the phase/turn/round snapshot stamped onto each event.
type GameContext struct {
	Phase Phase
	Turn  int
	Round int
}

// Event is an immutable record of something that happened.
type Event struct {
	Type      EventType
	ID        string
	Timestamp time.Time
	Source    EntityRef
	Target    EntityRef
	Phase     Phase
	Turn      int
	Round     int
	Payload   EventPayload
}

// Listener reacts to a dispatched event.
type Listener func(Event)

// EventFilter selects events by AND across all populated fields.
type EventFilter struct {
	Types     []EventType
	Source    *EntityRef
	Target    *EntityRef
	Predicate func(Event) bool
}

// Matches reports whether the event satisfies every populated criterion.
func (f EventFilter) Matches(e Event) bool {
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if t == e.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Source != nil && !refMatches(*f.Source, e.Source) {
		return false
	}
	if f.Target != nil && !refMatches(*f.Target, e.Target) {
		return false
	}
	if f.Predicate != nil && !f.Predicate(e) {
		return false
	}
	return true
}

// refMatches treats empty Kind/ID in the wanted ref as wildcards.
func refMatches(want, got EntityRef) bool {
	if want.Kind != EntityNone && want.Kind != got.Kind {
		return false
	}
	if want.ID != "" && want.ID != got.ID {
		return false
	}
	return true
}

// SubscriptionOptions tune listener dispatch.
type SubscriptionOptions struct {
	// Priority orders dispatch descending; ties keep registration order.
	Priority int
	// Once removes the subscription after its first invocation.
	Once bool
}

type subscription struct {
	id       string
	filter   EventFilter
	listener Listener
	priority int
	once     bool
	fired    bool
	seq      int
}

// DefaultHistorySize bounds the event history ring when no size is given.
const DefaultHistorySize = 256

// EventBus provides synchronous publish/subscribe with priority ordering,
// filtering, bounded history, and queued re-entrant emission.
//
// Events emitted by a listener during dispatch are appended to an explicit
// FIFO work list and processed strictly after the current dispatch completes,
// never interleaved. This keeps cascade ordering deterministic and bounds
// recursion to a flat loop.
type EventBus struct {
	mu          sync.Mutex
	logger      *zap.Logger
	subs        []*subscription
	nextSeq     int
	history     []Event
	historyHead int
	historyLen  int
	dispatching bool
	pending     []Event
}

// NewEventBus constructs a bus with the given history capacity.
// A historySize <= 0 falls back to DefaultHistorySize.
func NewEventBus(logger *zap.Logger, historySize int) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	return &EventBus{
		logger:  logger,
		history: make([]Event, historySize),
	}
}

// Subscribe registers a listener for events matching the filter and returns
// the subscription ID.
func (bus *EventBus) Subscribe(filter EventFilter, listener Listener, opts SubscriptionOptions) string {
	if listener == nil {
		return ""
	}
	bus.mu.Lock()
	defer bus.mu.Unlock()
	sub := &subscription{
		id:       uuid.NewString(),
		filter:   filter,
		listener: listener,
		priority: opts.Priority,
		once:     opts.Once,
		seq:      bus.nextSeq,
	}
	bus.nextSeq++
	bus.subs = append(bus.subs, sub)
	return sub.id
}

// SubscribeType registers a listener for a single event type with default options.
func (bus *EventBus) SubscribeType(eventType EventType, listener Listener) string {
	return bus.Subscribe(EventFilter{Types: []EventType{eventType}}, listener, SubscriptionOptions{})
}

// Unsubscribe removes the subscription. It is idempotent and reports whether
// a subscription was actually removed.
func (bus *EventBus) Unsubscribe(id string) bool {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.removeLocked(id)
}

func (bus *EventBus) removeLocked(id string) bool {
	for i, sub := range bus.subs {
		if sub.id == id {
			bus.subs = append(bus.subs[:i], bus.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit constructs an Event, appends it to history, and dispatches it
// synchronously to matching subscriptions in descending priority order.
// Emissions raised while a dispatch is in progress are queued and processed
// breadth-first after the outer dispatch finishes. The constructed event is
// returned.
func (bus *EventBus) Emit(eventType EventType, ctx GameContext, payload EventPayload, source, target EntityRef) Event {
	event := Event{
		Type:      eventType,
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Source:    source,
		Target:    target,
		Phase:     ctx.Phase,
		Turn:      ctx.Turn,
		Round:     ctx.Round,
		Payload:   payload,
	}

	bus.mu.Lock()
	bus.appendHistoryLocked(event)
	if bus.dispatching {
		bus.pending = append(bus.pending, event)
		bus.mu.Unlock()
		return event
	}
	bus.dispatching = true
	bus.mu.Unlock()

	bus.dispatch(event)
	for {
		bus.mu.Lock()
		if len(bus.pending) == 0 {
			bus.dispatching = false
			bus.mu.Unlock()
			return event
		}
		next := bus.pending[0]
		bus.pending = bus.pending[1:]
		bus.mu.Unlock()
		bus.dispatch(next)
	}
}

// dispatch delivers a single event to every matching subscription.
// A panicking listener is logged and never prevents the remaining listeners
// from running.
func (bus *EventBus) dispatch(event Event) {
	bus.mu.Lock()
	matched := make([]*subscription, 0, len(bus.subs))
	for _, sub := range bus.subs {
		if !sub.fired || !sub.once {
			if sub.filter.Matches(event) {
				matched = append(matched, sub)
			}
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].priority != matched[j].priority {
			return matched[i].priority > matched[j].priority
		}
		return matched[i].seq < matched[j].seq
	})
	bus.mu.Unlock()

	for _, sub := range matched {
		bus.mu.Lock()
		// A listener earlier in this dispatch may have unsubscribed it.
		if !bus.subscribedLocked(sub.id) {
			bus.mu.Unlock()
			continue
		}
		if sub.once {
			if sub.fired {
				bus.mu.Unlock()
				continue
			}
			sub.fired = true
			bus.removeLocked(sub.id)
		}
		bus.mu.Unlock()
		bus.invoke(sub, event)
	}
}

func (bus *EventBus) subscribedLocked(id string) bool {
	for _, sub := range bus.subs {
		if sub.id == id {
			return true
		}
	}
	return false
}

func (bus *EventBus) invoke(sub *subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			bus.logger.Error("event listener panicked",
				zap.String("subscription_id", sub.id),
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r),
			)
		}
	}()
	sub.listener(event)
}

func (bus *EventBus) appendHistoryLocked(event Event) {
	capacity := len(bus.history)
	idx := (bus.historyHead + bus.historyLen) % capacity
	bus.history[idx] = event
	if bus.historyLen < capacity {
		bus.historyLen++
	} else {
		bus.historyHead = (bus.historyHead + 1) % capacity
	}
}

// History returns the retained events matching the filter, oldest first.
func (bus *EventBus) History(filter EventFilter) []Event {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	out := make([]Event, 0, bus.historyLen)
	for i := 0; i < bus.historyLen; i++ {
		event := bus.history[(bus.historyHead+i)%len(bus.history)]
		if filter.Matches(event) {
			out = append(out, event)
		}
	}
	return out
}

// RecentEvents returns up to n most recent events of the given type,
// newest first.
func (bus *EventBus) RecentEvents(eventType EventType, n int) []Event {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	out := make([]Event, 0, n)
	for i := bus.historyLen - 1; i >= 0 && len(out) < n; i-- {
		event := bus.history[(bus.historyHead+i)%len(bus.history)]
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// HasRecentEvent reports whether an event of the given type occurred within
// the last withinTurns turns, relative to currentTurn.
func (bus *EventBus) HasRecentEvent(eventType EventType, currentTurn, withinTurns int) bool {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	for i := bus.historyLen - 1; i >= 0; i-- {
		event := bus.history[(bus.historyHead+i)%len(bus.history)]
		if event.Type == eventType && event.Turn >= currentTurn-withinTurns {
			return true
		}
	}
	return false
}

// HistoryLen returns the number of retained events.
func (bus *EventBus) HistoryLen() int {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	return bus.historyLen
}
