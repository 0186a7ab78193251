package rules

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// EffectResult is the outcome of executing a single effect.
type EffectResult struct {
	Success bool
	Events  []Event
	Err     error
}

type queuedEffect struct {
	effect   EffectFunc
	ctx      EffectContext
	priority int
	seq      int
}

// Executor runs effects with panic containment and maintains a secondary
// batched queue for same-timing effects, distinct from the interactive Stack.
type Executor struct {
	logger   *zap.Logger
	bus      *EventBus
	queue    []queuedEffect
	nextSeq  int
	executed int
}

// NewExecutor creates an effect executor.
func NewExecutor(logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{logger: logger}
}

// SetBus wires the bus that receives the effect lifecycle events
// (queued, executed). A nil bus keeps the executor silent.
func (ex *Executor) SetBus(bus *EventBus) {
	ex.bus = bus
}

func (ex *Executor) emitLifecycle(eventType EventType, ctx EffectContext) {
	if ex.bus == nil {
		return
	}
	payload := AbilityPayload{
		CardID:   ctx.SourceCardID,
		PlayerID: ctx.Controller,
	}
	if ctx.TriggeringEvent != nil {
		payload.TriggeredBy = ctx.TriggeringEvent.Type
	}
	ex.bus.Emit(eventType, ctx.Game, payload, CardRef(ctx.SourceCardID), NoEntity)
}

// Execute runs the effect against its context. Execution panics and errors
// are caught and converted into a failed result rather than propagated.
func (ex *Executor) Execute(effect EffectFunc, ctx EffectContext) (result EffectResult) {
	defer func() {
		if r := recover(); r != nil {
			ex.logger.Error("effect panicked",
				zap.String("source_card", ctx.SourceCardID),
				zap.String("controller", ctx.Controller),
				zap.Any("panic", r),
			)
			result = EffectResult{Success: false, Err: fmt.Errorf("effect panicked: %v", r)}
		}
	}()

	ex.executed++
	if effect == nil {
		return EffectResult{Success: false, Err: fmt.Errorf("nil effect")}
	}
	events, err := effect(ctx)
	if err != nil {
		return EffectResult{Success: false, Events: events, Err: err}
	}
	ex.emitLifecycle(EventEffectExecuted, ctx)
	return EffectResult{Success: true, Events: events}
}

// QueueEffect appends an effect to the batched queue.
func (ex *Executor) QueueEffect(effect EffectFunc, ctx EffectContext, priority int) {
	ex.nextSeq++
	ex.queue = append(ex.queue, queuedEffect{
		effect:   effect,
		ctx:      ctx,
		priority: priority,
		seq:      ex.nextSeq,
	})
	ex.emitLifecycle(EventEffectQueued, ctx)
}

// QueueLen returns the number of queued effects.
func (ex *Executor) QueueLen() int {
	return len(ex.queue)
}

// ResolveQueue drains the batched queue fully in descending priority order
// (insertion order on ties) and returns the ordered results. The queue is
// empty afterwards, including when effects fail.
func (ex *Executor) ResolveQueue() []EffectResult {
	if len(ex.queue) == 0 {
		return nil
	}
	batch := ex.queue
	ex.queue = nil
	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].priority != batch[j].priority {
			return batch[i].priority > batch[j].priority
		}
		return batch[i].seq < batch[j].seq
	})

	results := make([]EffectResult, 0, len(batch))
	for _, qe := range batch {
		results = append(results, ex.Execute(qe.effect, qe.ctx))
	}
	return results
}

// ProcessTriggeredAbilities finds the registered abilities matching the event
// and queues their effects on the batched queue at the triggered priority
// band. Abilities flagged optional are skipped, left for a higher-level
// choice flow. The matched bindings are returned for inspection.
func (ex *Executor) ProcessTriggeredAbilities(event Event, registry *TriggerRegistry) []BoundAbility {
	matched := registry.Collect(event)
	for _, binding := range matched {
		if binding.Ability.Optional {
			continue
		}
		triggering := event
		ex.QueueEffect(binding.Ability.Effect, EffectContext{
			SourceCardID:    binding.CardID,
			Controller:      binding.OwnerID,
			TriggeringEvent: &triggering,
			Game:            GameContext{Phase: event.Phase, Turn: event.Turn, Round: event.Round},
		}, StackItemTriggered.BasePriority())
	}
	return matched
}

// Executed returns the lifetime count of executed effects.
func (ex *Executor) Executed() int {
	return ex.executed
}
