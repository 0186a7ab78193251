package rules

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteConvertsPanicToFailedResult(t *testing.T) {
	ex := NewExecutor(nil)

	result := ex.Execute(func(ctx EffectContext) ([]Event, error) {
		panic("effect bug")
	}, EffectContext{SourceCardID: "card-1"})

	assert.False(t, result.Success)
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "effect panicked")
}

func TestExecuteReturnsFailureOnError(t *testing.T) {
	ex := NewExecutor(nil)

	wantErr := errors.New("target vanished")
	result := ex.Execute(func(ctx EffectContext) ([]Event, error) {
		return nil, wantErr
	}, EffectContext{})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, wantErr)
}

func TestExecuteNilEffectFails(t *testing.T) {
	ex := NewExecutor(nil)
	result := ex.Execute(nil, EffectContext{})
	assert.False(t, result.Success)
}

func TestResolveQueueDrainsInPriorityOrder(t *testing.T) {
	ex := NewExecutor(nil)

	var order []string
	record := func(name string) EffectFunc {
		return func(ctx EffectContext) ([]Event, error) {
			order = append(order, name)
			return nil, nil
		}
	}
	ex.QueueEffect(record("low"), EffectContext{}, 1)
	ex.QueueEffect(record("high"), EffectContext{}, 10)
	ex.QueueEffect(record("mid-a"), EffectContext{}, 5)
	ex.QueueEffect(record("mid-b"), EffectContext{}, 5)

	results := ex.ResolveQueue()
	require.Len(t, results, 4)
	assert.Equal(t, []string{"high", "mid-a", "mid-b", "low"}, order)

	// Queue empties completely after a drain.
	assert.Zero(t, ex.QueueLen())
	assert.Nil(t, ex.ResolveQueue())
}

func TestResolveQueueContinuesPastFailures(t *testing.T) {
	ex := NewExecutor(nil)

	ran := false
	ex.QueueEffect(func(ctx EffectContext) ([]Event, error) {
		return nil, errors.New("first fails")
	}, EffectContext{}, 10)
	ex.QueueEffect(func(ctx EffectContext) ([]Event, error) {
		ran = true
		return nil, nil
	}, EffectContext{}, 1)

	results := ex.ResolveQueue()
	require.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)
	assert.True(t, ran)
	assert.Zero(t, ex.QueueLen())
}

func TestProcessTriggeredAbilitiesQueuesNonOptional(t *testing.T) {
	ex := NewExecutor(nil)
	reg := NewTriggerRegistry()

	executed := false
	reg.RegisterCardAbilities("card-1", "player1", []TriggeredAbility{
		{
			Name:       "mandatory",
			EventTypes: []EventType{EventUnitSummoned},
			Effect: func(ctx EffectContext) ([]Event, error) {
				executed = true
				return nil, nil
			},
		},
		{
			Name:       "optional",
			EventTypes: []EventType{EventUnitSummoned},
			Optional:   true,
			Effect: func(ctx EffectContext) ([]Event, error) {
				t.Fatal("optional ability must not execute automatically")
				return nil, nil
			},
		},
	})

	matched := ex.ProcessTriggeredAbilities(Event{
		Type:    EventUnitSummoned,
		Turn:    2,
		Payload: UnitPayload{CardID: "other", PlayerID: "player1"},
	}, reg)

	// Both matched, only the mandatory one queued.
	assert.Len(t, matched, 2)
	assert.Equal(t, 1, ex.QueueLen())

	ex.ResolveQueue()
	assert.True(t, executed)
}

func TestExecutorEmitsEffectLifecycleEvents(t *testing.T) {
	bus := NewEventBus(nil, 16)
	ex := NewExecutor(nil)
	ex.SetBus(bus)

	ex.QueueEffect(func(ctx EffectContext) ([]Event, error) {
		return nil, nil
	}, EffectContext{SourceCardID: "card-1", Controller: "player1"}, 1)

	queued := bus.History(EventFilter{Types: []EventType{EventEffectQueued}})
	require.Len(t, queued, 1)
	assert.Equal(t, "card-1", queued[0].Payload.(AbilityPayload).CardID)

	ex.ResolveQueue()
	executed := bus.History(EventFilter{Types: []EventType{EventEffectExecuted}})
	require.Len(t, executed, 1)
	assert.Equal(t, "player1", executed[0].Payload.(AbilityPayload).PlayerID)

	// A failing effect is not reported as executed.
	result := ex.Execute(func(ctx EffectContext) ([]Event, error) {
		return nil, errors.New("fizzle")
	}, EffectContext{})
	assert.False(t, result.Success)
	assert.Len(t, bus.History(EventFilter{Types: []EventType{EventEffectExecuted}}), 1)
}

func TestProcessTriggeredAbilitiesCarriesTriggeringEvent(t *testing.T) {
	ex := NewExecutor(nil)
	reg := NewTriggerRegistry()

	var got *Event
	reg.RegisterCardAbilities("card-1", "player1", []TriggeredAbility{{
		EventTypes: []EventType{EventCardPlayed},
		Effect: func(ctx EffectContext) ([]Event, error) {
			got = ctx.TriggeringEvent
			return nil, nil
		},
	}})

	ex.ProcessTriggeredAbilities(Event{Type: EventCardPlayed, Turn: 3, Payload: CardPayload{CardID: "c"}}, reg)
	ex.ResolveQueue()

	require.NotNil(t, got)
	assert.Equal(t, EventCardPlayed, got.Type)
	assert.Equal(t, 3, got.Turn)
}
