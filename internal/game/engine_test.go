package game

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/rules"
)

func buildDeck(owner string, size int) []*Card {
	deck := make([]*Card, 0, size)
	for i := 0; i < size; i++ {
		deck = append(deck, testCard(fmt.Sprintf("%s-card-%02d", owner, i), owner, 1, 2, 2))
	}
	return deck
}

func newTestPlayer(id, name string) *Player {
	return &Player{
		ID:     id,
		Name:   name,
		Health: StartingHealth,
		Deck:   buildDeck(id, 20),
	}
}

// startedGame creates an engine and a game advanced through mulligan into
// the first action phase.
func startedGame(t *testing.T) (*Engine, *GameState) {
	t.Helper()
	engine := NewEngine(zap.NewNop())
	state, err := engine.StartGame("game-1", newTestPlayer("player1", "Arcanist"), newTestPlayer("player2", "Hierophant"))
	require.NoError(t, err)

	state, err = engine.CompleteMulligan(state, "player1")
	require.NoError(t, err)
	state, err = engine.CompleteMulligan(state, "player2")
	require.NoError(t, err)
	require.Equal(t, rules.PhaseAction, state.Turn.Phase)
	return engine, state
}

func TestStartGameDealsOpeningHands(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	state, err := engine.StartGame("game-1", newTestPlayer("player1", "Arcanist"), newTestPlayer("player2", "Hierophant"))
	require.NoError(t, err)

	assert.Equal(t, rules.PhaseMulligan, state.Turn.Phase)
	for _, id := range []string{"player1", "player2"} {
		assert.Len(t, state.Players[id].Hand, StartingHand)
		assert.Len(t, state.Players[id].Deck, 20-StartingHand)
	}
	events := engine.EventHistory(rules.EventFilter{Types: []rules.EventType{rules.EventGameStarted}})
	assert.Len(t, events, 1)
}

func TestStartGameRejectsBadPlayers(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	_, err := engine.StartGame("game-1", newTestPlayer("same", "A"), newTestPlayer("same", "B"))
	assert.Error(t, err)
}

func TestMulliganGatesTheActionPhase(t *testing.T) {
	engine := NewEngine(zap.NewNop())
	state, err := engine.StartGame("game-1", newTestPlayer("player1", "Arcanist"), newTestPlayer("player2", "Hierophant"))
	require.NoError(t, err)

	state, err = engine.CompleteMulligan(state, "player1")
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseMulligan, state.Turn.Phase)

	// The same player completing twice is illegal input: untouched state.
	again, err := engine.CompleteMulligan(state, "player1")
	require.NoError(t, err)
	assert.Same(t, state, again)

	state, err = engine.CompleteMulligan(state, "player2")
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseAction, state.Turn.Phase)
	assert.Equal(t, 1, state.Players["player1"].Mana)
	assert.Equal(t, 1, state.Players["player1"].MaxMana)
}

func TestPlayCardSummonsUnit(t *testing.T) {
	engine, state := startedGame(t)
	cardID := state.Players["player1"].Hand[0].ID

	next, err := engine.PlayCard(state, "player1", cardID, 2)
	require.NoError(t, err)
	require.NotSame(t, state, next)

	player := next.Players["player1"]
	assert.Equal(t, 0, player.Mana)
	require.NotNil(t, player.Battlefield[2])
	assert.Equal(t, cardID, player.Battlefield[2].ID)
	assert.Len(t, player.Hand, StartingHand-1)

	// The input state is untouched.
	assert.Nil(t, state.Players["player1"].Battlefield[2])
	assert.Equal(t, 1, state.Players["player1"].Mana)

	events := engine.EventHistory(rules.EventFilter{Types: []rules.EventType{rules.EventUnitSummoned}})
	require.Len(t, events, 1)
	payload := events[0].Payload.(rules.UnitPayload)
	assert.Equal(t, cardID, payload.CardID)
}

func TestPlayCardIllegalInputReturnsOriginal(t *testing.T) {
	engine, state := startedGame(t)
	hand := state.Players["player1"].Hand

	// Insufficient mana.
	expensive := hand[1]
	expensive.Cost = 9
	next, err := engine.PlayCard(state, "player1", expensive.ID, 0)
	require.NoError(t, err)
	assert.Same(t, state, next)

	// Not the acting player.
	next, err = engine.PlayCard(state, "player2", state.Players["player2"].Hand[0].ID, 0)
	require.NoError(t, err)
	assert.Same(t, state, next)

	// Unknown card.
	next, err = engine.PlayCard(state, "player1", "missing", 0)
	require.NoError(t, err)
	assert.Same(t, state, next)

	// Occupied slot.
	next, err = engine.PlayCard(state, "player1", hand[0].ID, 3)
	require.NoError(t, err)
	withUnit, err := engine.EndTurn(next, "player1")
	require.NoError(t, err)
	withUnit, err = engine.EndTurn(withUnit, "player2")
	require.NoError(t, err)
	blocked, err := engine.PlayCard(withUnit, "player1", withUnit.Players["player1"].Hand[1].ID, 3)
	require.NoError(t, err)
	assert.Same(t, withUnit, blocked)
}

func TestAttackRequiresSeasonedUnit(t *testing.T) {
	engine, state := startedGame(t)
	cardID := state.Players["player1"].Hand[0].ID
	state, err := engine.PlayCard(state, "player1", cardID, 0)
	require.NoError(t, err)

	_, err = engine.DeclareAttack(state, "player1", cardID, "player2")
	assert.ErrorIs(t, err, ErrSummoningSickness)
}

func TestAttackFaceAndAlreadyAttacked(t *testing.T) {
	engine, state := startedGame(t)
	cardID := state.Players["player1"].Hand[0].ID
	state, err := engine.PlayCard(state, "player1", cardID, 0)
	require.NoError(t, err)

	// Cycle the turn back to player1 so the unit is ready.
	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)
	require.Equal(t, "player1", state.Turn.ActivePlayer())

	next, err := engine.DeclareAttack(state, "player1", cardID, "player2")
	require.NoError(t, err)
	assert.Equal(t, StartingHealth-2, next.Players["player2"].Health)
	assert.Equal(t, rules.PhaseAction, next.Turn.Phase)

	_, err = engine.DeclareAttack(next, "player1", cardID, "player2")
	assert.ErrorIs(t, err, ErrAlreadyAttacked)
}

func TestUnitCombatTradesDamage(t *testing.T) {
	engine, state := startedGame(t)
	attackerID := state.Players["player1"].Hand[0].ID
	state, err := engine.PlayCard(state, "player1", attackerID, 0)
	require.NoError(t, err)

	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)
	defenderID := state.Players["player2"].Hand[0].ID
	state, err = engine.PlayCard(state, "player2", defenderID, 0)
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)

	// 2/2 into 2/2: both die.
	next, err := engine.DeclareAttack(state, "player1", attackerID, defenderID)
	require.NoError(t, err)
	assert.Nil(t, next.Players["player1"].Battlefield[0])
	assert.Nil(t, next.Players["player2"].Battlefield[0])

	_, _, zone := next.FindCard(attackerID)
	assert.Equal(t, "graveyard", zone)
	_, _, zone = next.FindCard(defenderID)
	assert.Equal(t, "graveyard", zone)

	events := engine.EventHistory(rules.EventFilter{Types: []rules.EventType{rules.EventCombatResolved}})
	require.Len(t, events, 1)
	payload := events[0].Payload.(rules.CombatPayload)
	assert.True(t, payload.AttackerDestroyed)
	assert.True(t, payload.TargetDestroyed)
}

func TestTauntForcesTargeting(t *testing.T) {
	engine, state := startedGame(t)
	attackerID := state.Players["player1"].Hand[0].ID
	state, err := engine.PlayCard(state, "player1", attackerID, 0)
	require.NoError(t, err)

	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)
	guardian := state.Players["player2"].Hand[0]
	guardian.Statuses = map[Status]bool{StatusTaunt: true}
	guardianID := guardian.ID
	state, err = engine.PlayCard(state, "player2", guardianID, 0)
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)

	// Going face past a taunt unit is illegal input.
	next, err := engine.DeclareAttack(state, "player1", attackerID, "player2")
	require.NoError(t, err)
	assert.Same(t, state, next)

	next, err = engine.DeclareAttack(state, "player1", attackerID, guardianID)
	require.NoError(t, err)
	assert.NotSame(t, state, next)
}

func TestShieldAbsorbsOneHit(t *testing.T) {
	engine, state := startedGame(t)
	attackerID := state.Players["player1"].Hand[0].ID
	state, err := engine.PlayCard(state, "player1", attackerID, 0)
	require.NoError(t, err)

	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)
	shielded := state.Players["player2"].Hand[0]
	shielded.Statuses = map[Status]bool{StatusShielded: true}
	shielded.Attack = 0
	shieldedID := shielded.ID
	state, err = engine.PlayCard(state, "player2", shieldedID, 0)
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)

	next, err := engine.DeclareAttack(state, "player1", attackerID, shieldedID)
	require.NoError(t, err)
	target := next.Players["player2"].Battlefield[0]
	require.NotNil(t, target)
	assert.Equal(t, 2, target.CurrentHealth, "shield absorbs the hit")
	assert.False(t, target.HasStatus(StatusShielded), "shield is consumed")
}

func TestLethalDamageEndsTheGame(t *testing.T) {
	engine, state := startedGame(t)
	attackerID := state.Players["player1"].Hand[0].ID
	state, err := engine.PlayCard(state, "player1", attackerID, 0)
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)

	state.Players["player2"].Health = 2
	next, err := engine.DeclareAttack(state, "player1", attackerID, "player2")
	require.NoError(t, err)

	assert.True(t, next.Over)
	assert.Equal(t, "player1", next.Winner)

	events := engine.EventHistory(rules.EventFilter{Types: []rules.EventType{rules.EventGameOver}})
	require.Len(t, events, 1)
	payload := events[0].Payload.(rules.GamePayload)
	assert.Equal(t, "player1", payload.WinnerID)

	// No further actions once the game is over.
	after, err := engine.EndTurn(next, "player1")
	require.NoError(t, err)
	assert.Same(t, next, after)
}

func TestEndTurnBookkeeping(t *testing.T) {
	engine, state := startedGame(t)

	next, err := engine.EndTurn(state, "player1")
	require.NoError(t, err)

	assert.Equal(t, "player2", next.Turn.ActivePlayer())
	assert.Equal(t, 2, next.Turn.Turn)
	assert.Equal(t, 1, next.Turn.Round)
	assert.Equal(t, rules.PhaseAction, next.Turn.Phase)

	// The incoming player drew a card and gained their first mana.
	p2 := next.Players["player2"]
	assert.Len(t, p2.Hand, StartingHand+1)
	assert.Equal(t, 1, p2.MaxMana)
	assert.Equal(t, 1, p2.Mana)

	// Only the active player may end the turn.
	same, err := engine.EndTurn(next, "player1")
	require.NoError(t, err)
	assert.Same(t, next, same)
}

func TestSpellEffectAppliedThroughStack(t *testing.T) {
	engine, state := startedGame(t)
	player := state.Players["player1"]

	bolt := &Card{
		ID:          "bolt",
		Name:        "Tower Bolt",
		Type:        CardTypeSpell,
		Element:     ElementFire,
		Cost:        1,
		Orientation: OrientationUpright,
		OwnerID:     "player1",
		Effect: func(ctx rules.EffectContext) ([]rules.Event, error) {
			return []rules.Event{{
				Type:    rules.EventPlayerDamaged,
				Source:  rules.CardRef("bolt"),
				Payload: rules.ResourcePayload{PlayerID: "player2", Delta: -3},
			}}, nil
		},
	}
	player.Hand = append(player.Hand, bolt)

	next, err := engine.PlayCard(state, "player1", "bolt", 0)
	require.NoError(t, err)

	assert.Equal(t, StartingHealth-3, next.Players["player2"].Health)
	_, _, zone := next.FindCard("bolt")
	assert.Equal(t, "graveyard", zone)

	analytics := engine.Analytics()
	assert.Equal(t, 1, analytics.SpellsCast)
}

func TestReversedSpellUsesReversedEffect(t *testing.T) {
	engine, state := startedGame(t)
	player := state.Players["player1"]

	card := &Card{
		ID:          "moon",
		Name:        "The Moon",
		Type:        CardTypeSpell,
		Element:     ElementWater,
		Cost:        1,
		Orientation: OrientationReversed,
		OwnerID:     "player1",
		Effect: func(ctx rules.EffectContext) ([]rules.Event, error) {
			return []rules.Event{{
				Type:    rules.EventPlayerHealed,
				Payload: rules.ResourcePayload{PlayerID: "player1", Delta: 2},
			}}, nil
		},
		ReversedEffect: func(ctx rules.EffectContext) ([]rules.Event, error) {
			return []rules.Event{{
				Type:    rules.EventPlayerDamaged,
				Payload: rules.ResourcePayload{PlayerID: "player1", Delta: -2},
			}}, nil
		},
	}
	player.Hand = append(player.Hand, card)

	next, err := engine.PlayCard(state, "player1", "moon", 0)
	require.NoError(t, err)
	assert.Equal(t, StartingHealth-2, next.Players["player1"].Health)
}

func TestEngineOptionsApplyInAnyOrder(t *testing.T) {
	engine := NewEngine(zap.NewNop(),
		WithResolutionMode(rules.ResolvePriority),
		WithResolutionLimit(7),
		WithHistorySize(64),
	)
	assert.Equal(t, rules.ResolvePriority, engine.Stack().Mode())

	engine = NewEngine(zap.NewNop(),
		WithHistorySize(64),
		WithResolutionMode(rules.ResolveTimestamp),
	)
	assert.Equal(t, rules.ResolveTimestamp, engine.Stack().Mode())
}

func TestSpellFizzlesWhenTargetLeavesPlay(t *testing.T) {
	engine, state := startedGame(t)

	slayer := testCard("slayer", "player1", 1, 5, 5)
	state.Players["player1"].Hand = append(state.Players["player1"].Hand, slayer)
	state, err := engine.PlayCard(state, "player1", "slayer", 0)
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)

	victimID := state.Players["player2"].Hand[0].ID
	state, err = engine.PlayCard(state, "player2", victimID, 0)
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)

	executed := false
	hex := &Card{
		ID:          "hex",
		Name:        "Crumbling Tower",
		Type:        CardTypeSpell,
		Element:     ElementEarth,
		Cost:        1,
		Orientation: OrientationUpright,
		OwnerID:     "player1",
		Counterable: true,
		Effect: func(ctx rules.EffectContext) ([]rules.Event, error) {
			executed = true
			return []rules.Event{{
				Type:    rules.EventUnitDamaged,
				Payload: rules.UnitPayload{CardID: ctx.Targets[0], Amount: 2},
			}}, nil
		},
	}
	state.Players["player1"].Hand = append(state.Players["player1"].Hand, hex)
	state, err = engine.PlayCard(state, "player1", "hex", 0, victimID)
	require.NoError(t, err)
	open, responder := engine.Stack().ResponseWindowOpen()
	require.True(t, open)
	require.Equal(t, "player2", responder)

	// The target dies in combat while the spell is still pending.
	state, err = engine.DeclareAttack(state, "player1", "slayer", victimID)
	require.NoError(t, err)
	_, _, zone := state.FindCard(victimID)
	require.Equal(t, "graveyard", zone)

	state, err = engine.PassPriority(state, "player2")
	require.NoError(t, err)
	_, err = engine.PassPriority(state, "player1")
	require.NoError(t, err)

	assert.False(t, executed, "a spell whose target left play must not execute")
	failed := engine.EventHistory(rules.EventFilter{Types: []rules.EventType{rules.EventStackItemFailed}})
	require.NotEmpty(t, failed)
	payload := failed[len(failed)-1].Payload.(rules.StackPayload)
	assert.Equal(t, "source or target no longer legal", payload.Reason)
}

func TestTriggeredAbilityFiresOnSummon(t *testing.T) {
	engine, state := startedGame(t)
	player := state.Players["player1"]

	avenger := testCard("avenger", "player1", 1, 2, 4)
	avenger.Abilities = []rules.TriggeredAbility{{
		Name:       "Vengeful Echo",
		EventTypes: []rules.EventType{rules.EventUnitSummoned},
		Relation:   rules.RelationEnemy,
		Effect: func(ctx rules.EffectContext) ([]rules.Event, error) {
			return []rules.Event{{
				Type:    rules.EventPlayerDamaged,
				Source:  rules.CardRef("avenger"),
				Payload: rules.ResourcePayload{PlayerID: "player2", Delta: -1},
			}}, nil
		},
	}}
	player.Hand = append(player.Hand, avenger)

	state, err := engine.PlayCard(state, "player1", "avenger", 0)
	require.NoError(t, err)
	assert.Equal(t, StartingHealth, state.Players["player2"].Health, "own summon does not trigger an enemy-relation ability")

	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)

	// The opponent summoning a unit triggers the ability.
	enemyCard := state.Players["player2"].Hand[0].ID
	state, err = engine.PlayCard(state, "player2", enemyCard, 0)
	require.NoError(t, err)
	assert.Equal(t, StartingHealth-1, state.Players["player2"].Health)

	events := engine.EventHistory(rules.EventFilter{Types: []rules.EventType{rules.EventAbilityTriggered}})
	require.NotEmpty(t, events)
}

func TestDestroyedUnitStopsTriggering(t *testing.T) {
	engine, state := startedGame(t)
	player := state.Players["player1"]

	watcher := testCard("watcher", "player1", 1, 1, 1)
	fired := 0
	watcher.Abilities = []rules.TriggeredAbility{{
		Name:       "Silent Watch",
		EventTypes: []rules.EventType{rules.EventTurnStarted},
		Relation:   rules.RelationAny,
		Effect: func(ctx rules.EffectContext) ([]rules.Event, error) {
			fired++
			return nil, nil
		},
	}}
	player.Hand = append(player.Hand, watcher)

	state, err := engine.PlayCard(state, "player1", "watcher", 0)
	require.NoError(t, err)

	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)
	firedBefore := fired
	assert.Greater(t, firedBefore, 0)

	// Remove the unit; the trigger must not fire again.
	destroyer := state.Players["player2"].Hand[0]
	destroyer.Attack = 5
	state, err = engine.PlayCard(state, "player2", destroyer.ID, 0)
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)
	state, err = engine.EndTurn(state, "player1")
	require.NoError(t, err)
	require.Equal(t, "player2", state.Turn.ActivePlayer())
	state, err = engine.DeclareAttack(state, "player2", destroyer.ID, "watcher")
	require.NoError(t, err)
	require.Nil(t, state.Players["player1"].Battlefield[0])

	firedAfterKill := fired
	_, err = engine.EndTurn(state, "player2")
	require.NoError(t, err)
	assert.Equal(t, firedAfterKill, fired)
}

func TestAnalyticsCounters(t *testing.T) {
	engine, state := startedGame(t)
	cardID := state.Players["player1"].Hand[0].ID
	state, err := engine.PlayCard(state, "player1", cardID, 0)
	require.NoError(t, err)

	analytics := engine.Analytics()
	assert.Equal(t, 1, analytics.UnitsSummoned)
	assert.Equal(t, 0, analytics.SpellsCast)
	assert.Equal(t, 1, analytics.ActionsPerTurn[1])
}

func TestBuildGameViewHidesOpponentHand(t *testing.T) {
	engine, state := startedGame(t)
	view := engine.BuildGameView(state, "player1")

	require.Len(t, view.Players, 2)
	for _, pv := range view.Players {
		if pv.PlayerID == "player1" {
			assert.Len(t, pv.Hand, StartingHand)
		} else {
			assert.Empty(t, pv.Hand)
			assert.Equal(t, StartingHand, pv.HandCount)
		}
	}
	assert.Equal(t, string(rules.PhaseAction), view.Phase)
	assert.Contains(t, view.WinConditions, "health_depletion")
}
