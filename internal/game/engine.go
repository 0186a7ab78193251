package game

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/rules"
	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/wincon"
)

// Sentinel errors for invariant violations that indicate caller bugs rather
// than ordinary illegal input. Ordinary illegal input returns the untouched
// state with a nil error.
var (
	ErrSummoningSickness = errors.New("unit cannot attack the turn it was summoned")
	ErrAlreadyAttacked   = errors.New("unit has already attacked this turn")
)

// gameAnalytics tracks per-game metrics.
type gameAnalytics struct {
	spellsCast        int
	unitsSummoned     int
	attacksDeclared   int
	triggersProcessed int
	actionsPerTurn    map[int]int
	gameStartTime     time.Time
}

// Engine composes the event bus, effect stack, trigger registry, effect
// executor, phase machine, and win-condition evaluator into the externally
// visible game actions. Every action is a function from (state, parameters)
// to a new state; the input state is never mutated. Illegal input returns
// the original state unchanged.
type Engine struct {
	logger    *zap.Logger
	mu        sync.Mutex
	bus       *rules.EventBus
	stack     *rules.Stack
	triggers  *rules.TriggerRegistry
	executor  *rules.Executor
	wincons   *wincon.Evaluator
	analytics *gameAnalytics

	// pendingResults buffers stack resolution outcomes until the current
	// action folds them into its working state.
	pendingResults []rules.ResolutionResult

	// working is the snapshot the in-flight action mutates. The stack
	// validator consults it to re-check pending items at resolution time.
	working *GameState
}

// engineSettings collects the construction tunables so option order never
// matters.
type engineSettings struct {
	mode        rules.ResolutionMode
	limit       int
	historySize int
}

// EngineOption configures an engine at construction.
type EngineOption func(*engineSettings)

// WithResolutionMode sets the stack resolution mode.
func WithResolutionMode(mode rules.ResolutionMode) EngineOption {
	return func(s *engineSettings) { s.mode = mode }
}

// WithResolutionLimit caps the stack's forced-clear resolution limit.
func WithResolutionLimit(limit int) EngineOption {
	return func(s *engineSettings) { s.limit = limit }
}

// WithHistorySize bounds the event history ring.
func WithHistorySize(n int) EngineOption {
	return func(s *engineSettings) { s.historySize = n }
}

// NewEngine creates an engine with the built-in win conditions registered.
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	settings := engineSettings{
		mode:        rules.ResolveLIFO,
		limit:       rules.DefaultResolutionLimit,
		historySize: rules.DefaultHistorySize,
	}
	for _, opt := range opts {
		opt(&settings)
	}

	bus := rules.NewEventBus(logger, settings.historySize)
	stack := rules.NewStack(bus, logger)
	stack.SetMode(settings.mode)
	stack.SetResolutionLimit(settings.limit)

	e := &Engine{
		logger:   logger,
		bus:      bus,
		stack:    stack,
		triggers: rules.NewTriggerRegistry(),
		executor: rules.NewExecutor(logger),
		wincons:  wincon.NewEvaluator(logger),
		analytics: &gameAnalytics{
			actionsPerTurn: make(map[int]int),
		},
	}
	if err := wincon.RegisterBuiltins(e.wincons); err != nil {
		logger.Error("registering built-in win conditions", zap.Error(err))
	}
	e.executor.SetBus(bus)
	e.stack.SetValidator(e.itemStillLegal)
	e.stack.SetResultSink(func(result rules.ResolutionResult) {
		e.mu.Lock()
		e.pendingResults = append(e.pendingResults, result)
		e.mu.Unlock()
	})
	e.subscribeTriggers()
	return e
}

// setWorking records the snapshot the current action is mutating.
func (e *Engine) setWorking(state *GameState) {
	e.mu.Lock()
	e.working = state
	e.mu.Unlock()
}

// itemStillLegal re-validates a pending stack item against the working
// snapshot. The source card must still exist in some zone; unit targets must
// still be on the battlefield; player targets must still be in the game.
func (e *Engine) itemStillLegal(item rules.StackItem) bool {
	e.mu.Lock()
	state := e.working
	e.mu.Unlock()
	if state == nil {
		return true
	}
	if id := item.Context.SourceCardID; id != "" {
		if card, _, _ := state.FindCard(id); card == nil {
			return false
		}
	}
	for _, targetID := range item.Context.Targets {
		if _, ok := state.Players[targetID]; ok {
			continue
		}
		card, _, zone := state.FindCard(targetID)
		if card == nil || zone != "battlefield" {
			return false
		}
	}
	return true
}

// subscribeTriggers routes every emitted event through the trigger registry.
// Matched abilities are queued on the batched executor queue; the queue is
// drained at the end of each engine action.
func (e *Engine) subscribeTriggers() {
	e.bus.Subscribe(rules.EventFilter{}, func(event rules.Event) {
		matched := e.executor.ProcessTriggeredAbilities(event, e.triggers)
		for _, binding := range matched {
			if binding.Ability.Optional {
				continue
			}
			e.bus.Emit(rules.EventAbilityTriggered, rules.GameContext{
				Phase: event.Phase,
				Turn:  event.Turn,
				Round: event.Round,
			}, rules.AbilityPayload{
				AbilityID:   binding.Ability.ID,
				AbilityName: binding.Ability.Name,
				CardID:      binding.CardID,
				PlayerID:    binding.OwnerID,
				TriggeredBy: event.Type,
			}, rules.CardRef(binding.CardID), rules.NoEntity)
		}
	}, rules.SubscriptionOptions{})
}

// Bus exposes the event bus for external subscribers (gateways, recorders).
func (e *Engine) Bus() *rules.EventBus { return e.bus }

// Stack exposes the effect stack for response and counter play.
func (e *Engine) Stack() *rules.Stack { return e.stack }

// WinConditions exposes the evaluator for mode selection and toggling.
func (e *Engine) WinConditions() *wincon.Evaluator { return e.wincons }

// StartGame deals opening hands, emits the game-started event, and returns
// the starting state in the mulligan phase.
func (e *Engine) StartGame(gameID string, p1, p2 *Player) (*GameState, error) {
	if p1 == nil || p2 == nil || p1.ID == p2.ID {
		return nil, fmt.Errorf("a game needs two distinct players")
	}
	if gameID == "" {
		gameID = uuid.NewString()
	}
	e.mu.Lock()
	e.analytics.gameStartTime = time.Now()
	e.mu.Unlock()

	state := NewGameState(gameID, p1, p2)
	e.setWorking(state)
	e.stack.SetPlayers(p1.ID, p2.ID)

	for _, player := range state.playersInOrder() {
		for i := 0; i < StartingHand && len(player.Deck) > 0; i++ {
			e.drawCard(state, player)
		}
	}

	e.bus.Emit(rules.EventGameStarted, state.GameContext(), rules.GamePayload{
		GameID: gameID,
	}, rules.NoEntity, rules.NoEntity)

	e.logger.Info("game started",
		zap.String("game_id", gameID),
		zap.String("first_player", p1.ID),
		zap.String("second_player", p2.ID))
	return state, nil
}

// CompleteMulligan marks a player's mulligan done. When both players have
// completed, the game advances through round_start into the action phase.
func (e *Engine) CompleteMulligan(state *GameState, playerID string) (*GameState, error) {
	if state.Over || state.Turn.Phase != rules.PhaseMulligan {
		return state, nil
	}
	idx := state.Turn.PlayerIndex(playerID)
	if idx < 0 || state.Turn.MulliganDone[idx] {
		e.rejectAction(state, playerID, "complete_mulligan", "not eligible")
		return state, nil
	}

	next := state.Clone()
	e.setWorking(next)
	next.Turn.MulliganDone[idx] = true
	next.Players[playerID].MulliganDone = true

	e.bus.Emit(rules.EventMulliganCompleted, next.GameContext(), rules.CardPayload{
		PlayerID: playerID,
	}, rules.PlayerRef(playerID), rules.NoEntity)

	if next.Turn.MulliganDone[0] && next.Turn.MulliganDone[1] {
		e.transition(next, rules.PhaseRoundStart)
		e.beginRound(next)
		e.transition(next, rules.PhaseAction)
	}
	return next, nil
}

// PlayCard plays a card from hand. Units occupy the requested battlefield
// slot; spells go through the effect stack with any chosen targets. Cost,
// ownership, phase, and slot legality are all required; failing any check
// returns the original state.
func (e *Engine) PlayCard(state *GameState, playerID, cardID string, slot int, targets ...string) (*GameState, error) {
	if state.Over || !rules.CanPlayerAct(state.Turn, playerID) || state.Turn.Phase != rules.PhaseAction {
		e.rejectAction(state, playerID, "play_card", "not eligible to act")
		return state, nil
	}

	next := state.Clone()
	e.setWorking(next)
	player := next.Players[playerID]
	card, owner, zone := next.FindCard(cardID)
	if card == nil || owner.ID != playerID || zone != "hand" {
		e.rejectAction(state, playerID, "play_card", "card not in hand")
		return state, nil
	}
	if card.Cost > player.Mana {
		e.rejectAction(state, playerID, "play_card", "insufficient mana")
		return state, nil
	}
	if card.Type == CardTypeUnit && !player.HasOpenSlot(slot) {
		e.rejectAction(state, playerID, "play_card", "slot occupied or out of range")
		return state, nil
	}

	player.Mana -= card.Cost
	removeFromHand(player, cardID)

	ctx := next.GameContext()
	e.bus.Emit(rules.EventManaSpent, ctx, rules.ResourcePayload{
		PlayerID: playerID,
		Resource: "mana",
		Delta:    -card.Cost,
		NewValue: player.Mana,
	}, rules.PlayerRef(playerID), rules.NoEntity)

	e.bus.Emit(rules.EventCardPlayed, ctx, rules.CardPayload{
		CardID:   card.ID,
		CardName: card.Name,
		PlayerID: playerID,
		Slot:     slot,
		Reversed: card.Orientation == OrientationReversed,
	}, rules.CardRef(card.ID), rules.NoEntity)
	if card.Orientation == OrientationReversed {
		e.bus.Emit(rules.EventCardReversed, ctx, rules.CardPayload{
			CardID:   card.ID,
			CardName: card.Name,
			PlayerID: playerID,
		}, rules.CardRef(card.ID), rules.NoEntity)
	}

	switch card.Type {
	case CardTypeUnit:
		e.summonUnit(next, player, card, slot)
	default:
		e.castSpell(next, player, card, targets)
	}

	e.mu.Lock()
	e.analytics.actionsPerTurn[next.Turn.Turn]++
	e.mu.Unlock()

	e.drainResolved(next)
	e.runTriggers(next)
	e.checkWin(next)
	return next, nil
}

func (e *Engine) summonUnit(state *GameState, player *Player, card *Card, slot int) {
	card.SummonedTurn = state.Turn.Turn
	card.CurrentHealth = card.EffectiveMaxHealth()
	player.Battlefield[slot] = card

	if len(card.Abilities) > 0 {
		e.triggers.RegisterCardAbilities(card.ID, player.ID, card.Abilities)
	}

	e.mu.Lock()
	e.analytics.unitsSummoned++
	e.mu.Unlock()

	e.bus.Emit(rules.EventUnitSummoned, state.GameContext(), rules.UnitPayload{
		CardID:          card.ID,
		PlayerID:        player.ID,
		RemainingHealth: card.CurrentHealth,
	}, rules.CardRef(card.ID), rules.NoEntity)
}

func (e *Engine) castSpell(state *GameState, player *Player, card *Card, targets []string) {
	player.Graveyard = append(player.Graveyard, card)

	e.mu.Lock()
	e.analytics.spellsCast++
	e.mu.Unlock()

	effect := card.ActiveEffect()
	if effect == nil {
		effect = func(ctx rules.EffectContext) ([]rules.Event, error) { return nil, nil }
	}
	item := rules.StackItem{
		Kind:        rules.StackItemSpell,
		Description: card.Name,
		Counterable: card.Counterable,
		Context: rules.EffectContext{
			SourceCardID: card.ID,
			Controller:   player.ID,
			Targets:      targets,
			Game:         state.GameContext(),
		},
		Execute: effect,
	}
	e.stack.Add(item)
	if open, _ := e.stack.ResponseWindowOpen(); !open {
		e.stack.ResolveAll()
	}
}

// DeclareAttack resolves one attacker against a target unit or the enemy
// player. A unit summoned this turn or one that already attacked raises a
// sentinel error. Taunt units on the defending side force the target choice.
func (e *Engine) DeclareAttack(state *GameState, playerID, attackerID, targetID string) (*GameState, error) {
	if state.Over || !rules.CanPlayerAct(state.Turn, playerID) || state.Turn.Phase != rules.PhaseAction {
		e.rejectAction(state, playerID, "declare_attack", "not eligible to act")
		return state, nil
	}

	next := state.Clone()
	e.setWorking(next)
	attacker, owner, zone := next.FindCard(attackerID)
	if attacker == nil || owner.ID != playerID || zone != "battlefield" {
		e.rejectAction(state, playerID, "declare_attack", "attacker not on battlefield")
		return state, nil
	}
	if attacker.SummonedTurn == next.Turn.Turn {
		return state, ErrSummoningSickness
	}
	if attacker.AttackedTurn == next.Turn.Turn {
		return state, ErrAlreadyAttacked
	}
	if attacker.HasStatus(StatusStunned) {
		e.rejectAction(state, playerID, "declare_attack", "attacker is stunned")
		return state, nil
	}

	defenderID := next.Opponent(playerID)
	defender := next.Players[defenderID]

	// Taunt units must be attacked before anything else.
	if taunts := defender.TauntUnits(); len(taunts) > 0 && !containsString(taunts, targetID) {
		e.rejectAction(state, playerID, "declare_attack", "taunt unit must be targeted")
		return state, nil
	}

	var target *Card
	if targetID != defenderID {
		tc, tOwner, tZone := next.FindCard(targetID)
		if tc == nil || tOwner.ID != defenderID || tZone != "battlefield" {
			e.rejectAction(state, playerID, "declare_attack", "invalid attack target")
			return state, nil
		}
		target = tc
	}

	attacker.AttackedTurn = next.Turn.Turn
	e.transition(next, rules.PhaseCombatResolution)

	ctx := next.GameContext()
	e.bus.Emit(rules.EventAttackDeclared, ctx, rules.CombatPayload{
		AttackerID:     attackerID,
		AttackerPlayer: playerID,
		TargetID:       targetID,
		TargetPlayer:   defenderID,
	}, rules.CardRef(attackerID), targetRef(target, defenderID))

	damage := attacker.EffectiveAttack()
	var attackerDestroyed, targetDestroyed bool
	if target == nil {
		e.damagePlayer(next, defender, damage, attackerID)
	} else {
		targetDestroyed = e.damageUnit(next, defender, target, damage, attackerID)
		// The defender strikes back.
		attackerDestroyed = e.damageUnit(next, next.Players[playerID], attacker, target.EffectiveAttack(), target.ID)
	}

	e.bus.Emit(rules.EventCombatResolved, next.GameContext(), rules.CombatPayload{
		AttackerID:        attackerID,
		AttackerPlayer:    playerID,
		TargetID:          targetID,
		TargetPlayer:      defenderID,
		Damage:            damage,
		AttackerDestroyed: attackerDestroyed,
		TargetDestroyed:   targetDestroyed,
	}, rules.CardRef(attackerID), targetRef(target, defenderID))

	e.transition(next, rules.PhaseAction)

	e.mu.Lock()
	e.analytics.attacksDeclared++
	e.analytics.actionsPerTurn[next.Turn.Turn]++
	e.mu.Unlock()

	e.runTriggers(next)
	e.checkWin(next)
	return next, nil
}

// damageUnit marks damage on a unit, honoring shields, and removes it on
// lethal damage. Returns true when the unit was destroyed.
func (e *Engine) damageUnit(state *GameState, owner *Player, unit *Card, amount int, sourceID string) bool {
	if amount <= 0 {
		return false
	}
	if unit.HasStatus(StatusShielded) {
		delete(unit.Statuses, StatusShielded)
		return false
	}
	unit.CurrentHealth -= amount
	e.bus.Emit(rules.EventUnitDamaged, state.GameContext(), rules.UnitPayload{
		CardID:          unit.ID,
		PlayerID:        owner.ID,
		Amount:          amount,
		RemainingHealth: unit.CurrentHealth,
	}, rules.CardRef(sourceID), rules.CardRef(unit.ID))

	if unit.CurrentHealth > 0 {
		return false
	}
	e.destroyUnit(state, owner, unit)
	return true
}

func (e *Engine) destroyUnit(state *GameState, owner *Player, unit *Card) {
	for i, card := range owner.Battlefield {
		if card != nil && card.ID == unit.ID {
			owner.Battlefield[i] = nil
		}
	}
	owner.Graveyard = append(owner.Graveyard, unit)
	e.triggers.UnregisterCardAbilities(unit.ID)

	e.bus.Emit(rules.EventUnitDestroyed, state.GameContext(), rules.UnitPayload{
		CardID:   unit.ID,
		PlayerID: owner.ID,
	}, rules.NoEntity, rules.CardRef(unit.ID))
}

func (e *Engine) damagePlayer(state *GameState, player *Player, amount int, sourceID string) {
	if amount <= 0 {
		return
	}
	player.Health -= amount
	e.bus.Emit(rules.EventPlayerDamaged, state.GameContext(), rules.ResourcePayload{
		PlayerID: player.ID,
		Resource: "health",
		Delta:    -amount,
		NewValue: player.Health,
	}, rules.CardRef(sourceID), rules.PlayerRef(player.ID))
}

// EndTurn passes the turn: end_round and round_start bookkeeping, a draw for
// the incoming player, and a mana refill with the pool grown by one up to
// the cap.
func (e *Engine) EndTurn(state *GameState, playerID string) (*GameState, error) {
	if state.Over || state.Turn.Phase != rules.PhaseAction || state.Turn.ActivePlayer() != playerID {
		e.rejectAction(state, playerID, "end_turn", "not the active player")
		return state, nil
	}

	next := state.Clone()
	e.setWorking(next)
	next.Turn.Passed[next.Turn.PlayerIndex(playerID)] = true

	e.bus.Emit(rules.EventTurnEnded, next.GameContext(), rules.TurnPayload{
		ActivePlayer: playerID,
		Turn:         next.Turn.Turn,
		Round:        next.Turn.Round,
	}, rules.PlayerRef(playerID), rules.NoEntity)

	e.transition(next, rules.PhaseEndRound)
	endedRound := next.Turn.Round
	e.transition(next, rules.PhaseRoundStart)
	if next.Turn.Round > endedRound {
		e.bus.Emit(rules.EventRoundEnded, next.GameContext(), rules.TurnPayload{
			Turn:  next.Turn.Turn,
			Round: endedRound,
		}, rules.NoEntity, rules.NoEntity)
	}

	e.beginRound(next)
	e.transition(next, rules.PhaseAction)

	e.runTriggers(next)
	e.checkWin(next)
	return next, nil
}

// beginRound performs the incoming active player's start-of-turn
// bookkeeping: draw, mana growth and refill, attack flags.
func (e *Engine) beginRound(state *GameState) {
	active := state.Players[state.Turn.ActivePlayer()]
	if active == nil {
		return
	}
	ctx := state.GameContext()

	e.bus.Emit(rules.EventTurnStarted, ctx, rules.TurnPayload{
		ActivePlayer: active.ID,
		Turn:         state.Turn.Turn,
		Round:        state.Turn.Round,
	}, rules.PlayerRef(active.ID), rules.NoEntity)
	e.bus.Emit(rules.EventRoundStarted, ctx, rules.TurnPayload{
		ActivePlayer: active.ID,
		Turn:         state.Turn.Turn,
		Round:        state.Turn.Round,
	}, rules.PlayerRef(active.ID), rules.NoEntity)

	if state.Turn.Turn > 1 {
		e.drawCard(state, active)
	}

	if active.MaxMana < MaxMana {
		active.MaxMana++
	}
	active.Mana = active.MaxMana
	e.bus.Emit(rules.EventManaRefilled, ctx, rules.ResourcePayload{
		PlayerID: active.ID,
		Resource: "mana",
		NewValue: active.Mana,
	}, rules.PlayerRef(active.ID), rules.NoEntity)
}

// drawCard moves the top deck card to hand and emits the draw event. An
// empty deck draws nothing; deck exhaustion is the win evaluator's concern.
func (e *Engine) drawCard(state *GameState, player *Player) {
	if len(player.Deck) == 0 {
		return
	}
	card := player.Deck[0]
	player.Deck = player.Deck[1:]
	player.Hand = append(player.Hand, card)

	e.bus.Emit(rules.EventCardDrawn, state.GameContext(), rules.CardPayload{
		CardID:   card.ID,
		CardName: card.Name,
		PlayerID: player.ID,
	}, rules.PlayerRef(player.ID), rules.CardRef(card.ID))
}

// PassPriority records a priority pass. Two consecutive passes resolve the
// pending stack.
func (e *Engine) PassPriority(state *GameState, playerID string) (*GameState, error) {
	if state.Over || state.Turn.PlayerIndex(playerID) < 0 {
		return state, nil
	}
	next := state.Clone()
	e.setWorking(next)
	if open, _ := e.stack.ResponseWindowOpen(); open {
		if e.stack.PassPriority(playerID) {
			e.drainResolved(next)
			e.runTriggers(next)
		}
	} else {
		e.bus.Emit(rules.EventPriorityPassed, next.GameContext(), rules.StackPayload{
			Controller: playerID,
		}, rules.PlayerRef(playerID), rules.NoEntity)
	}
	next.Turn.PassCount++
	e.checkWin(next)
	return next, nil
}

// transition applies one phase transition and emits the change event when
// the phase actually moved.
func (e *Engine) transition(state *GameState, target rules.Phase) {
	from := state.Turn.Phase
	state.Turn = rules.TryTransition(state.Turn, target)
	if state.Turn.Phase == from {
		return
	}
	e.bus.Emit(rules.EventPhaseChanged, state.GameContext(), rules.PhasePayload{
		From: from,
		To:   state.Turn.Phase,
	}, rules.NoEntity, rules.NoEntity)
}

// runTriggers drains the batched trigger queue, folding effect outputs back
// into the working state. Applied events may themselves queue new triggers,
// so the drain loops until the queue stays empty.
func (e *Engine) runTriggers(state *GameState) {
	for i := 0; i < rules.DefaultResolutionLimit && e.executor.QueueLen() > 0; i++ {
		results := e.executor.ResolveQueue()
		for _, result := range results {
			e.mu.Lock()
			e.analytics.triggersProcessed++
			e.mu.Unlock()
			if !result.Success {
				continue
			}
			for _, produced := range result.Events {
				e.applyEvent(state, produced)
			}
		}
	}
}

// drainResolved takes the buffered stack resolution outcomes and folds them
// into the working state.
func (e *Engine) drainResolved(state *GameState) {
	e.mu.Lock()
	results := e.pendingResults
	e.pendingResults = nil
	e.mu.Unlock()
	e.applyResults(state, results)
}

// applyResults folds stack resolution outputs into the state.
func (e *Engine) applyResults(state *GameState, results []rules.ResolutionResult) {
	for _, result := range results {
		if !result.Success {
			continue
		}
		for _, produced := range result.Events {
			e.applyEvent(state, produced)
		}
	}
}

// applyEvent interprets an effect-produced event as a state mutation on the
// working draft. Effects describe outcomes; the engine applies them.
func (e *Engine) applyEvent(state *GameState, event rules.Event) {
	switch payload := event.Payload.(type) {
	case rules.UnitPayload:
		card, owner, zone := state.FindCard(payload.CardID)
		if card == nil || zone != "battlefield" {
			return
		}
		switch event.Type {
		case rules.EventUnitDamaged:
			e.damageUnit(state, owner, card, payload.Amount, event.Source.ID)
		case rules.EventUnitHealed:
			card.CurrentHealth += payload.Amount
			if maxHealth := card.EffectiveMaxHealth(); card.CurrentHealth > maxHealth {
				card.CurrentHealth = maxHealth
			}
			e.bus.Emit(rules.EventUnitHealed, state.GameContext(), rules.UnitPayload{
				CardID:          card.ID,
				PlayerID:        owner.ID,
				Amount:          payload.Amount,
				RemainingHealth: card.CurrentHealth,
			}, event.Source, rules.CardRef(card.ID))
		case rules.EventUnitDestroyed:
			e.destroyUnit(state, owner, card)
		}
	case rules.ResourcePayload:
		player := state.Players[payload.PlayerID]
		if player == nil {
			return
		}
		switch event.Type {
		case rules.EventPlayerDamaged:
			e.damagePlayer(state, player, -payload.Delta, event.Source.ID)
		case rules.EventPlayerHealed:
			player.Health += payload.Delta
			e.bus.Emit(rules.EventPlayerHealed, state.GameContext(), rules.ResourcePayload{
				PlayerID: player.ID,
				Resource: "health",
				Delta:    payload.Delta,
				NewValue: player.Health,
			}, event.Source, rules.PlayerRef(player.ID))
		}
	case rules.CardPayload:
		if event.Type == rules.EventCardDrawn {
			if player := state.Players[payload.PlayerID]; player != nil {
				e.drawCard(state, player)
			}
		}
	}
}

// checkWin evaluates win conditions and finalizes the state when a winner is
// found.
func (e *Engine) checkWin(state *GameState) {
	if state.Over {
		return
	}
	result := e.wincons.Check(state)
	if !result.Achieved {
		return
	}
	state.Over = true
	state.Winner = result.Authoritative.Winner

	e.bus.Emit(rules.EventGameOver, state.GameContext(), rules.GamePayload{
		GameID:      state.GameID,
		WinnerID:    state.Winner,
		ConditionID: result.Authoritative.ConditionID,
		Message:     result.Authoritative.Message,
	}, rules.NoEntity, rules.NoEntity)

	e.logger.Info("game over",
		zap.String("game_id", state.GameID),
		zap.String("winner", state.Winner),
		zap.String("condition", result.Authoritative.ConditionID))
}

func (e *Engine) rejectAction(state *GameState, playerID, action, reason string) {
	e.logger.Debug("action rejected",
		zap.String("game_id", state.GameID),
		zap.String("player", playerID),
		zap.String("action", action),
		zap.String("reason", reason))
}

// Analytics returns a snapshot of the engine's per-game metrics.
func (e *Engine) Analytics() AnalyticsView {
	e.mu.Lock()
	defer e.mu.Unlock()
	actions := make(map[int]int, len(e.analytics.actionsPerTurn))
	for turn, n := range e.analytics.actionsPerTurn {
		actions[turn] = n
	}
	return AnalyticsView{
		SpellsCast:        e.analytics.spellsCast,
		UnitsSummoned:     e.analytics.unitsSummoned,
		AttacksDeclared:   e.analytics.attacksDeclared,
		TriggersProcessed: e.analytics.triggersProcessed,
		ActionsPerTurn:    actions,
		MaxStackDepth:     e.stack.MaxDepth(),
		TotalStackItems:   e.stack.TotalAdded(),
	}
}

func removeFromHand(player *Player, cardID string) {
	for i, card := range player.Hand {
		if card.ID == cardID {
			player.Hand = append(player.Hand[:i], player.Hand[i+1:]...)
			return
		}
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

func targetRef(target *Card, defenderID string) rules.EntityRef {
	if target != nil {
		return rules.CardRef(target.ID)
	}
	return rules.PlayerRef(defenderID)
}
