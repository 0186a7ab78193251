package rules

// Phase represents one of the fixed stages of a round.
type Phase string

const (
	PhaseMulligan         Phase = "mulligan"
	PhaseRoundStart       Phase = "round_start"
	PhaseAction           Phase = "action"
	PhaseCombatResolution Phase = "combat_resolution"
	PhaseEndRound         Phase = "end_round"
)

// TurnState is the phase-relevant slice of the game state. It is a plain
// value: every transition returns a new TurnState, leaving the input intact.
type TurnState struct {
	Phase          Phase
	Turn           int
	Round          int
	Players        [2]string
	ActiveIndex    int
	PassCount      int
	Passed         [2]bool
	MulliganDone   [2]bool
	CombatResolved bool
}

// NewTurnState initializes the bookkeeping for a fresh game in the mulligan
// phase, with firstPlayer active on turn 1 of round 1.
func NewTurnState(firstPlayer, secondPlayer string) TurnState {
	return TurnState{
		Phase:   PhaseMulligan,
		Turn:    1,
		Round:   1,
		Players: [2]string{firstPlayer, secondPlayer},
	}
}

// ActivePlayer returns the player whose turn it is.
func (ts TurnState) ActivePlayer() string {
	return ts.Players[ts.ActiveIndex]
}

// PriorityPlayer returns the player entitled to act. During the action phase
// a passed active player forfeits priority to the opponent.
func (ts TurnState) PriorityPlayer() string {
	if ts.Phase == PhaseAction && ts.Passed[ts.ActiveIndex] {
		return ts.Players[1-ts.ActiveIndex]
	}
	return ts.ActivePlayer()
}

// PlayerIndex returns the index of playerID, or -1 when unknown.
func (ts TurnState) PlayerIndex(playerID string) int {
	for i, p := range ts.Players {
		if p == playerID {
			return i
		}
	}
	return -1
}

// phaseTransitions is the legal phase graph. Guards are evaluated against the
// input state; effects are applied to the returned copy.
var phaseTransitions = map[Phase]map[Phase]struct {
	guard  func(TurnState) bool
	effect func(*TurnState)
}{
	PhaseMulligan: {
		PhaseRoundStart: {
			guard: func(ts TurnState) bool { return ts.MulliganDone[0] && ts.MulliganDone[1] },
		},
	},
	PhaseRoundStart: {
		PhaseAction: {},
	},
	PhaseAction: {
		PhaseCombatResolution: {},
		PhaseEndRound: {
			guard: func(ts TurnState) bool { return ts.Passed[ts.ActiveIndex] || ts.PassCount >= 2 },
		},
	},
	PhaseCombatResolution: {
		PhaseAction: {
			effect: func(ts *TurnState) { ts.CombatResolved = true },
		},
	},
	PhaseEndRound: {
		PhaseRoundStart: {
			effect: func(ts *TurnState) {
				ts.ActiveIndex = 1 - ts.ActiveIndex
				ts.Turn++
				if ts.Turn%2 == 1 {
					ts.Round++
				}
				ts.CombatResolved = false
				ts.PassCount = 0
				ts.Passed = [2]bool{}
			},
		},
	},
}

// TryTransition attempts to move the state to the target phase. An invalid
// request (unknown edge or failing guard) is a no-op returning the input
// state unchanged; it never errors.
func TryTransition(ts TurnState, target Phase) TurnState {
	edges, ok := phaseTransitions[ts.Phase]
	if !ok {
		return ts
	}
	edge, ok := edges[target]
	if !ok {
		return ts
	}
	if edge.guard != nil && !edge.guard(ts) {
		return ts
	}
	next := ts
	next.Phase = target
	if edge.effect != nil {
		edge.effect(&next)
	}
	return next
}

// ValidTransitions lists the target phases whose guards currently pass.
func ValidTransitions(ts TurnState) []Phase {
	edges, ok := phaseTransitions[ts.Phase]
	if !ok {
		return nil
	}
	// Stable order across the two-edge maximum.
	order := []Phase{PhaseRoundStart, PhaseAction, PhaseCombatResolution, PhaseEndRound}
	var out []Phase
	for _, target := range order {
		edge, ok := edges[target]
		if !ok {
			continue
		}
		if edge.guard != nil && !edge.guard(ts) {
			continue
		}
		out = append(out, target)
	}
	return out
}

// CanPlayerAct encodes per-phase authorization: during mulligan only a player
// with an incomplete mulligan may act; during action only the active,
// non-passed player; during combat resolution the active player. The
// bookkeeping phases are engine-driven and admit no player action.
func CanPlayerAct(ts TurnState, playerID string) bool {
	idx := ts.PlayerIndex(playerID)
	if idx < 0 {
		return false
	}
	switch ts.Phase {
	case PhaseMulligan:
		return !ts.MulliganDone[idx]
	case PhaseAction:
		return idx == ts.ActiveIndex && !ts.Passed[idx]
	case PhaseCombatResolution:
		return idx == ts.ActiveIndex
	default:
		return false
	}
}

// AutoAdvance applies at most one valid transition and reports whether one
// happened. Player-driven edges (action -> combat_resolution) are never taken
// automatically; it never cascades across multiple phases.
func AutoAdvance(ts TurnState) (TurnState, bool) {
	var target Phase
	switch ts.Phase {
	case PhaseMulligan:
		target = PhaseRoundStart
	case PhaseRoundStart:
		target = PhaseAction
	case PhaseCombatResolution:
		target = PhaseAction
	case PhaseAction:
		target = PhaseEndRound
	case PhaseEndRound:
		target = PhaseRoundStart
	default:
		return ts, false
	}
	next := TryTransition(ts, target)
	return next, next.Phase != ts.Phase
}
