package wincon

import "fmt"

// Built-in condition IDs.
const (
	ConditionHealthDepletion = "health_depletion"
	ConditionDeckExhaustion  = "deck_exhaustion"
	ConditionArcanaDominion  = "arcana_dominion"
	ConditionManaMastery     = "mana_mastery"
)

// Priorities for built-in conditions. Health depletion outranks everything
// else when achieved on the same check.
const (
	PriorityHealthDepletion = 1000
	PriorityDeckExhaustion  = 900
	PriorityArcanaDominion  = 500
	PriorityManaMastery     = 400
)

// HealthDepletion wins for the player whose opponent's health reaches zero.
// It is always active and cannot be toggled off.
func HealthDepletion() Condition {
	return Condition{
		ID:       ConditionHealthDepletion,
		Type:     "standard",
		Priority: PriorityHealthDepletion,
		Check: func(s StateView, playerID string) Result {
			opponent := s.Opponent(playerID)
			if s.PlayerHealth(opponent) <= 0 {
				return Result{
					Achieved: true,
					Winner:   playerID,
					Message:  fmt.Sprintf("%s reduced %s to zero health", playerID, opponent),
				}
			}
			return Result{}
		},
		Progress: func(s StateView, playerID string) Progress {
			opponent := s.Opponent(playerID)
			health := s.PlayerHealth(opponent)
			return Progress{
				Current:     max(0, 20-health),
				Required:    20,
				Description: fmt.Sprintf("opponent health at %d", health),
			}
		},
	}
}

// DeckExhaustion wins for the player whose opponent has run their deck to
// empty.
func DeckExhaustion() Condition {
	return Condition{
		ID:         ConditionDeckExhaustion,
		Type:       "standard",
		Priority:   PriorityDeckExhaustion,
		Toggleable: true,
		Check: func(s StateView, playerID string) Result {
			opponent := s.Opponent(playerID)
			if s.DeckSize(opponent) <= 0 {
				return Result{
					Achieved: true,
					Winner:   playerID,
					Message:  fmt.Sprintf("%s has exhausted their deck", opponent),
				}
			}
			return Result{}
		},
		Progress: func(s StateView, playerID string) Progress {
			return Progress{
				Current:     s.DeckSize(s.Opponent(playerID)),
				Required:    0,
				Description: "opponent cards left in deck",
			}
		},
	}
}

// ArcanaDominionUnits and ArcanaDominionTurns parameterize the sustained
// board-presence condition.
const (
	ArcanaDominionUnits = 5
	ArcanaDominionTurns = 2
)

// ArcanaDominion wins for a player who keeps a dominant board, at least
// ArcanaDominionUnits units in play, for ArcanaDominionTurns consecutive
// turns. Losing the board resets the count.
func ArcanaDominion() Condition {
	return Condition{
		ID:         ConditionArcanaDominion,
		Type:       "alternative",
		Priority:   PriorityArcanaDominion,
		Toggleable: true,
		Sustain: &SustainSpec{
			RequiredTurns: ArcanaDominionTurns,
			Qualifies: func(s StateView, playerID string) bool {
				return s.UnitsInPlay(playerID) >= ArcanaDominionUnits
			},
		},
	}
}

// ManaMasteryCap is the mana ceiling a player must reach for mana mastery.
const ManaMasteryCap = 10

// ManaMastery wins for the first player to grow their mana pool to the cap.
func ManaMastery() Condition {
	return Condition{
		ID:         ConditionManaMastery,
		Type:       "alternative",
		Priority:   PriorityManaMastery,
		Toggleable: true,
		Check: func(s StateView, playerID string) Result {
			if s.PlayerMaxMana(playerID) >= ManaMasteryCap {
				return Result{
					Achieved: true,
					Winner:   playerID,
					Message:  fmt.Sprintf("%s reached the mana cap", playerID),
				}
			}
			return Result{}
		},
		Progress: func(s StateView, playerID string) Progress {
			return Progress{
				Current:     s.PlayerMaxMana(playerID),
				Required:    ManaMasteryCap,
				Description: "maximum mana grown",
			}
		},
	}
}

// RegisterBuiltins registers the standard condition set on an evaluator and
// the built-in game modes.
func RegisterBuiltins(ev *Evaluator) error {
	for _, cond := range []Condition{
		HealthDepletion(),
		DeckExhaustion(),
		ArcanaDominion(),
		ManaMastery(),
	} {
		if err := ev.Register(cond); err != nil {
			return err
		}
	}
	ev.RegisterMode(GameMode{Name: "standard", Enabled: []string{
		ConditionHealthDepletion,
		ConditionDeckExhaustion,
	}})
	ev.RegisterMode(GameMode{Name: "arcana", Enabled: []string{
		ConditionHealthDepletion,
		ConditionDeckExhaustion,
		ConditionArcanaDominion,
		ConditionManaMastery,
	}})
	ev.RegisterMode(GameMode{Name: "gauntlet", Enabled: []string{
		ConditionHealthDepletion,
		ConditionArcanaDominion,
		ConditionManaMastery,
	}, RequireAll: true})
	return nil
}
