// Package wincon implements the pluggable win-condition evaluator: a
// prioritized set of predicates over game state and accumulated history,
// bundled into named game modes.
package wincon

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// StateView is the read-only slice of game state the conditions evaluate.
// The game package's state satisfies it.
type StateView interface {
	PlayerIDs() [2]string
	Opponent(playerID string) string
	PlayerHealth(playerID string) int
	DeckSize(playerID string) int
	UnitsInPlay(playerID string) int
	PlayerMaxMana(playerID string) int
	TurnNumber() int
	RoundNumber() int
}

// Result is the outcome of checking one condition for one player.
type Result struct {
	ConditionID         string
	Priority            int
	Achieved            bool
	Winner              string
	Message             string
	ConditionsMet       []string
	ConditionsRemaining []string
}

// Progress describes how close a player is to satisfying a condition.
type Progress struct {
	ConditionID string
	Current     int
	Required    int
	Description string
}

// SustainSpec marks a condition as requiring sustained qualifying state.
// The evaluator tracks per-(condition, player) history: the turn the state
// was first achieved, how many distinct turns it stayed active, and the last
// checked turn. The history resets whenever the qualifying state lapses
// between checks.
type SustainSpec struct {
	RequiredTurns int
	Qualifies     func(s StateView, playerID string) bool
}

// Condition is a pluggable win predicate.
type Condition struct {
	ID         string
	Type       string
	Priority   int
	Toggleable bool
	Check      func(s StateView, playerID string) Result
	Progress   func(s StateView, playerID string) Progress
	Sustain    *SustainSpec
}

// GameMode is a named bundle of enabled condition IDs.
type GameMode struct {
	Name string
	// Enabled lists the condition IDs active in this mode.
	Enabled []string
	// AllowMultipleWinners permits reporting several simultaneous winners.
	AllowMultipleWinners bool
	// RequireAll switches the semantics from "any enabled condition wins"
	// to "a player wins only when every enabled condition is achieved for
	// that player in the same check".
	RequireAll bool
}

// historyKey is the structured (condition, player) tuple key for sustained
// condition tracking.
type historyKey struct {
	ConditionID string
	PlayerID    string
}

type conditionHistory struct {
	FirstAchievedTurn int
	TurnsActive       int
	LastCheckedTurn   int
}

// ErrNotToggleable reports an attempt to toggle a non-toggleable condition.
type ErrNotToggleable struct {
	ConditionID string
}

func (e *ErrNotToggleable) Error() string {
	return fmt.Sprintf("win condition %s is not toggleable", e.ConditionID)
}

// Evaluator owns the registered conditions, the active game mode, and the
// sustained-state history.
type Evaluator struct {
	mu         sync.Mutex
	logger     *zap.Logger
	conditions map[string]*Condition
	enabled    map[string]bool
	modes      map[string]GameMode
	activeMode GameMode
	history    map[historyKey]*conditionHistory
}

// NewEvaluator creates an evaluator with no conditions registered.
func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{
		logger:     logger,
		conditions: make(map[string]*Condition),
		enabled:    make(map[string]bool),
		modes:      make(map[string]GameMode),
		history:    make(map[historyKey]*conditionHistory),
		activeMode: GameMode{Name: "all"},
	}
}

// Register adds a condition. Registered conditions start enabled; the active
// game mode can narrow the set.
func (ev *Evaluator) Register(cond Condition) error {
	if cond.ID == "" || cond.Check == nil && cond.Sustain == nil {
		return fmt.Errorf("win condition requires an ID and a predicate")
	}
	ev.mu.Lock()
	defer ev.mu.Unlock()
	if _, exists := ev.conditions[cond.ID]; exists {
		return fmt.Errorf("win condition %s already registered", cond.ID)
	}
	c := cond
	ev.conditions[cond.ID] = &c
	ev.enabled[cond.ID] = true
	return nil
}

// RegisterMode adds a named game mode bundle.
func (ev *Evaluator) RegisterMode(mode GameMode) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	ev.modes[mode.Name] = mode
}

// SetMode activates a registered game mode.
func (ev *Evaluator) SetMode(name string) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	mode, ok := ev.modes[name]
	if !ok {
		return fmt.Errorf("unknown game mode %q", name)
	}
	ev.activeMode = mode
	return nil
}

// ActiveMode returns the active game mode.
func (ev *Evaluator) ActiveMode() GameMode {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	return ev.activeMode
}

// Toggle enables or disables a condition. Only toggle-able conditions may be
// toggled; attempting to toggle anything else fails loudly.
func (ev *Evaluator) Toggle(conditionID string, enabled bool) error {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	cond, ok := ev.conditions[conditionID]
	if !ok {
		return fmt.Errorf("unknown win condition %q", conditionID)
	}
	if !cond.Toggleable {
		return &ErrNotToggleable{ConditionID: conditionID}
	}
	ev.enabled[conditionID] = enabled
	return nil
}

// enabledConditionsLocked returns the conditions active under the current
// mode and toggle flags, sorted by descending priority.
func (ev *Evaluator) enabledConditionsLocked() []*Condition {
	inMode := func(id string) bool {
		if len(ev.activeMode.Enabled) == 0 {
			return true
		}
		for _, enabled := range ev.activeMode.Enabled {
			if enabled == id {
				return true
			}
		}
		return false
	}
	var out []*Condition
	for id, cond := range ev.conditions {
		if ev.enabled[id] && inMode(id) {
			out = append(out, cond)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ActiveConditions returns the IDs of the conditions active under the
// current mode, highest priority first.
func (ev *Evaluator) ActiveConditions() []string {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	conds := ev.enabledConditionsLocked()
	out := make([]string, 0, len(conds))
	for _, c := range conds {
		out = append(out, c.ID)
	}
	return out
}

// CheckResult aggregates one evaluation pass.
type CheckResult struct {
	// Achieved reports whether any winner was determined.
	Achieved bool
	// Authoritative is the highest-priority achieved result.
	Authoritative Result
	// All lists every achieved result when the mode allows multiple
	// simultaneous winners; otherwise it holds only the authoritative one.
	All []Result
}

// Check evaluates all enabled conditions for both players against the given
// state. When several conditions are simultaneously achieved, the
// highest-priority achieved result is authoritative.
func (ev *Evaluator) Check(s StateView) CheckResult {
	ev.mu.Lock()
	conds := ev.enabledConditionsLocked()
	mode := ev.activeMode
	ev.mu.Unlock()

	players := s.PlayerIDs()
	// achieved[playerIdx] holds that player's achieved results, highest
	// priority first (conds are pre-sorted).
	achieved := [2][]Result{}
	for idx, playerID := range players {
		for _, cond := range conds {
			result := ev.evaluate(cond, s, playerID)
			if result.Achieved {
				achieved[idx] = append(achieved[idx], result)
			}
		}
	}

	var winning []Result
	for idx := range players {
		results := achieved[idx]
		if len(results) == 0 {
			continue
		}
		if mode.RequireAll {
			if len(results) < len(conds) {
				continue
			}
		}
		winning = append(winning, results[0])
	}
	if len(winning) == 0 {
		return CheckResult{}
	}
	sort.SliceStable(winning, func(i, j int) bool {
		return winning[i].Priority > winning[j].Priority
	})
	out := CheckResult{Achieved: true, Authoritative: winning[0]}
	if mode.AllowMultipleWinners {
		out.All = winning
	} else {
		out.All = winning[:1]
	}
	return out
}

// evaluate runs a single condition for a single player, handling sustained
// history when the condition declares a SustainSpec.
func (ev *Evaluator) evaluate(cond *Condition, s StateView, playerID string) Result {
	if cond.Sustain == nil {
		return ev.checkResult(cond, s, playerID)
	}

	key := historyKey{ConditionID: cond.ID, PlayerID: playerID}
	turn := s.TurnNumber()

	ev.mu.Lock()
	defer ev.mu.Unlock()

	if !cond.Sustain.Qualifies(s, playerID) {
		// Qualifying state lapsed: history resets.
		delete(ev.history, key)
		return Result{ConditionID: cond.ID, Priority: cond.Priority}
	}

	hist, ok := ev.history[key]
	if !ok {
		hist = &conditionHistory{FirstAchievedTurn: turn, TurnsActive: 1, LastCheckedTurn: turn}
		ev.history[key] = hist
	} else {
		// A gap of more than one turn between qualifying checks counts as
		// a lapse.
		if turn > hist.LastCheckedTurn+1 {
			hist.FirstAchievedTurn = turn
			hist.TurnsActive = 1
		} else if turn > hist.LastCheckedTurn {
			hist.TurnsActive++
		}
		hist.LastCheckedTurn = turn
	}

	if hist.TurnsActive >= cond.Sustain.RequiredTurns {
		return Result{
			ConditionID: cond.ID,
			Priority:    cond.Priority,
			Achieved:    true,
			Winner:      playerID,
			Message:     fmt.Sprintf("%s sustained %s for %d turns", playerID, cond.ID, hist.TurnsActive),
		}
	}
	return Result{ConditionID: cond.ID, Priority: cond.Priority}
}

func (ev *Evaluator) checkResult(cond *Condition, s StateView, playerID string) Result {
	result := cond.Check(s, playerID)
	result.ConditionID = cond.ID
	result.Priority = cond.Priority
	return result
}

// PlayerProgress reports the player's progress toward every active condition
// that exposes a progress function.
func (ev *Evaluator) PlayerProgress(s StateView, playerID string) []Progress {
	ev.mu.Lock()
	conds := ev.enabledConditionsLocked()
	ev.mu.Unlock()

	var out []Progress
	for _, cond := range conds {
		switch {
		case cond.Progress != nil:
			p := cond.Progress(s, playerID)
			p.ConditionID = cond.ID
			out = append(out, p)
		case cond.Sustain != nil:
			ev.mu.Lock()
			hist := ev.history[historyKey{ConditionID: cond.ID, PlayerID: playerID}]
			ev.mu.Unlock()
			current := 0
			if hist != nil {
				current = hist.TurnsActive
			}
			out = append(out, Progress{
				ConditionID: cond.ID,
				Current:     current,
				Required:    cond.Sustain.RequiredTurns,
				Description: fmt.Sprintf("qualifying turns sustained: %d of %d", current, cond.Sustain.RequiredTurns),
			})
		}
	}
	return out
}

// SustainHistory exposes the tracked turns-active counter, mainly for views.
func (ev *Evaluator) SustainHistory(conditionID, playerID string) (turnsActive int, ok bool) {
	ev.mu.Lock()
	defer ev.mu.Unlock()
	hist, found := ev.history[historyKey{ConditionID: conditionID, PlayerID: playerID}]
	if !found {
		return 0, false
	}
	return hist.TurnsActive, true
}
