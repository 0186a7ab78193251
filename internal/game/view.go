package game

import (
	"time"

	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/rules"
	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/wincon"
)

// GameView is the complete read-only snapshot built for one player.
// Hidden information (the opponent's hand and both decks) is reduced to
// counts.
type GameView struct {
	GameID         string
	Phase          string
	Turn           int
	Round          int
	ActivePlayerID string
	PriorityPlayer string
	Over           bool
	Winner         string
	Players        []PlayerView
	Stack          StackView
	WinConditions  []string
	WinProgress    []WinProgressView
	StartedAt      time.Time
}

// PlayerView is one side of the board as seen by the requesting player.
type PlayerView struct {
	PlayerID     string
	Name         string
	Health       int
	Mana         int
	MaxMana      int
	DeckCount    int
	HandCount    int
	Hand         []CardView
	Battlefield  []CardView
	Graveyard    []CardView
	MulliganDone bool
}

// CardView is a card in any visible zone.
type CardView struct {
	ID            string
	Name          string
	Type          string
	Element       string
	Cost          int
	Attack        int
	Health        int
	CurrentHealth int
	Reversed      bool
	Statuses      []string
	Slot          int
	RulesText     string
}

// QueuedItemView is one pending effect on the stack.
type QueuedItemView struct {
	ID          string
	Kind        string
	Description string
	Priority    int
	Controller  string
	Counterable bool
}

// StackView is the pending effect stack with its aggregates.
type StackView struct {
	Items      []QueuedItemView
	Mode       string
	WindowOpen bool
	Responder  string
	Statistics rules.StackStatistics
	MaxDepth   int
	TotalAdded int
}

// WinProgressView is one player's progress toward one win condition.
type WinProgressView struct {
	PlayerID    string
	ConditionID string
	Current     int
	Required    int
	Description string
}

// AnalyticsView is a snapshot of the engine's per-game metrics.
type AnalyticsView struct {
	SpellsCast        int
	UnitsSummoned     int
	AttacksDeclared   int
	TriggersProcessed int
	ActionsPerTurn    map[int]int
	MaxStackDepth     int
	TotalStackItems   int
}

// BuildGameView assembles the view for the requesting player.
func (e *Engine) BuildGameView(state *GameState, requestingPlayerID string) GameView {
	view := GameView{
		GameID:         state.GameID,
		Phase:          string(state.Turn.Phase),
		Turn:           state.Turn.Turn,
		Round:          state.Turn.Round,
		ActivePlayerID: state.Turn.ActivePlayer(),
		PriorityPlayer: state.Turn.PriorityPlayer(),
		Over:           state.Over,
		Winner:         state.Winner,
		Stack:          e.buildStackView(),
		WinConditions:  e.wincons.ActiveConditions(),
		StartedAt:      state.StartedAt,
	}
	for _, player := range state.playersInOrder() {
		view.Players = append(view.Players, buildPlayerView(player, player.ID == requestingPlayerID))
		for _, progress := range e.wincons.PlayerProgress(state, player.ID) {
			view.WinProgress = append(view.WinProgress, WinProgressView{
				PlayerID:    player.ID,
				ConditionID: progress.ConditionID,
				Current:     progress.Current,
				Required:    progress.Required,
				Description: progress.Description,
			})
		}
	}
	return view
}

func buildPlayerView(player *Player, ownView bool) PlayerView {
	pv := PlayerView{
		PlayerID:     player.ID,
		Name:         player.Name,
		Health:       player.Health,
		Mana:         player.Mana,
		MaxMana:      player.MaxMana,
		DeckCount:    len(player.Deck),
		HandCount:    len(player.Hand),
		MulliganDone: player.MulliganDone,
	}
	if ownView {
		for _, card := range player.Hand {
			pv.Hand = append(pv.Hand, buildCardView(card, -1))
		}
	}
	for slot, card := range player.Battlefield {
		if card != nil {
			pv.Battlefield = append(pv.Battlefield, buildCardView(card, slot))
		}
	}
	for _, card := range player.Graveyard {
		pv.Graveyard = append(pv.Graveyard, buildCardView(card, -1))
	}
	return pv
}

func buildCardView(card *Card, slot int) CardView {
	cv := CardView{
		ID:            card.ID,
		Name:          card.Name,
		Type:          string(card.Type),
		Element:       string(card.Element),
		Cost:          card.Cost,
		Attack:        card.EffectiveAttack(),
		Health:        card.EffectiveMaxHealth(),
		CurrentHealth: card.CurrentHealth,
		Reversed:      card.Orientation == OrientationReversed,
		Slot:          slot,
		RulesText:     card.RulesText,
	}
	if card.Orientation == OrientationReversed && card.ReversedText != "" {
		cv.RulesText = card.ReversedText
	}
	for status := range card.Statuses {
		if card.Statuses[status] {
			cv.Statuses = append(cv.Statuses, string(status))
		}
	}
	return cv
}

func (e *Engine) buildStackView() StackView {
	open, responder := e.stack.ResponseWindowOpen()
	sv := StackView{
		Mode:       string(e.stack.Mode()),
		WindowOpen: open,
		Responder:  responder,
		Statistics: e.stack.Statistics(),
		MaxDepth:   e.stack.MaxDepth(),
		TotalAdded: e.stack.TotalAdded(),
	}
	for _, item := range e.stack.Items() {
		sv.Items = append(sv.Items, QueuedItemView{
			ID:          item.ID,
			Kind:        string(item.Kind),
			Description: item.Description,
			Priority:    item.Priority,
			Controller:  item.Context.Controller,
			Counterable: item.Counterable,
		})
	}
	return sv
}

// EventHistory returns the bus history matching the filter, oldest first.
func (e *Engine) EventHistory(filter rules.EventFilter) []rules.Event {
	return e.bus.History(filter)
}

// WinProgressFor reports a single player's win-condition progress.
func (e *Engine) WinProgressFor(state *GameState, playerID string) []wincon.Progress {
	return e.wincons.PlayerProgress(state, playerID)
}
