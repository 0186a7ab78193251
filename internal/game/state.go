package game

import (
	"time"

	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/counters"
	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/rules"
)

// BattlefieldSlots is the fixed number of unit slots per player row.
const BattlefieldSlots = 7

// Health and mana baselines.
const (
	StartingHealth = 20
	StartingHand   = 4
	MaxMana        = 10
)

// Orientation of a tarot card. A reversed card plays with altered effects.
type Orientation string

const (
	OrientationUpright  Orientation = "upright"
	OrientationReversed Orientation = "reversed"
)

// Element tags for cards.
type Element string

const (
	ElementFire  Element = "fire"
	ElementWater Element = "water"
	ElementAir   Element = "air"
	ElementEarth Element = "earth"
)

// ZodiacClass groups cards by sign.
type ZodiacClass string

// Status effects a unit can carry.
type Status string

const (
	// StatusStunned prevents the unit from attacking.
	StatusStunned Status = "stunned"
	// StatusShielded absorbs the next instance of damage.
	StatusShielded Status = "shielded"
	// StatusTaunt forces enemy attackers to target this unit.
	StatusTaunt Status = "taunt"
)

// CardType distinguishes units from non-permanent spells.
type CardType string

const (
	CardTypeUnit  CardType = "unit"
	CardTypeSpell CardType = "spell"
)

// Card is a card in any zone.
type Card struct {
	ID             string
	Name           string
	Type           CardType
	ZodiacClass    ZodiacClass
	Element        Element
	Cost           int
	Attack         int
	Health         int
	CurrentHealth  int
	Orientation    Orientation
	Statuses       map[Status]bool
	Counters       *counters.Counters
	OwnerID        string
	// Battlefield bookkeeping.
	SummonedTurn int
	AttackedTurn int
	Counterable  bool
	Abilities    []rules.TriggeredAbility
	// Effect runs when a spell resolves. ReversedEffect replaces it for a
	// reversed card; when nil the upright effect runs either way.
	Effect         rules.EffectFunc
	ReversedEffect rules.EffectFunc
	RulesText      string
	ReversedText   string
}

// ActiveEffect picks the effect matching the card's orientation.
func (c *Card) ActiveEffect() rules.EffectFunc {
	if c.Orientation == OrientationReversed && c.ReversedEffect != nil {
		return c.ReversedEffect
	}
	return c.Effect
}

// HasStatus reports whether the card carries the given status.
func (c *Card) HasStatus(s Status) bool {
	return c != nil && c.Statuses[s]
}

// EffectiveAttack is the card's attack after counter deltas. Reversed units
// trade a point of attack for a point of resilience.
func (c *Card) EffectiveAttack() int {
	attack := c.Attack
	if c.Counters != nil {
		dAttack, _ := counters.StatDeltas(c.Counters)
		attack += dAttack
	}
	if c.Orientation == OrientationReversed {
		attack--
	}
	if attack < 0 {
		attack = 0
	}
	return attack
}

// EffectiveMaxHealth is the card's health ceiling after counter deltas and
// orientation.
func (c *Card) EffectiveMaxHealth() int {
	health := c.Health
	if c.Counters != nil {
		_, dHealth := counters.StatDeltas(c.Counters)
		health += dHealth
	}
	if c.Orientation == OrientationReversed {
		health++
	}
	if health < 0 {
		health = 0
	}
	return health
}

// clone deep-copies a card.
func (c *Card) clone() *Card {
	if c == nil {
		return nil
	}
	out := *c
	if c.Statuses != nil {
		out.Statuses = make(map[Status]bool, len(c.Statuses))
		for k, v := range c.Statuses {
			out.Statuses[k] = v
		}
	}
	if c.Counters != nil {
		out.Counters = c.Counters.Copy()
	}
	if c.Abilities != nil {
		out.Abilities = append([]rules.TriggeredAbility(nil), c.Abilities...)
	}
	return &out
}

// Player holds one side's zones and resources.
type Player struct {
	ID           string
	Name         string
	Health       int
	Mana         int
	MaxMana      int
	Deck         []*Card
	Hand         []*Card
	Graveyard    []*Card
	Battlefield  [BattlefieldSlots]*Card
	MulliganDone bool
}

// UnitsInPlay counts occupied battlefield slots.
func (p *Player) UnitsInPlay() int {
	n := 0
	for _, card := range p.Battlefield {
		if card != nil {
			n++
		}
	}
	return n
}

// HasOpenSlot reports whether the given slot index is free.
func (p *Player) HasOpenSlot(slot int) bool {
	return slot >= 0 && slot < BattlefieldSlots && p.Battlefield[slot] == nil
}

// TauntUnits returns the card IDs of units with taunt on the battlefield.
func (p *Player) TauntUnits() []string {
	var out []string
	for _, card := range p.Battlefield {
		if card != nil && card.HasStatus(StatusTaunt) {
			out = append(out, card.ID)
		}
	}
	return out
}

func (p *Player) clone() *Player {
	out := *p
	out.Deck = cloneCards(p.Deck)
	out.Hand = cloneCards(p.Hand)
	out.Graveyard = cloneCards(p.Graveyard)
	for i, card := range p.Battlefield {
		out.Battlefield[i] = card.clone()
	}
	return &out
}

func cloneCards(cards []*Card) []*Card {
	if cards == nil {
		return nil
	}
	out := make([]*Card, len(cards))
	for i, card := range cards {
		out[i] = card.clone()
	}
	return out
}

// GameState is an immutable snapshot of a match. Actions never mutate a
// state they were handed; they clone, modify the clone, and return it.
type GameState struct {
	GameID    string
	Players   map[string]*Player
	Turn      rules.TurnState
	Winner    string
	Over      bool
	StartedAt time.Time
}

// NewGameState builds the starting snapshot for two players with the given
// decks. The first player in order acts first.
func NewGameState(gameID string, p1, p2 *Player) *GameState {
	return &GameState{
		GameID: gameID,
		Players: map[string]*Player{
			p1.ID: p1,
			p2.ID: p2,
		},
		Turn:      rules.NewTurnState(p1.ID, p2.ID),
		StartedAt: time.Now(),
	}
}

// Clone deep-copies the state.
func (s *GameState) Clone() *GameState {
	out := *s
	out.Players = make(map[string]*Player, len(s.Players))
	for id, player := range s.Players {
		out.Players[id] = player.clone()
	}
	return &out
}

// Player returns one side, or nil for unknown IDs.
func (s *GameState) Player(id string) *Player {
	return s.Players[id]
}

// FindCard searches every zone of every player for a card ID. The zone name
// is one of "deck", "hand", "graveyard", "battlefield".
func (s *GameState) FindCard(cardID string) (card *Card, owner *Player, zone string) {
	for _, player := range s.playersInOrder() {
		for _, c := range player.Hand {
			if c.ID == cardID {
				return c, player, "hand"
			}
		}
		for _, c := range player.Battlefield {
			if c != nil && c.ID == cardID {
				return c, player, "battlefield"
			}
		}
		for _, c := range player.Graveyard {
			if c.ID == cardID {
				return c, player, "graveyard"
			}
		}
		for _, c := range player.Deck {
			if c.ID == cardID {
				return c, player, "deck"
			}
		}
	}
	return nil, nil, ""
}

func (s *GameState) playersInOrder() []*Player {
	out := make([]*Player, 0, 2)
	for _, id := range s.Turn.Players {
		if p := s.Players[id]; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// GameContext snapshots the phase coordinates for event emission.
func (s *GameState) GameContext() rules.GameContext {
	return rules.GameContext{
		Phase: s.Turn.Phase,
		Turn:  s.Turn.Turn,
		Round: s.Turn.Round,
	}
}

// The following accessors satisfy the win-condition evaluator's state view.

func (s *GameState) PlayerIDs() [2]string { return s.Turn.Players }

func (s *GameState) Opponent(playerID string) string {
	if playerID == s.Turn.Players[0] {
		return s.Turn.Players[1]
	}
	return s.Turn.Players[0]
}

func (s *GameState) PlayerHealth(playerID string) int {
	if p := s.Players[playerID]; p != nil {
		return p.Health
	}
	return 0
}

func (s *GameState) DeckSize(playerID string) int {
	if p := s.Players[playerID]; p != nil {
		return len(p.Deck)
	}
	return 0
}

func (s *GameState) UnitsInPlay(playerID string) int {
	if p := s.Players[playerID]; p != nil {
		return p.UnitsInPlay()
	}
	return 0
}

func (s *GameState) PlayerMaxMana(playerID string) int {
	if p := s.Players[playerID]; p != nil {
		return p.MaxMana
	}
	return 0
}

func (s *GameState) TurnNumber() int { return s.Turn.Turn }

func (s *GameState) RoundNumber() int { return s.Turn.Round }
