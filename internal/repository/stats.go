// Package repository persists match statistics to PostgreSQL.
package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/rules"
)

// MatchSummary is the aggregate written once per finished game.
type MatchSummary struct {
	GameID          string
	WinnerID        string
	WinCondition    string
	Turns           int
	Rounds          int
	UnitsSummoned   int
	SpellsCast      int
	AttacksDeclared int
	DamageByPlayer  map[string]int
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Collector accumulates a match summary from the engine's event stream. It
// holds no database handle; the caller decides what to do with finished
// summaries.
type Collector struct {
	mu       sync.Mutex
	current  MatchSummary
	finished []MatchSummary
	onFinish func(MatchSummary)
}

// NewCollector creates a collector. The optional onFinish callback fires
// once per game-over event with the completed summary.
func NewCollector(onFinish func(MatchSummary)) *Collector {
	return &Collector{
		current:  MatchSummary{DamageByPlayer: make(map[string]int)},
		onFinish: onFinish,
	}
}

// Attach subscribes the collector to the bus. The returned ID can be passed
// to Unsubscribe to detach.
func (c *Collector) Attach(bus *rules.EventBus) string {
	return bus.Subscribe(rules.EventFilter{}, c.observe, rules.SubscriptionOptions{})
}

func (c *Collector) observe(event rules.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if event.Turn > c.current.Turns {
		c.current.Turns = event.Turn
	}
	if event.Round > c.current.Rounds {
		c.current.Rounds = event.Round
	}

	switch payload := event.Payload.(type) {
	case rules.GamePayload:
		switch event.Type {
		case rules.EventGameStarted:
			c.current = MatchSummary{
				GameID:         payload.GameID,
				DamageByPlayer: make(map[string]int),
				StartedAt:      event.Timestamp,
			}
		case rules.EventGameOver:
			c.current.WinnerID = payload.WinnerID
			c.current.WinCondition = payload.ConditionID
			c.current.FinishedAt = event.Timestamp
			done := c.current
			c.finished = append(c.finished, done)
			if c.onFinish != nil {
				c.onFinish(done)
			}
		}
	case rules.UnitPayload:
		if event.Type == rules.EventUnitSummoned {
			c.current.UnitsSummoned++
		}
	case rules.ResourcePayload:
		if event.Type == rules.EventPlayerDamaged {
			// Keyed by the player who received the damage.
			c.current.DamageByPlayer[payload.PlayerID] += -payload.Delta
		}
	case rules.CombatPayload:
		if event.Type == rules.EventAttackDeclared {
			c.current.AttacksDeclared++
		}
	case rules.StackPayload:
		if event.Type == rules.EventStackItemResolved && payload.Kind == rules.StackItemSpell {
			c.current.SpellsCast++
		}
	}
}

// Finished returns the summaries completed so far.
func (c *Collector) Finished() []MatchSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]MatchSummary, len(c.finished))
	copy(out, c.finished)
	return out
}

// Current returns a copy of the in-progress summary.
func (c *Collector) Current() MatchSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.current
	out.DamageByPlayer = make(map[string]int, len(c.current.DamageByPlayer))
	for k, v := range c.current.DamageByPlayer {
		out.DamageByPlayer[k] = v
	}
	return out
}

// StatsRepository writes match summaries to PostgreSQL.
type StatsRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStatsRepository connects a pool to the repository.
func NewStatsRepository(pool *pgxpool.Pool, logger *zap.Logger) *StatsRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsRepository{pool: pool, logger: logger}
}

// Connect opens a pgx pool against the configured URL and verifies it.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the match_stats table when absent.
func (r *StatsRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS match_stats (
			game_id          TEXT PRIMARY KEY,
			winner_id        TEXT NOT NULL,
			win_condition    TEXT NOT NULL,
			turns            INT NOT NULL,
			rounds           INT NOT NULL,
			units_summoned   INT NOT NULL,
			spells_cast      INT NOT NULL,
			attacks_declared INT NOT NULL,
			started_at       TIMESTAMPTZ NOT NULL,
			finished_at      TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("creating match_stats table: %w", err)
	}
	return nil
}

// SaveMatch upserts one finished match summary.
func (r *StatsRepository) SaveMatch(ctx context.Context, summary MatchSummary) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO match_stats (
			game_id, winner_id, win_condition, turns, rounds,
			units_summoned, spells_cast, attacks_declared, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (game_id) DO UPDATE SET
			winner_id = EXCLUDED.winner_id,
			win_condition = EXCLUDED.win_condition,
			turns = EXCLUDED.turns,
			rounds = EXCLUDED.rounds,
			units_summoned = EXCLUDED.units_summoned,
			spells_cast = EXCLUDED.spells_cast,
			attacks_declared = EXCLUDED.attacks_declared,
			finished_at = EXCLUDED.finished_at`,
		summary.GameID, summary.WinnerID, summary.WinCondition,
		summary.Turns, summary.Rounds, summary.UnitsSummoned,
		summary.SpellsCast, summary.AttacksDeclared,
		summary.StartedAt, summary.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("saving match %s: %w", summary.GameID, err)
	}
	r.logger.Info("match statistics saved",
		zap.String("game_id", summary.GameID),
		zap.String("winner", summary.WinnerID))
	return nil
}

// WinRate returns wins and total finished games for one player.
func (r *StatsRepository) WinRate(ctx context.Context, playerID string) (wins, total int, err error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE winner_id = $1),
			COUNT(*)
		FROM match_stats`, playerID)
	if err := row.Scan(&wins, &total); err != nil {
		return 0, 0, fmt.Errorf("querying win rate: %w", err)
	}
	return wins, total, nil
}
