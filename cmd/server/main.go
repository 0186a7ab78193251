package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/config"
	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game"
	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/game/rules"
	"github.com/abdul-hamid-achik/tarot-tcg-sub000/internal/repository"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsMessage is the envelope for both directions of the gateway protocol.
type wsMessage struct {
	Type     string          `json:"type"`
	GameID   string          `json:"game_id,omitempty"`
	PlayerID string          `json:"player_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type playCardData struct {
	CardID  string   `json:"card_id"`
	Slot    int      `json:"slot"`
	Targets []string `json:"targets,omitempty"`
}

type attackData struct {
	AttackerID string `json:"attacker_id"`
	TargetID   string `json:"target_id"`
}

type client struct {
	conn     *websocket.Conn
	send     chan []byte
	playerID string
	gameID   string
}

// session is one running game behind the gateway.
type session struct {
	mu     sync.Mutex
	engine *game.Engine
	state  *game.GameState
}

type hub struct {
	logger     *zap.Logger
	cfg        *config.Config
	stats      *repository.StatsRepository
	mu         sync.RWMutex
	clients    map[*client]bool
	sessions   map[string]*session
	register   chan *client
	unregister chan *client
}

func newHub(cfg *config.Config, stats *repository.StatsRepository, logger *zap.Logger) *hub {
	return &hub{
		logger:     logger,
		cfg:        cfg,
		stats:      stats,
		clients:    make(map[*client]bool),
		sessions:   make(map[string]*session),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("client connected", zap.String("player", c.playerID))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("client disconnected", zap.String("player", c.playerID))
		}
	}
}

// newSession builds an engine configured from the loaded config and wires
// its event stream into the broadcast path and the statistics collector.
func (h *hub) newSession(gameID string) *session {
	engine := game.NewEngine(h.logger,
		game.WithResolutionMode(rules.ResolutionMode(h.cfg.Game.ResolutionMode)),
		game.WithResolutionLimit(h.cfg.Game.ResolutionLimit),
		game.WithHistorySize(h.cfg.Game.HistorySize),
	)
	if err := engine.WinConditions().SetMode(h.cfg.Game.Mode); err != nil {
		h.logger.Warn("unknown game mode, using all conditions", zap.String("mode", h.cfg.Game.Mode))
	}
	if h.cfg.Game.YieldInterval > 0 {
		engine.Stack().SetYieldHook(h.cfg.Game.YieldInterval, runtime.Gosched)
	}

	sess := &session{engine: engine}

	collector := repository.NewCollector(func(summary repository.MatchSummary) {
		if h.stats == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.stats.SaveMatch(ctx, summary); err != nil {
			h.logger.Error("saving match statistics", zap.Error(err))
		}
	})
	collector.Attach(engine.Bus())

	// Forward every engine event to connected clients.
	engine.Bus().Subscribe(rules.EventFilter{}, func(event rules.Event) {
		h.broadcastEvent(gameID, event)
	}, rules.SubscriptionOptions{Priority: -100})

	h.mu.Lock()
	h.sessions[gameID] = sess
	h.mu.Unlock()
	return sess
}

func (h *hub) session(gameID string) *session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sessions[gameID]
}

func (h *hub) broadcastEvent(gameID string, event rules.Event) {
	msg, err := json.Marshal(map[string]any{
		"type":    "event",
		"game_id": gameID,
		"event":   event.Type,
		"turn":    event.Turn,
		"round":   event.Round,
		"phase":   event.Phase,
		"payload": event.Payload,
	})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.gameID != gameID {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *hub) broadcastViews(gameID string) {
	sess := h.session(gameID)
	if sess == nil {
		return
	}
	h.mu.RLock()
	recipients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c.gameID == gameID {
			recipients = append(recipients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		sess.mu.Lock()
		view := sess.engine.BuildGameView(sess.state, c.playerID)
		sess.mu.Unlock()
		msg, err := json.Marshal(map[string]any{
			"type":    "game_state",
			"game_id": gameID,
			"data":    view,
		})
		if err != nil {
			continue
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *hub) handleMessage(c *client, msg wsMessage) {
	switch msg.Type {
	case "create_game":
		gameID := msg.GameID
		if gameID == "" {
			gameID = "game-" + time.Now().Format("20060102-150405")
		}
		sess := h.newSession(gameID)
		c.gameID = gameID
		c.playerID = msg.PlayerID

		state, err := sess.engine.StartGame(gameID,
			demoPlayer("player1", "Arcanist"),
			demoPlayer("player2", "Hierophant"))
		if err != nil {
			h.sendError(c, err.Error())
			return
		}
		sess.mu.Lock()
		sess.state = state
		sess.mu.Unlock()
		h.broadcastViews(gameID)

	case "join_game":
		if h.session(msg.GameID) == nil {
			h.sendError(c, "unknown game "+msg.GameID)
			return
		}
		c.gameID = msg.GameID
		c.playerID = msg.PlayerID
		h.broadcastViews(msg.GameID)

	case "complete_mulligan":
		h.withSession(c, func(sess *session) (*game.GameState, error) {
			return sess.engine.CompleteMulligan(sess.state, c.playerID)
		})

	case "play_card":
		var data playCardData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(c, "bad play_card payload")
			return
		}
		h.withSession(c, func(sess *session) (*game.GameState, error) {
			return sess.engine.PlayCard(sess.state, c.playerID, data.CardID, data.Slot, data.Targets...)
		})

	case "declare_attack":
		var data attackData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			h.sendError(c, "bad declare_attack payload")
			return
		}
		h.withSession(c, func(sess *session) (*game.GameState, error) {
			return sess.engine.DeclareAttack(sess.state, c.playerID, data.AttackerID, data.TargetID)
		})

	case "end_turn":
		h.withSession(c, func(sess *session) (*game.GameState, error) {
			return sess.engine.EndTurn(sess.state, c.playerID)
		})

	case "pass_priority":
		h.withSession(c, func(sess *session) (*game.GameState, error) {
			return sess.engine.PassPriority(sess.state, c.playerID)
		})

	default:
		h.sendError(c, "unknown message type "+msg.Type)
	}
}

// withSession runs one engine action under the session lock and broadcasts
// the resulting views.
func (h *hub) withSession(c *client, action func(*session) (*game.GameState, error)) {
	sess := h.session(c.gameID)
	if sess == nil {
		h.sendError(c, "not in a game")
		return
	}
	sess.mu.Lock()
	next, err := action(sess)
	if err == nil {
		sess.state = next
	}
	sess.mu.Unlock()
	if err != nil {
		h.sendError(c, err.Error())
		return
	}
	h.broadcastViews(c.gameID)
}

func (h *hub) sendError(c *client, text string) {
	msg, err := json.Marshal(wsMessage{Type: "error", Error: text})
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (h *hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 32)}
	h.register <- c

	go c.writePump()
	go c.readPump(h)
}

func (c *client) readPump(h *hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(c, "bad message")
			continue
		}
		h.handleMessage(c, msg)
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// demoPlayer builds a starter deck of major arcana units and spells.
func demoPlayer(id, name string) *game.Player {
	player := &game.Player{
		ID:     id,
		Name:   name,
		Health: game.StartingHealth,
	}
	arcana := []struct {
		name          string
		cost, atk, hp int
		element       game.Element
	}{
		{"The Fool", 1, 1, 2, game.ElementAir},
		{"The Magician", 2, 2, 2, game.ElementFire},
		{"The High Priestess", 2, 1, 4, game.ElementWater},
		{"The Empress", 3, 2, 5, game.ElementEarth},
		{"The Emperor", 4, 4, 4, game.ElementFire},
		{"The Chariot", 5, 5, 4, game.ElementAir},
		{"Strength", 3, 3, 3, game.ElementFire},
		{"The Hermit", 2, 1, 3, game.ElementEarth},
		{"Justice", 4, 3, 5, game.ElementAir},
		{"The Star", 3, 2, 4, game.ElementWater},
	}
	for copyIdx := 0; copyIdx < 2; copyIdx++ {
		for i, a := range arcana {
			player.Deck = append(player.Deck, &game.Card{
				ID:            fmt.Sprintf("%s-%02d-%d", id, i, copyIdx),
				Name:          a.name,
				Type:          game.CardTypeUnit,
				Element:       a.element,
				Cost:          a.cost,
				Attack:        a.atk,
				Health:        a.hp,
				CurrentHealth: a.hp,
				Orientation:   game.OrientationUpright,
				OwnerID:       id,
			})
		}
	}
	return player
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tarot game server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var stats *repository.StatsRepository
	if cfg.Database.Enabled {
		pool, err := repository.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer pool.Close()
		stats = repository.NewStatsRepository(pool, logger)
		if err := stats.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure schema", zap.Error(err))
		}
		logger.Info("match statistics enabled")
	}

	h := newHub(cfg, stats, logger)
	go h.run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:    cfg.Server.WebSocketAddress,
		Handler: mux,
	}

	go func() {
		logger.Info("websocket gateway listening", zap.String("address", cfg.Server.WebSocketAddress))
		if serveErr := srv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(serveErr))
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	cancel()
	logger.Info("server stopped")
}

// initLogger initializes the zap logger based on configuration.
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
