package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"gbridge-server/internal/cards"
	"gbridge-server/internal/game"
	"gbridge-server/internal/store"
)

var errGameNotFound = errors.New("GAME_NOT_FOUND: Game not found")

// completedGameGrace keeps a finished game around so late
// RequestGameState calls still see the final scores.
const completedGameGrace = 2 * time.Minute

// activeGame pairs the engine with its turn deadline. timerGen is a
// generation counter: every legal action or reschedule bumps it, and a
// firing timer that finds a different generation does nothing. That is
// the whole cancellation story, no timer handles to juggle.
type activeGame struct {
	mu          sync.Mutex
	game        *game.Game
	timerGen    uint64
	completedAt time.Time
}

// GameManager owns every running game. Outbound traffic goes through
// the send/broadcast funcs so the manager never touches sockets, which
// keeps the lock order one-way: game lock, then session lock.
type GameManager struct {
	mu    sync.RWMutex
	games map[string]*activeGame

	log   *zap.Logger
	store store.Store

	send          func(sessionID string, msg ServerMessage)
	broadcast     func(sessionIDs []string, msg ServerMessage)
	sessionExists func(sessionID string) bool
}

func NewGameManager(log *zap.Logger, st store.Store,
	send func(string, ServerMessage),
	broadcast func([]string, ServerMessage),
	sessionExists func(string) bool) *GameManager {
	return &GameManager{
		games:         make(map[string]*activeGame),
		log:           log,
		store:         st,
		send:          send,
		broadcast:     broadcast,
		sessionExists: sessionExists,
	}
}

// Create deals round 1 and announces the game: GameStarting to all,
// then a personalized GameState each, then YourTurn to the first
// bidder, with the deadline armed before anyone sees a message. The
// caller picks the id so it can point every session at the game before
// the announcements go out.
func (gm *GameManager) Create(gameID string, seating []string, settings game.Settings) error {
	g, err := game.New(gameID, seating, settings)
	if err != nil {
		return err
	}
	ag := &activeGame{game: g}

	gm.mu.Lock()
	gm.games[gameID] = ag
	gm.mu.Unlock()

	ag.mu.Lock()
	gm.broadcast(seating, ServerMessage{Type: "GameStarting", Payload: GameStartingPayload{GameID: gameID}})
	gm.broadcastState(ag)
	gm.sendYourTurn(ag)
	gm.scheduleDeadline(ag)
	gm.saveSnapshot(ag)
	ag.mu.Unlock()

	gm.log.Info("game created",
		zap.String("game_id", gameID),
		zap.Int("players", len(seating)))
	return nil
}

func (gm *GameManager) get(gameID string) (*activeGame, error) {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	ag, ok := gm.games[gameID]
	if !ok {
		return nil, errGameNotFound
	}
	return ag, nil
}

// SettingsFor is used by the reconnect grace calculation.
func (gm *GameManager) SettingsFor(gameID string) (game.Settings, bool) {
	ag, err := gm.get(gameID)
	if err != nil {
		return game.Settings{}, false
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()
	return ag.game.Settings, true
}

func (gm *GameManager) PlaceBid(gameID, sessionID string, tricks int) error {
	ag, err := gm.get(gameID)
	if err != nil {
		return err
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()

	out, err := ag.game.SubmitBid(sessionID, tricks)
	if err != nil {
		return err
	}
	gm.applyOutcome(ag, sessionID, out)
	return nil
}

func (gm *GameManager) PlayCard(gameID, sessionID string, card cards.Card) error {
	ag, err := gm.get(gameID)
	if err != nil {
		return err
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()

	out, err := ag.game.PlayCard(sessionID, card)
	if err != nil {
		return err
	}
	gm.applyOutcome(ag, sessionID, out)
	return nil
}

func (gm *GameManager) StartNextRound(gameID, sessionID string) error {
	ag, err := gm.get(gameID)
	if err != nil {
		return err
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()

	out, err := ag.game.StartNextRound(sessionID)
	if err != nil {
		return err
	}
	gm.applyOutcome(ag, sessionID, out)
	return nil
}

// State returns a personalized snapshot plus the viewer's legal actions.
func (gm *GameManager) State(gameID, sessionID string) (game.Snapshot, []game.Action, error) {
	ag, err := gm.get(gameID)
	if err != nil {
		return game.Snapshot{}, nil, err
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()

	if !ag.game.IsSeated(sessionID) {
		return game.Snapshot{}, nil, game.ErrNotInGame
	}
	return ag.game.Snapshot(sessionID), ag.game.ValidActions(sessionID), nil
}

// Seating returns the fixed player order, for broadcasts outside the
// action path.
func (gm *GameManager) Seating(gameID string) ([]string, error) {
	ag, err := gm.get(gameID)
	if err != nil {
		return nil, err
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()
	return append([]string(nil), ag.game.Seating...), nil
}

// applyOutcome translates a successful engine call into broadcasts and
// the next deadline. Caller holds ag.mu; every message is enqueued
// before the lock is released so clients observe a single serial order.
func (gm *GameManager) applyOutcome(ag *activeGame, actor string, out game.Outcome) {
	ag.timerGen++ // cancels the pending deadline

	seating := ag.game.Seating
	if out.Action.PlayCard != nil || out.Action.Bid != nil {
		gm.broadcast(seating, ServerMessage{Type: "PlayerAction", Payload: PlayerActionPayload{
			PlayerID:   actor,
			Action:     out.Action,
			NextPlayer: out.NextPlayer,
		}})
	}
	if out.TrickWinner != "" {
		gm.broadcast(seating, ServerMessage{Type: "TrickComplete", Payload: TrickCompletePayload{
			Winner: out.TrickWinner,
		}})
	}

	gm.broadcastState(ag)

	switch ag.game.Phase {
	case game.PhaseBidding, game.PhasePlaying:
		gm.sendYourTurn(ag)
		gm.scheduleDeadline(ag)
	case game.PhaseRoundComplete:
		// No deadline here: the round winner starts the next round
		// whenever they like, the fresh GameState already marks them
		// as current player.
	case game.PhaseGameComplete:
		scores := make(map[string]int, len(ag.game.TotalScores))
		for p, s := range ag.game.TotalScores {
			scores[p] = s
		}
		gm.broadcast(seating, ServerMessage{Type: "GameOver", Payload: GameOverPayload{
			FinalScores: scores,
		}})
		ag.completedAt = time.Now()
	}

	if out.RoundCompleted || out.GameCompleted {
		gm.saveSnapshot(ag)
	}
}

// broadcastState sends each seated player their own view. Caller holds
// ag.mu; Snapshot copies everything so the payloads stay isolated.
func (gm *GameManager) broadcastState(ag *activeGame) {
	for _, p := range ag.game.Seating {
		gm.send(p, ServerMessage{Type: "GameState", Payload: GameStatePayload{
			State: ag.game.Snapshot(p),
		}})
	}
}

func (gm *GameManager) sendYourTurn(ag *activeGame) {
	current := ag.game.CurrentPlayer()
	actions := ag.game.ValidActions(current)
	if len(actions) == 0 {
		return
	}
	gm.send(current, ServerMessage{Type: "YourTurn", Payload: YourTurnPayload{
		ValidActions: actions,
	}})
}

// scheduleDeadline arms the turn timer. Caller holds ag.mu. The
// deadline is absolute and survives reconnects: nothing on the
// connection path ever touches it.
func (gm *GameManager) scheduleDeadline(ag *activeGame) {
	ag.timerGen++
	gen := ag.timerGen
	timeout := time.Duration(ag.game.Settings.TurnTimeoutSecs) * time.Second
	gameID := ag.game.ID
	time.AfterFunc(timeout, func() {
		gm.fireDeadline(gameID, gen)
	})
}

func (gm *GameManager) fireDeadline(gameID string, gen uint64) {
	ag, err := gm.get(gameID)
	if err != nil {
		return
	}
	ag.mu.Lock()
	defer ag.mu.Unlock()

	if ag.timerGen != gen {
		// A legal action won the race, or the timer was rescheduled.
		return
	}
	action, ok := ag.game.AutoAction()
	if !ok {
		return
	}
	actor := ag.game.CurrentPlayer()
	out, err := ag.game.Apply(actor, action)
	if err != nil {
		gm.log.Warn("auto action rejected",
			zap.String("game_id", gameID),
			zap.String("player_id", actor),
			zap.Error(err))
		return
	}
	gm.log.Info("turn timed out, default action applied",
		zap.String("game_id", gameID),
		zap.String("player_id", actor))
	gm.applyOutcome(ag, actor, out)
}

// HandleSessionExpired tells the remaining players and tears the game
// down once nobody seated still has a session.
func (gm *GameManager) HandleSessionExpired(gameID, sessionID string) {
	ag, err := gm.get(gameID)
	if err != nil {
		return
	}

	ag.mu.Lock()
	seating := append([]string(nil), ag.game.Seating...)
	ag.mu.Unlock()

	others := make([]string, 0, len(seating))
	anyLeft := false
	for _, p := range seating {
		if p == sessionID {
			continue
		}
		others = append(others, p)
		if gm.sessionExists(p) {
			anyLeft = true
		}
	}
	gm.broadcast(others, ServerMessage{Type: "PlayerLeft", Payload: PlayerEventPayload{
		PlayerID: sessionID,
	}})

	if !anyLeft {
		gm.drop(gameID)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := gm.store.DeleteGameSnapshot(ctx, gameID); err != nil {
				gm.log.Warn("delete game snapshot", zap.String("game_id", gameID), zap.Error(err))
			}
		}()
		gm.log.Info("game abandoned, all sessions gone", zap.String("game_id", gameID))
	}
}

func (gm *GameManager) drop(gameID string) {
	gm.mu.Lock()
	ag, ok := gm.games[gameID]
	if ok {
		delete(gm.games, gameID)
	}
	gm.mu.Unlock()
	if ok {
		ag.mu.Lock()
		ag.timerGen++ // disarm any pending deadline
		ag.mu.Unlock()
	}
}

// DropCompleted removes finished games past the retention grace.
func (gm *GameManager) DropCompleted() {
	cutoff := time.Now().Add(-completedGameGrace)

	gm.mu.RLock()
	ids := make([]string, 0, len(gm.games))
	for id, ag := range gm.games {
		ag.mu.Lock()
		done := !ag.completedAt.IsZero() && ag.completedAt.Before(cutoff)
		ag.mu.Unlock()
		if done {
			ids = append(ids, id)
		}
	}
	gm.mu.RUnlock()

	for _, id := range ids {
		gm.drop(id)
		gm.log.Info("completed game dropped", zap.String("game_id", id))
	}
}

// saveSnapshot marshals under the game lock and writes asynchronously.
// Persistence is advisory, failures are logged and play continues.
func (gm *GameManager) saveSnapshot(ag *activeGame) {
	state, err := json.Marshal(ag.game)
	if err != nil {
		gm.log.Error("marshal game snapshot", zap.String("game_id", ag.game.ID), zap.Error(err))
		return
	}
	gameID := ag.game.ID
	status := string(ag.game.Phase)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := gm.store.SaveGameSnapshot(ctx, gameID, status, state); err != nil {
			gm.log.Warn("save game snapshot", zap.String("game_id", gameID), zap.Error(err))
		}
	}()
}

// SaveAll flushes every running game, used by the periodic save task
// and shutdown.
func (gm *GameManager) SaveAll(ctx context.Context) {
	gm.mu.RLock()
	games := make([]*activeGame, 0, len(gm.games))
	for _, ag := range gm.games {
		games = append(games, ag)
	}
	gm.mu.RUnlock()

	for _, ag := range games {
		ag.mu.Lock()
		state, err := json.Marshal(ag.game)
		gameID := ag.game.ID
		status := string(ag.game.Phase)
		ag.mu.Unlock()
		if err != nil {
			gm.log.Error("marshal game snapshot", zap.String("game_id", gameID), zap.Error(err))
			continue
		}
		if err := gm.store.SaveGameSnapshot(ctx, gameID, status, state); err != nil {
			gm.log.Warn("save game snapshot", zap.String("game_id", gameID), zap.Error(err))
		}
	}
}

func (gm *GameManager) Stats() GameStats {
	gm.mu.RLock()
	defer gm.mu.RUnlock()
	active := 0
	for _, ag := range gm.games {
		ag.mu.Lock()
		if ag.game.Phase != game.PhaseGameComplete {
			active++
		}
		ag.mu.Unlock()
	}
	return GameStats{ActiveGames: active}
}
