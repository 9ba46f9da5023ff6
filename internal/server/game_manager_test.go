package server

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gbridge-server/internal/game"
	"gbridge-server/internal/store"
)

// recorder captures everything the manager tried to send, in order.
type recorder struct {
	mu   sync.Mutex
	sent []sentMessage
}

type sentMessage struct {
	to  string
	msg ServerMessage
}

func (r *recorder) send(sessionID string, msg ServerMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{to: sessionID, msg: msg})
}

func (r *recorder) broadcast(ids []string, msg ServerMessage) {
	for _, id := range ids {
		r.send(id, msg)
	}
}

// typesFor lists message types delivered to one session, in order.
func (r *recorder) typesFor(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.sent {
		if m.to == sessionID {
			out = append(out, m.msg.Type)
		}
	}
	return out
}

// countActionsBy counts PlayerAction broadcasts attributed to a player,
// as seen by one observer.
func (r *recorder) countActionsBy(observer, player string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, m := range r.sent {
		if m.to != observer || m.msg.Type != "PlayerAction" {
			continue
		}
		if payload, ok := m.msg.Payload.(PlayerActionPayload); ok && payload.PlayerID == player {
			count++
		}
	}
	return count
}

func newTestGM(t *testing.T) (*GameManager, *recorder) {
	t.Helper()
	rec := &recorder{}
	gm := NewGameManager(zap.NewNop(), store.NewMemoryStore(),
		rec.send, rec.broadcast,
		func(string) bool { return true })
	return gm, rec
}

func testGameSettings(timeoutSecs int) game.Settings {
	return game.Settings{PlayerCount: 3, TurnTimeoutSecs: timeoutSecs, AllowReconnect: true}
}

func TestCreate_AnnouncesGame(t *testing.T) {
	assert := assert.New(t)
	gm, rec := newTestGM(t)

	gameID := "g-announce"
	assert.NoError(gm.Create(gameID, []string{"p1", "p2", "p3"}, testGameSettings(30)))

	// Everyone gets GameStarting then their GameState; the first
	// bidder (left of the dealer at seat 0) also gets YourTurn.
	assert.Equal([]string{"GameStarting", "GameState"}, rec.typesFor("p1"))
	assert.Equal([]string{"GameStarting", "GameState", "YourTurn"}, rec.typesFor("p2"))
	assert.Equal([]string{"GameStarting", "GameState"}, rec.typesFor("p3"))

	snap, actions, err := gm.State(gameID, "p2")
	assert.NoError(err)
	assert.Equal(game.PhaseBidding, snap.Phase)
	assert.Equal("p2", snap.CurrentPlayer)
	assert.True(snap.YourTurn)
	assert.Len(snap.YourHand, 1) // round 1 deals one card
	// Round 1 allows bidding 0 or 1.
	assert.Len(actions, 2)
}

func TestState_RejectsOutsiders(t *testing.T) {
	assert := assert.New(t)
	gm, _ := newTestGM(t)

	gameID := "g-outsiders"
	assert.NoError(gm.Create(gameID, []string{"p1", "p2", "p3"}, testGameSettings(30)))

	_, _, err := gm.State(gameID, "stranger")
	assert.ErrorIs(err, game.ErrNotInGame)

	_, _, err = gm.State("missing", "p1")
	assert.ErrorIs(err, errGameNotFound)
}

func TestPlaceBid_EnforcesTurnOrder(t *testing.T) {
	assert := assert.New(t)
	gm, rec := newTestGM(t)

	gameID := "g-turn-order"
	assert.NoError(gm.Create(gameID, []string{"p1", "p2", "p3"}, testGameSettings(30)))

	err := gm.PlaceBid(gameID, "p1", 0)
	assert.ErrorIs(err, game.ErrNotYourTurn)

	assert.NoError(gm.PlaceBid(gameID, "p2", 0))
	assert.Equal(1, rec.countActionsBy("p1", "p2"))
}

func TestFullRound_ThroughManager(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	gm, rec := newTestGM(t)
	players := []string{"p1", "p2", "p3"}

	gameID := "g-full-round"
	require.NoError(gm.Create(gameID, players, testGameSettings(30)))

	// Bidding: first two bid 0, the dealer may not bring the sum to 1.
	require.NoError(gm.PlaceBid(gameID, "p2", 0))
	require.NoError(gm.PlaceBid(gameID, "p3", 0))
	err := gm.PlaceBid(gameID, "p1", 1)
	assert.ErrorIs(err, game.ErrInvalidBid)
	require.NoError(gm.PlaceBid(gameID, "p1", 0))

	snap, _, err := gm.State(gameID, "p2")
	require.NoError(err)
	assert.Equal(game.PhasePlaying, snap.Phase)

	// Each player plays their single card, always following the
	// current player pointer.
	for i := 0; i < len(players); i++ {
		current := currentPlayer(t, gm, gameID)
		snap, _, err := gm.State(gameID, current)
		require.NoError(err)
		require.Len(snap.YourHand, 1)
		require.NoError(gm.PlayCard(gameID, current, snap.YourHand[0]))
	}

	snap, _, err = gm.State(gameID, "p1")
	require.NoError(err)
	assert.Equal(game.PhaseRoundComplete, snap.Phase)
	assert.Len(snap.History, 1)

	// The trick completion reached everyone.
	assert.Contains(rec.typesFor("p3"), "TrickComplete")

	// The trick winner starts round two.
	winner := snap.CurrentPlayer
	require.NoError(gm.StartNextRound(gameID, winner))

	snap, _, err = gm.State(gameID, winner)
	require.NoError(err)
	assert.Equal(game.PhaseBidding, snap.Phase)
	assert.Equal(2, snap.RoundNumber)
	assert.Len(snap.YourHand, 2)
}

func currentPlayer(t *testing.T, gm *GameManager, gameID string) string {
	t.Helper()
	ag, err := gm.get(gameID)
	require.NoError(t, err)
	ag.mu.Lock()
	defer ag.mu.Unlock()
	return ag.game.CurrentPlayer()
}

func TestDeadline_AppliesDefaultBid(t *testing.T) {
	assert := assert.New(t)
	gm, rec := newTestGM(t)

	gameID := "g-deadline"
	assert.NoError(gm.Create(gameID, []string{"p1", "p2", "p3"}, testGameSettings(1)))

	// Nobody acts; the scheduler bids for the first bidder.
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(1, rec.countActionsBy("p1", "p2"))

	snap, _, err := gm.State(gameID, "p3")
	assert.NoError(err)
	assert.Equal("p3", snap.CurrentPlayer)
}

func TestDeadline_CancelledByLegalAction(t *testing.T) {
	assert := assert.New(t)
	gm, rec := newTestGM(t)

	gameID := "g-cancelled"
	assert.NoError(gm.Create(gameID, []string{"p1", "p2", "p3"}, testGameSettings(1)))

	// p2 acts inside the window; the pending timer must not fire a
	// second action for them.
	assert.NoError(gm.PlaceBid(gameID, "p2", 0))
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(1, rec.countActionsBy("p1", "p2"))
	// The rescheduled deadline auto-bid for p3 instead.
	assert.Equal(1, rec.countActionsBy("p1", "p3"))
}

func TestHandleSessionExpired_DropsAbandonedGame(t *testing.T) {
	assert := assert.New(t)
	rec := &recorder{}
	gm := NewGameManager(zap.NewNop(), store.NewMemoryStore(),
		rec.send, rec.broadcast,
		func(string) bool { return false }) // every session already gone

	gameID := "g-abandoned"
	assert.NoError(gm.Create(gameID, []string{"p1", "p2", "p3"}, testGameSettings(30)))

	gm.HandleSessionExpired(gameID, "p1")

	assert.Contains(rec.typesFor("p2"), "PlayerLeft")
	assert.Contains(rec.typesFor("p3"), "PlayerLeft")

	_, _, err := gm.State(gameID, "p2")
	assert.ErrorIs(err, errGameNotFound)
}

func TestStats_CountsActiveGames(t *testing.T) {
	assert := assert.New(t)
	gm, _ := newTestGM(t)

	assert.Equal(0, gm.Stats().ActiveGames)
	assert.NoError(gm.Create("g-stats", []string{"p1", "p2", "p3"}, testGameSettings(30)))
	assert.Equal(1, gm.Stats().ActiveGames)
}
