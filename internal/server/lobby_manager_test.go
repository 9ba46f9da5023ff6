package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"gbridge-server/internal/game"
)

func threePlayerSettings() game.Settings {
	return game.Settings{PlayerCount: 3, TurnTimeoutSecs: 30, AllowReconnect: true}
}

func TestLobby_CreateSeatsHost(t *testing.T) {
	assert := assert.New(t)
	lm := NewLobbyManager(zap.NewNop())

	lobby := lm.Create("s1", "alice", threePlayerSettings())
	summary := lobby.Summary()

	assert.Equal("s1", summary.Host)
	assert.Equal([]string{"s1"}, summary.Players)
	assert.Equal(3, summary.MaxPlayers)
	assert.Equal("Three", summary.Settings.PlayerCount)

	got, err := lm.Get(lobby.ID)
	assert.NoError(err)
	assert.Equal(lobby, got)
}

func TestLobby_JoinUntilFull(t *testing.T) {
	assert := assert.New(t)
	lm := NewLobbyManager(zap.NewNop())
	lobby := lm.Create("s1", "alice", threePlayerSettings())

	_, err := lm.Join(lobby.ID, "s2", "bob")
	assert.NoError(err)
	_, err = lm.Join(lobby.ID, "s3", "carol")
	assert.NoError(err)

	_, err = lm.Join(lobby.ID, "s4", "dave")
	assert.ErrorIs(err, errLobbyFull)

	// Rejoining is idempotent, no duplicate seat.
	_, err = lm.Join(lobby.ID, "s2", "bob")
	assert.NoError(err)
	assert.Equal([]string{"s1", "s2", "s3"}, lobby.Summary().Players)
}

func TestLobby_JoinUnknown(t *testing.T) {
	assert := assert.New(t)
	lm := NewLobbyManager(zap.NewNop())

	_, err := lm.Join("missing", "s1", "alice")
	assert.ErrorIs(err, errLobbyNotFound)
}

func TestLobby_LeaveElectsNewHost(t *testing.T) {
	assert := assert.New(t)
	lm := NewLobbyManager(zap.NewNop())
	lobby := lm.Create("s1", "alice", threePlayerSettings())
	_, err := lm.Join(lobby.ID, "s2", "bob")
	assert.NoError(err)

	remaining, dropped, err := lm.Leave(lobby.ID, "s1")
	assert.NoError(err)
	assert.False(dropped)
	assert.Equal([]string{"s2"}, remaining)
	assert.Equal("s2", lobby.Summary().Host)

	_, _, err = lm.Leave(lobby.ID, "s1")
	assert.ErrorIs(err, errNotLobbyMember)
}

func TestLobby_LastLeaveDropsLobby(t *testing.T) {
	assert := assert.New(t)
	lm := NewLobbyManager(zap.NewNop())
	lobby := lm.Create("s1", "alice", threePlayerSettings())

	_, dropped, err := lm.Leave(lobby.ID, "s1")
	assert.NoError(err)
	assert.True(dropped)

	_, err = lm.Get(lobby.ID)
	assert.ErrorIs(err, errLobbyNotFound)
}

func TestLobby_StartChecks(t *testing.T) {
	assert := assert.New(t)
	lm := NewLobbyManager(zap.NewNop())
	lobby := lm.Create("s1", "alice", threePlayerSettings())
	_, err := lm.Join(lobby.ID, "s2", "bob")
	assert.NoError(err)

	_, _, err = lm.Start(lobby.ID, "s1")
	assert.ErrorIs(err, errNotEnoughPlayers)

	_, err = lm.Join(lobby.ID, "s3", "carol")
	assert.NoError(err)

	_, _, err = lm.Start(lobby.ID, "s2")
	assert.ErrorIs(err, errNotHost)

	seating, settings, err := lm.Start(lobby.ID, "s1")
	assert.NoError(err)
	assert.Equal([]string{"s1", "s2", "s3"}, seating)
	assert.Equal(3, settings.PlayerCount)

	// Closed lobby rejects joins and a second start.
	_, err = lm.Join(lobby.ID, "s4", "dave")
	assert.ErrorIs(err, errLobbyClosed)
	_, _, err = lm.Start(lobby.ID, "s1")
	assert.ErrorIs(err, errLobbyClosed)
}

func TestLobby_ListOnlyOpen(t *testing.T) {
	assert := assert.New(t)
	lm := NewLobbyManager(zap.NewNop())

	open := lm.Create("s1", "alice", threePlayerSettings())
	closed := lm.Create("s2", "bob", threePlayerSettings())
	_, err := lm.Join(closed.ID, "s3", "carol")
	assert.NoError(err)
	_, err = lm.Join(closed.ID, "s4", "dave")
	assert.NoError(err)
	_, _, err = lm.Start(closed.ID, "s2")
	assert.NoError(err)

	list := lm.List()
	assert.Len(list, 1)
	assert.Equal(open.ID, list[0].ID)
}
