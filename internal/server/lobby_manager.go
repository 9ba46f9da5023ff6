package server

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gbridge-server/internal/game"
)

type LobbyStatus string

const (
	LobbyOpen   LobbyStatus = "Open"
	LobbyClosed LobbyStatus = "Closed"
)

var (
	errLobbyNotFound    = errors.New("LOBBY_NOT_FOUND: Lobby not found")
	errLobbyFull        = errors.New("LOBBY_FULL: Lobby is full")
	errLobbyClosed      = errors.New("LOBBY_CLOSED: Lobby is no longer open")
	errNotHost          = errors.New("NOT_HOST: Only the host can start the game")
	errNotEnoughPlayers = errors.New("NOT_ENOUGH_PLAYERS: Lobby is not full yet")
	errNotLobbyMember   = errors.New("NOT_IN_LOBBY: Session is not in this lobby")
)

// Lobby holds the pre-game rendezvous. Players is join order and the
// host is always Players[0]; when the host leaves the next player in
// order inherits the slot.
type Lobby struct {
	mu        sync.Mutex
	ID        string
	Players   []string
	Usernames map[string]string
	Settings  game.Settings
	Status    LobbyStatus
	CreatedAt time.Time
}

// Summary renders the public view under the lobby lock.
func (l *Lobby) Summary() LobbySummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.summaryLocked()
}

func (l *Lobby) summaryLocked() LobbySummary {
	players := make([]string, len(l.Players))
	copy(players, l.Players)
	usernames := make(map[string]string, len(l.Usernames))
	for id, name := range l.Usernames {
		usernames[id] = name
	}
	host := ""
	if len(players) > 0 {
		host = players[0]
	}
	return LobbySummary{
		ID:         l.ID,
		Host:       host,
		Players:    players,
		Usernames:  usernames,
		MaxPlayers: l.Settings.PlayerCount,
		Settings:   settingsToWire(l.Settings),
	}
}

func (l *Lobby) members() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.Players))
	copy(out, l.Players)
	return out
}

type LobbyManager struct {
	mu      sync.RWMutex
	lobbies map[string]*Lobby
	log     *zap.Logger
}

func NewLobbyManager(log *zap.Logger) *LobbyManager {
	return &LobbyManager{
		lobbies: make(map[string]*Lobby),
		log:     log,
	}
}

// Create opens a lobby with the creator already seated as host.
func (lm *LobbyManager) Create(hostID, username string, settings game.Settings) *Lobby {
	lobby := &Lobby{
		ID:        uuid.NewString(),
		Players:   []string{hostID},
		Usernames: map[string]string{hostID: username},
		Settings:  settings,
		Status:    LobbyOpen,
		CreatedAt: time.Now(),
	}

	lm.mu.Lock()
	lm.lobbies[lobby.ID] = lobby
	lm.mu.Unlock()

	lm.log.Info("lobby created",
		zap.String("lobby_id", lobby.ID),
		zap.String("host", hostID),
		zap.Int("player_count", settings.PlayerCount))
	return lobby
}

func (lm *LobbyManager) Get(lobbyID string) (*Lobby, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	lobby, ok := lm.lobbies[lobbyID]
	if !ok {
		return nil, errLobbyNotFound
	}
	return lobby, nil
}

// Join seats the session. Joining a lobby you are already in just
// returns the lobby, so a creator's follow-up JoinLobby is harmless.
func (lm *LobbyManager) Join(lobbyID, sessionID, username string) (*Lobby, error) {
	lobby, err := lm.Get(lobbyID)
	if err != nil {
		return nil, err
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.Status != LobbyOpen {
		return nil, errLobbyClosed
	}
	for _, id := range lobby.Players {
		if id == sessionID {
			return lobby, nil
		}
	}
	if len(lobby.Players) >= lobby.Settings.PlayerCount {
		return nil, errLobbyFull
	}
	lobby.Players = append(lobby.Players, sessionID)
	lobby.Usernames[sessionID] = username
	return lobby, nil
}

// Leave unseats the session. The second return is the remaining member
// list; dropped is true when the lobby emptied and was removed.
func (lm *LobbyManager) Leave(lobbyID, sessionID string) (remaining []string, dropped bool, err error) {
	lobby, err := lm.Get(lobbyID)
	if err != nil {
		return nil, false, err
	}

	lobby.mu.Lock()
	idx := -1
	for i, id := range lobby.Players {
		if id == sessionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		lobby.mu.Unlock()
		return nil, false, errNotLobbyMember
	}
	lobby.Players = append(lobby.Players[:idx], lobby.Players[idx+1:]...)
	delete(lobby.Usernames, sessionID)
	remaining = make([]string, len(lobby.Players))
	copy(remaining, lobby.Players)
	empty := len(lobby.Players) == 0
	lobby.mu.Unlock()

	if empty {
		lm.Drop(lobbyID)
		return nil, true, nil
	}
	return remaining, false, nil
}

// Start validates the host and headcount, closes the lobby, and hands
// back the seating order for game creation.
func (lm *LobbyManager) Start(lobbyID, sessionID string) ([]string, game.Settings, error) {
	lobby, err := lm.Get(lobbyID)
	if err != nil {
		return nil, game.Settings{}, err
	}

	lobby.mu.Lock()
	defer lobby.mu.Unlock()

	if lobby.Status != LobbyOpen {
		return nil, game.Settings{}, errLobbyClosed
	}
	if len(lobby.Players) == 0 || lobby.Players[0] != sessionID {
		return nil, game.Settings{}, errNotHost
	}
	if len(lobby.Players) != lobby.Settings.PlayerCount {
		return nil, game.Settings{}, errNotEnoughPlayers
	}

	lobby.Status = LobbyClosed
	seating := make([]string, len(lobby.Players))
	copy(seating, lobby.Players)
	return seating, lobby.Settings, nil
}

// Drop removes the lobby outright.
func (lm *LobbyManager) Drop(lobbyID string) {
	lm.mu.Lock()
	delete(lm.lobbies, lobbyID)
	lm.mu.Unlock()
}

// List returns summaries of open lobbies.
func (lm *LobbyManager) List() []LobbySummary {
	lm.mu.RLock()
	lobbies := make([]*Lobby, 0, len(lm.lobbies))
	for _, l := range lm.lobbies {
		lobbies = append(lobbies, l)
	}
	lm.mu.RUnlock()

	out := make([]LobbySummary, 0, len(lobbies))
	for _, l := range lobbies {
		l.mu.Lock()
		if l.Status == LobbyOpen {
			out = append(out, l.summaryLocked())
		}
		l.mu.Unlock()
	}
	return out
}
