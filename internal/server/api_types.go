package server

import (
	"errors"

	"gbridge-server/internal/cards"
	"gbridge-server/internal/game"
)

// WireSettings is the lobby settings shape clients send and receive.
// player_count travels as a word, not a number.
type WireSettings struct {
	PlayerCount     string `json:"player_count"`
	TurnTimeoutSecs int    `json:"turn_timeout_secs"`
	AllowReconnect  bool   `json:"allow_reconnect"`
}

var errBadSettings = errors.New("INVALID_SETTINGS: player_count must be \"Three\" or \"Four\" and turn_timeout_secs between 10 and 120")

func (w WireSettings) toGame() (game.Settings, error) {
	var count int
	switch w.PlayerCount {
	case "Three":
		count = 3
	case "Four":
		count = 4
	default:
		return game.Settings{}, errBadSettings
	}
	if w.TurnTimeoutSecs < 10 || w.TurnTimeoutSecs > 120 {
		return game.Settings{}, errBadSettings
	}
	return game.Settings{
		PlayerCount:     count,
		TurnTimeoutSecs: w.TurnTimeoutSecs,
		AllowReconnect:  w.AllowReconnect,
	}, nil
}

func settingsToWire(s game.Settings) WireSettings {
	count := "Four"
	if s.PlayerCount == 3 {
		count = "Three"
	}
	return WireSettings{
		PlayerCount:     count,
		TurnTimeoutSecs: s.TurnTimeoutSecs,
		AllowReconnect:  s.AllowReconnect,
	}
}

// LobbySummary is the public view of a lobby. Players are session ids
// in join order, the first slot always holding the host; usernames maps
// those ids to display names.
type LobbySummary struct {
	ID         string            `json:"id"`
	Host       string            `json:"host"`
	Players    []string          `json:"players"`
	Usernames  map[string]string `json:"usernames"`
	MaxPlayers int               `json:"max_players"`
	Settings   WireSettings      `json:"settings"`
}

// Inbound request payloads.

type CreateLobbyRequest struct {
	Settings WireSettings `json:"settings"`
}

type JoinLobbyRequest struct {
	LobbyID string `json:"lobby_id"`
}

type PlaceBidRequest struct {
	Bid game.Bid `json:"bid"`
}

type PlayCardRequest struct {
	Card cards.Card `json:"card"`
}

// Outbound payloads.

type ConnectedPayload struct {
	PlayerID string `json:"player_id"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type LobbyCreatedPayload struct {
	LobbyID string `json:"lobby_id"`
}

type LobbyPayload struct {
	Lobby LobbySummary `json:"lobby"`
}

type LobbyListPayload struct {
	Lobbies []LobbySummary `json:"lobbies"`
}

type GameStartingPayload struct {
	GameID string `json:"game_id"`
}

type GameStatePayload struct {
	State game.Snapshot `json:"state"`
}

type YourTurnPayload struct {
	ValidActions []game.Action `json:"valid_actions"`
}

type PlayerActionPayload struct {
	PlayerID   string      `json:"player_id"`
	Action     game.Action `json:"action"`
	NextPlayer string      `json:"next_player,omitempty"`
}

type TrickCompletePayload struct {
	Winner string `json:"winner"`
}

type GameOverPayload struct {
	FinalScores map[string]int `json:"final_scores"`
}

type PlayerEventPayload struct {
	PlayerID string `json:"player_id"`
}

// HTTP auth surface.

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token    string `json:"token"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type StatsResponse struct {
	Connections ConnStats `json:"connections"`
	Games       GameStats `json:"games"`
}

type ConnStats struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Inactive int `json:"inactive"`
}

type GameStats struct {
	ActiveGames int `json:"active_games"`
}
