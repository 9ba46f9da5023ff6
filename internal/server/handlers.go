package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (s *Server) handleCreateLobby(sess *Session, payload json.RawMessage) {
	var req CreateLobbyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(sess.ID, "BAD_MESSAGE: Invalid CreateLobby payload")
		return
	}
	if req.Settings.TurnTimeoutSecs == 0 {
		req.Settings.TurnTimeoutSecs = s.cfg.TurnTimeoutSecs
	}
	settings, err := req.Settings.toGame()
	if err != nil {
		s.sendError(sess.ID, err.Error())
		return
	}
	if sess.GameID() != "" {
		s.sendError(sess.ID, "ALREADY_IN_GAME: Finish or leave your game first")
		return
	}
	if sess.LobbyID() != "" {
		s.sendError(sess.ID, "ALREADY_IN_LOBBY: Leave your lobby first")
		return
	}

	lobby := s.lobbies.Create(sess.ID, sess.Username, settings)
	sess.setLobby(lobby.ID)
	s.saveLobby(lobby)

	s.connections.Send(sess.ID, ServerMessage{Type: "LobbyCreated", Payload: LobbyCreatedPayload{
		LobbyID: lobby.ID,
	}})
}

func (s *Server) handleJoinLobby(sess *Session, payload json.RawMessage) {
	var req JoinLobbyRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(sess.ID, "BAD_MESSAGE: Invalid JoinLobby payload")
		return
	}
	if sess.GameID() != "" {
		s.sendError(sess.ID, "ALREADY_IN_GAME: Finish or leave your game first")
		return
	}
	if current := sess.LobbyID(); current != "" && current != req.LobbyID {
		s.sendError(sess.ID, "ALREADY_IN_LOBBY: Leave your lobby first")
		return
	}

	alreadyMember := sess.LobbyID() == req.LobbyID
	lobby, err := s.lobbies.Join(req.LobbyID, sess.ID, sess.Username)
	if err != nil {
		s.sendError(sess.ID, err.Error())
		return
	}
	sess.setLobby(lobby.ID)

	summary := lobby.Summary()
	s.connections.Send(sess.ID, ServerMessage{Type: "LobbyJoined", Payload: LobbyPayload{
		Lobby: summary,
	}})
	if alreadyMember {
		return
	}

	others := withoutID(summary.Players, sess.ID)
	s.connections.Broadcast(others, ServerMessage{Type: "PlayerJoined", Payload: PlayerEventPayload{
		PlayerID: sess.ID,
	}})
	s.connections.Broadcast(others, ServerMessage{Type: "LobbyUpdated", Payload: LobbyPayload{
		Lobby: summary,
	}})
	s.saveLobby(lobby)
}

func (s *Server) handleLeaveLobby(sess *Session) {
	lobbyID := sess.LobbyID()
	if lobbyID == "" {
		s.sendError(sess.ID, "NOT_IN_LOBBY: No lobby to leave")
		return
	}

	remaining, dropped, err := s.lobbies.Leave(lobbyID, sess.ID)
	if err != nil {
		s.sendError(sess.ID, err.Error())
		return
	}
	sess.setLobby("")

	if dropped {
		s.deleteLobbySnapshot(lobbyID)
		return
	}

	s.connections.Broadcast(remaining, ServerMessage{Type: "PlayerLeft", Payload: PlayerEventPayload{
		PlayerID: sess.ID,
	}})
	if lobby, err := s.lobbies.Get(lobbyID); err == nil {
		s.connections.Broadcast(remaining, ServerMessage{Type: "LobbyUpdated", Payload: LobbyPayload{
			Lobby: lobby.Summary(),
		}})
		s.saveLobby(lobby)
	}
}

func (s *Server) handleStartGame(sess *Session) {
	lobbyID := sess.LobbyID()
	if lobbyID == "" {
		s.sendError(sess.ID, "NOT_IN_LOBBY: Create or join a lobby first")
		return
	}

	seating, settings, err := s.lobbies.Start(lobbyID, sess.ID)
	if err != nil {
		s.sendError(sess.ID, err.Error())
		return
	}

	// Point every member at the game before Create announces it, so a
	// client reacting to GameStarting never races the context switch.
	gameID := uuid.NewString()
	for _, p := range seating {
		if member, ok := s.connections.Get(p); ok {
			member.setLobby("")
			member.setGame(gameID)
		}
	}

	if err := s.games.Create(gameID, seating, settings); err != nil {
		for _, p := range seating {
			if member, ok := s.connections.Get(p); ok {
				member.setLobby(lobbyID)
				member.setGame("")
			}
		}
		s.log.Error("create game", zap.Error(err))
		s.sendError(sess.ID, "INTERNAL: Failed to start game")
		return
	}
	s.lobbies.Drop(lobbyID)
	s.deleteLobbySnapshot(lobbyID)
}

func (s *Server) handlePlaceBid(sess *Session, payload json.RawMessage) {
	var req PlaceBidRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(sess.ID, "BAD_MESSAGE: Invalid PlaceBid payload")
		return
	}
	gameID := sess.GameID()
	if gameID == "" {
		s.sendError(sess.ID, "NOT_IN_GAME: No active game")
		return
	}
	if err := s.games.PlaceBid(gameID, sess.ID, req.Bid.Tricks); err != nil {
		s.sendError(sess.ID, err.Error())
	}
}

func (s *Server) handlePlayCard(sess *Session, payload json.RawMessage) {
	var req PlayCardRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		s.sendError(sess.ID, "BAD_MESSAGE: Invalid PlayCard payload")
		return
	}
	gameID := sess.GameID()
	if gameID == "" {
		s.sendError(sess.ID, "NOT_IN_GAME: No active game")
		return
	}
	if err := s.games.PlayCard(gameID, sess.ID, req.Card); err != nil {
		s.sendError(sess.ID, err.Error())
	}
}

func (s *Server) handleRequestGameState(sess *Session) {
	gameID := sess.GameID()
	if gameID == "" {
		s.sendError(sess.ID, "NOT_IN_GAME: No active game")
		return
	}
	s.sendGameState(sess, gameID)
}

func (s *Server) handleStartNextRound(sess *Session) {
	gameID := sess.GameID()
	if gameID == "" {
		s.sendError(sess.ID, "NOT_IN_GAME: No active game")
		return
	}
	if err := s.games.StartNextRound(gameID, sess.ID); err != nil {
		s.sendError(sess.ID, err.Error())
	}
}

// saveLobby persists the lobby summary, advisory like game snapshots.
func (s *Server) saveLobby(lobby *Lobby) {
	state, err := json.Marshal(lobby.Summary())
	if err != nil {
		s.log.Error("marshal lobby snapshot", zap.String("lobby_id", lobby.ID), zap.Error(err))
		return
	}
	lobbyID := lobby.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.SaveLobbySnapshot(ctx, lobbyID, state); err != nil {
			s.log.Warn("save lobby snapshot", zap.String("lobby_id", lobbyID), zap.Error(err))
		}
	}()
}

func (s *Server) deleteLobbySnapshot(lobbyID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.DeleteLobbySnapshot(ctx, lobbyID); err != nil {
			s.log.Warn("delete lobby snapshot", zap.String("lobby_id", lobbyID), zap.Error(err))
		}
	}()
}
