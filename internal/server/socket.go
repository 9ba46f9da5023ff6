package server

import (
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	identity, err := s.auth.VerifyToken(r.URL.Query().Get("token"))
	if err != nil {
		_ = socket.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	if s.connections.LiveCount() >= s.cfg.MaxConnections {
		s.log.Warn("connection limit reached", zap.Int("max", s.cfg.MaxConnections))
		_ = socket.Close(websocket.StatusTryAgainLater, "server full")
		return
	}

	sess, reconnected, prev := s.connections.Bind(identity.UserID, identity.Username, socket)
	if prev != nil {
		_ = prev.Close(websocket.StatusNormalClosure, "Connected from another device")
	}
	s.log.Info("session connected",
		zap.String("session_id", sess.ID),
		zap.String("username", sess.Username),
		zap.Bool("reconnected", reconnected))

	s.connections.Send(sess.ID, ServerMessage{Type: "Connected", Payload: ConnectedPayload{
		PlayerID: sess.ID,
	}})
	if reconnected {
		s.afterReconnect(sess)
	}

	ctx := r.Context()
	for {
		msgType, data, err := socket.Read(ctx)
		if err != nil {
			s.connections.Detach(sess, socket)
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		s.connections.Touch(sess.ID)

		if !s.limiter.Allow(sess.ID) {
			s.sendError(sess.ID, "RATE_LIMITED: Too many messages, slow down")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(sess.ID, "BAD_MESSAGE: Invalid JSON")
			continue
		}
		s.dispatch(sess, msg)
	}
}

// afterReconnect replays state to a session coming back from Absent and
// tells everyone sharing a lobby or game.
func (s *Server) afterReconnect(sess *Session) {
	if gameID := sess.GameID(); gameID != "" {
		if seating, err := s.games.Seating(gameID); err == nil {
			others := withoutID(seating, sess.ID)
			s.connections.Broadcast(others, ServerMessage{Type: "PlayerReconnected", Payload: PlayerEventPayload{
				PlayerID: sess.ID,
			}})
		}
		s.sendGameState(sess, gameID)
		return
	}
	if lobbyID := sess.LobbyID(); lobbyID != "" {
		lobby, err := s.lobbies.Get(lobbyID)
		if err != nil {
			sess.setLobby("")
			return
		}
		others := withoutID(lobby.members(), sess.ID)
		s.connections.Broadcast(others, ServerMessage{Type: "PlayerReconnected", Payload: PlayerEventPayload{
			PlayerID: sess.ID,
		}})
		s.connections.Send(sess.ID, ServerMessage{Type: "LobbyJoined", Payload: LobbyPayload{
			Lobby: lobby.Summary(),
		}})
	}
}

func (s *Server) dispatch(sess *Session, msg ClientMessage) {
	switch msg.Type {
	case "Ping":
		s.connections.Send(sess.ID, ServerMessage{Type: "Pong", Payload: struct{}{}})
	case "ListLobbies":
		s.connections.Send(sess.ID, ServerMessage{Type: "LobbyList", Payload: LobbyListPayload{
			Lobbies: s.lobbies.List(),
		}})
	case "CreateLobby":
		s.handleCreateLobby(sess, msg.Payload)
	case "JoinLobby":
		s.handleJoinLobby(sess, msg.Payload)
	case "LeaveLobby":
		s.handleLeaveLobby(sess)
	case "StartGame":
		s.handleStartGame(sess)
	case "PlaceBid":
		s.handlePlaceBid(sess, msg.Payload)
	case "PlayCard":
		s.handlePlayCard(sess, msg.Payload)
	case "RequestGameState":
		s.handleRequestGameState(sess)
	case "StartNextRound":
		s.handleStartNextRound(sess)
	default:
		s.log.Debug("unknown message type",
			zap.String("type", msg.Type),
			zap.String("session_id", sess.ID))
		s.sendError(sess.ID, "BAD_MESSAGE: Unknown message type")
	}
}

func (s *Server) sendError(sessionID, message string) {
	s.connections.Send(sessionID, ServerMessage{Type: "Error", Payload: ErrorPayload{
		Message: message,
	}})
}

func (s *Server) sendGameState(sess *Session, gameID string) {
	snap, actions, err := s.games.State(gameID, sess.ID)
	if err != nil {
		s.sendError(sess.ID, err.Error())
		return
	}
	s.connections.Send(sess.ID, ServerMessage{Type: "GameState", Payload: GameStatePayload{
		State: snap,
	}})
	if snap.YourTurn && len(actions) > 0 {
		s.connections.Send(sess.ID, ServerMessage{Type: "YourTurn", Payload: YourTurnPayload{
			ValidActions: actions,
		}})
	}
}

func withoutID(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
