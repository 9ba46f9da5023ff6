package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"gbridge-server/internal/auth"
	"gbridge-server/internal/store"
)

const (
	defaultReconnectGrace = 60 * time.Second
	saveInterval          = 30 * time.Second
	cleanupInterval       = 30 * time.Second
	storeCleanupInterval  = time.Hour
)

type Server struct {
	cfg   Config
	log   *zap.Logger
	store store.Store
	auth  *auth.Service

	connections *ConnectionManager
	lobbies     *LobbyManager
	games       *GameManager
	limiter     *RateLimiter

	stop     chan struct{}
	stopOnce sync.Once
}

// New wires the managers together and returns the server plus the
// http.Server the caller runs. Background tasks start immediately.
func New(cfg Config, log *zap.Logger, st store.Store) (*Server, *http.Server) {
	s := &Server{
		cfg:     cfg,
		log:     log,
		store:   st,
		auth:    auth.NewService(cfg.JWTSecret),
		limiter: NewRateLimiter(20, time.Second),
		stop:    make(chan struct{}),
	}

	pingInterval := time.Duration(cfg.PingIntervalSecs) * time.Second
	s.connections = NewConnectionManager(log, pingInterval, defaultReconnectGrace)
	s.lobbies = NewLobbyManager(log)
	s.games = NewGameManager(log, st,
		s.connections.Send,
		s.connections.Broadcast,
		func(id string) bool {
			_, ok := s.connections.Get(id)
			return ok
		})

	s.connections.GraceFor = s.graceFor
	s.connections.OnExpired = s.handleExpiredSession

	go s.connections.RunReaper(s.stop)
	go s.periodicSaveTask()
	go s.cleanupTask()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.Routes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, httpServer
}

// graceFor picks the Absent retention window: games and lobbies use
// four turn timeouts, idle sessions get the flat default. A game with
// reconnection disabled forfeits the grace entirely.
func (s *Server) graceFor(sess *Session) time.Duration {
	if gameID := sess.GameID(); gameID != "" {
		if settings, ok := s.games.SettingsFor(gameID); ok {
			if !settings.AllowReconnect {
				return 0
			}
			return time.Duration(settings.TurnTimeoutSecs*4) * time.Second
		}
	}
	if lobbyID := sess.LobbyID(); lobbyID != "" {
		if lobby, err := s.lobbies.Get(lobbyID); err == nil {
			lobby.mu.Lock()
			timeout := lobby.Settings.TurnTimeoutSecs
			lobby.mu.Unlock()
			return time.Duration(timeout*4) * time.Second
		}
	}
	return defaultReconnectGrace
}

// handleExpiredSession runs after the reaper removed a session whose
// grace ran out. The session leaves its lobby for good; its game keeps
// the seat (deadlines auto-play it) until every seat's session is gone.
func (s *Server) handleExpiredSession(sess *Session) {
	s.limiter.RemoveSession(sess.ID)

	if lobbyID := sess.LobbyID(); lobbyID != "" {
		remaining, dropped, err := s.lobbies.Leave(lobbyID, sess.ID)
		if err == nil {
			if dropped {
				s.deleteLobbySnapshot(lobbyID)
			} else {
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
		}
	}

	if gameID := sess.GameID(); gameID != "" {
		s.games.HandleSessionExpired(gameID, sess.ID)
	}
}

func (s *Server) periodicSaveTask() {
	ticker := time.NewTicker(saveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.games.SaveAll(ctx)
			cancel()
		}
	}
}

func (s *Server) cleanupTask() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	lastStoreCleanup := time.Now()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.games.DropCompleted()
			s.limiter.Cleanup()

			if time.Since(lastStoreCleanup) >= storeCleanupInterval {
				lastStoreCleanup = time.Now()
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				deleted, err := s.store.CleanupCompletedGames(ctx)
				cancel()
				if err != nil {
					s.log.Warn("store cleanup", zap.Error(err))
				} else if deleted > 0 {
					s.log.Info("store cleanup", zap.Int("deleted", deleted))
				}
			}
		}
	}
}

// Shutdown stops background tasks, flushes every running game and
// closes the sockets. The http.Server's own Shutdown is the caller's
// job.
func (s *Server) Shutdown(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	s.games.SaveAll(ctx)
	s.connections.CloseAll("Server closing")
	s.log.Info("server shut down")
}
