package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"gbridge-server/internal/auth"
	"gbridge-server/internal/store"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)

	r.Post("/api/register", s.handleRegister)
	r.Post("/api/login", s.handleLogin)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/ws", s.handleWebSocket)

	return r
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "BAD_REQUEST: Invalid JSON body"})
		return
	}

	if err := auth.ValidateUsername(req.Username); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		s.log.Error("hash password", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL: Registration failed"})
		return
	}

	user := store.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrUsernameTaken) {
			writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error()})
			return
		}
		s.log.Error("create user", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL: Registration failed"})
		return
	}

	token, err := s.auth.CreateToken(user.ID, user.Username)
	if err != nil {
		s.log.Error("create token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL: Registration failed"})
		return
	}

	s.log.Info("user registered", zap.String("username", user.Username))
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "BAD_REQUEST: Invalid JSON body"})
		return
	}

	user, err := s.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !s.auth.CheckPassword(req.Password, user.PasswordHash) {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "UNAUTHORIZED: Invalid credentials"})
		return
	}

	token, err := s.auth.CreateToken(user.ID, user.Username)
	if err != nil {
		s.log.Error("create token", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "INTERNAL: Login failed"})
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, UserID: user.ID, Username: user.Username})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatsResponse{
		Connections: s.connections.Counts(),
		Games:       s.games.Stats(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
