package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore backs the server when DATABASE_URL is unset and the tests.
// Same contract as PostgresStore, nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]User // username → user
	lobbies map[string][]byte
	games   map[string]gameSnapshot
}

type gameSnapshot struct {
	status    string
	state     []byte
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]User),
		lobbies: make(map[string][]byte),
		games:   make(map[string]gameSnapshot),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.Username]; exists {
		return ErrUsernameTaken
	}
	s.users[user.Username] = user
	return nil
}

func (s *MemoryStore) GetUserByUsername(_ context.Context, username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *MemoryStore) SaveLobbySnapshot(_ context.Context, lobbyID string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lobbies[lobbyID] = append([]byte(nil), state...)
	return nil
}

func (s *MemoryStore) DeleteLobbySnapshot(_ context.Context, lobbyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lobbies, lobbyID)
	return nil
}

func (s *MemoryStore) SaveGameSnapshot(_ context.Context, gameID string, status string, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.games[gameID] = gameSnapshot{
		status:    status,
		state:     append([]byte(nil), state...),
		updatedAt: time.Now(),
	}
	return nil
}

func (s *MemoryStore) DeleteGameSnapshot(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, gameID)
	return nil
}

func (s *MemoryStore) CleanupCompletedGames(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-completedGameRetention)
	deleted := 0
	for id, snap := range s.games {
		if snap.status == "GameComplete" && snap.updatedAt.Before(cutoff) {
			delete(s.games, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Close() {}
