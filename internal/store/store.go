// Package store is the persistence collaborator. During a game the
// in-memory state owned by the managers is authoritative; everything
// here is advisory and must never block gameplay.
package store

import (
	"context"
	"errors"
)

var (
	ErrUsernameTaken = errors.New("USERNAME_TAKEN: Username already exists")
	ErrUserNotFound  = errors.New("USER_NOT_FOUND: User not found")
)

type User struct {
	ID           string
	Username     string
	PasswordHash string
}

type Store interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByUsername(ctx context.Context, username string) (User, error)

	// Snapshots are JSON blobs of lobby/game state, written on
	// transitions and by the periodic save task.
	SaveLobbySnapshot(ctx context.Context, lobbyID string, state []byte) error
	DeleteLobbySnapshot(ctx context.Context, lobbyID string) error
	SaveGameSnapshot(ctx context.Context, gameID string, status string, state []byte) error
	DeleteGameSnapshot(ctx context.Context, gameID string) error
	CleanupCompletedGames(ctx context.Context) (int, error)

	Close()
}
