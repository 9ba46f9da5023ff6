package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lobbies (
	id         TEXT PRIMARY KEY,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS games (
	id         TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	state      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// completedGameRetention keeps finished games for a day so players can
// review final scores before the hourly sweep reclaims the rows.
const completedGameRetention = 24 * time.Hour

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash) VALUES ($1, $2, $3)`,
		user.ID, user.Username, user.PasswordHash,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("inserting user %s: %w", user.Username, err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	var user User
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.PasswordHash)

	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("loading user %s: %w", username, err)
	}
	return user, nil
}

func (s *PostgresStore) SaveLobbySnapshot(ctx context.Context, lobbyID string, state []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO lobbies (id, state, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		lobbyID, state,
	)
	if err != nil {
		return fmt.Errorf("saving lobby %s: %w", lobbyID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteLobbySnapshot(ctx context.Context, lobbyID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM lobbies WHERE id = $1`, lobbyID); err != nil {
		return fmt.Errorf("deleting lobby %s: %w", lobbyID, err)
	}
	return nil
}

func (s *PostgresStore) SaveGameSnapshot(ctx context.Context, gameID string, status string, state []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO games (id, status, state, updated_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = now()`,
		gameID, status, state,
	)
	if err != nil {
		return fmt.Errorf("saving game %s: %w", gameID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteGameSnapshot(ctx context.Context, gameID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM games WHERE id = $1`, gameID); err != nil {
		return fmt.Errorf("deleting game %s: %w", gameID, err)
	}
	return nil
}

func (s *PostgresStore) CleanupCompletedGames(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM games WHERE status = 'GameComplete' AND updated_at < $1`,
		time.Now().Add(-completedGameRetention),
	)
	if err != nil {
		return 0, fmt.Errorf("cleaning up completed games: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}
