package server

import (
	"os"
	"strconv"

	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Host             string
	Port             int
	MaxConnections   int
	TurnTimeoutSecs  int
	LogLevel         string
	DatabaseURL      string
	JWTSecret        string
	PingIntervalSecs int
}

// LoadConfig reads the environment (a .env file is picked up by the
// godotenv autoload import). Every value has a workable default except
// DATABASE_URL, whose absence selects the in-memory store.
func LoadConfig() Config {
	return Config{
		Host:             envString("SERVER_HOST", "0.0.0.0"),
		Port:             envInt("SERVER_PORT", 8080),
		MaxConnections:   envInt("MAX_CONNECTIONS", 1000),
		TurnTimeoutSecs:  envInt("TURN_TIMEOUT_SECS", 30),
		LogLevel:         envString("LOG_LEVEL", "info"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        envString("JWT_SECRET", "dev-secret-change-me"),
		PingIntervalSecs: envInt("PING_INTERVAL_SECS", 30),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
