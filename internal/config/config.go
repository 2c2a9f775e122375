package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the ingestion server settings.
type Config struct {
	// Server
	Port string
	Env  string

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// JWT
	JWTSecret string

	// Web app (serves the dashboard; allowed CORS origin)
	WebAppURL string
}

// RelayConfig holds the local relay agent settings.
type RelayConfig struct {
	// Address of the tab-facing WebSocket listener
	ListenAddr string

	// Ingestion backend base URL; empty disables posting (events are
	// skipped, not errors)
	BaseURL string

	// Web app base URL for the token endpoint
	WebAppURL string

	// Session cookie forwarded on token fetches
	SessionCookie string

	// Event channel buffer size
	ChannelBuffer int

	// Delivery retry policy
	MaxAttempts      int
	InitialBackoffMs int
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:        getEnvOrDefault("PORT", "8080"),
		Env:         getEnvOrDefault("ENV", "development"),
		DatabaseURL: mustGetEnv("DATABASE_URL"),
		RedisURL:    mustGetEnv("REDIS_URL"),
		JWTSecret:   mustGetEnv("JWT_SECRET"),
		WebAppURL:   getEnvOrDefault("WEB_APP_URL", "http://localhost:5173"),
	}

	return cfg
}

func LoadRelay() *RelayConfig {
	godotenv.Load()

	return &RelayConfig{
		ListenAddr:       getEnvOrDefault("RELAY_LISTEN_ADDR", "127.0.0.1:8765"),
		BaseURL:          getEnvOrDefault("BASE_URL", ""),
		WebAppURL:        getEnvOrDefault("WEB_APP_URL", "http://localhost:5173"),
		SessionCookie:    getEnvOrDefault("SESSION_COOKIE", ""),
		ChannelBuffer:    getEnvAsIntOrDefault("CHANNEL_BUFFER", 256),
		MaxAttempts:      getEnvAsIntOrDefault("RELAY_MAX_ATTEMPTS", 3),
		InitialBackoffMs: getEnvAsIntOrDefault("RELAY_INITIAL_BACKOFF_MS", 2000),
	}
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}
