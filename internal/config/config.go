package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL  string
	LiveFeedURL string
	SessionPath string
	LogLevel    string
	HTTPTimeout time.Duration
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads client configuration from the environment, with a .env file as
// an optional local override.
func Load() Config {
	_ = godotenv.Load() // load .env if it exists

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	defaultSession := filepath.Join(home, ".kitchenly", "session.json")

	timeout := 10 * time.Second
	if raw := os.Getenv("KITCHENLY_HTTP_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			timeout = d
		}
	}

	return Config{
		APIBaseURL:  getenv("KITCHENLY_API_URL", "http://localhost:8080"),
		LiveFeedURL: getenv("KITCHENLY_WS_URL", "ws://localhost:8080/ws"),
		SessionPath: getenv("KITCHENLY_SESSION_PATH", defaultSession),
		LogLevel:    getenv("KITCHENLY_LOG_LEVEL", "info"),
		HTTPTimeout: timeout,
	}
}
