package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string // PostgreSQL; takes precedence over SQLite
	SQLitePath  string // fallback durable store for single-node deploys
	RedisURL    string // optional; enables REST rate limiting

	AllowedOrigins []string // CORS origins for the dashboard
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		RedisURL:    os.Getenv("REDIS_URL"),
	}

	// Parse allowed origins (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		for _, entry := range strings.Split(origins, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, entry)
			}
		}
	} else {
		cfg.AllowedOrigins = []string{"*"}
	}

	// In production, require a durable store
	if cfg.Env == "production" {
		if cfg.DatabaseURL == "" && cfg.SQLitePath == "" {
			panic("DATABASE_URL or SQLITE_PATH is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
