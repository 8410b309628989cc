package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr     string
	LogLevel string

	EngineURL         string
	RequestTimeout    time.Duration
	LookupTimeout     time.Duration
	StreamIdleTimeout time.Duration
	ShowUsageFooter   bool

	OTLPEndpoint    string
	ShutdownTimeout time.Duration

	SupersetURL      string
	SupersetUsername string
	SupersetPassword string
}

func Load() (*Config, error) {
	// Best-effort: a missing .env is fine.
	godotenv.Load()

	cfg := &Config{
		Addr:              getEnv("ADDR", ":8085"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		EngineURL:         getEnv("CLAUDE_ENGINE_URL", "http://claude-engine:3001"),
		RequestTimeout:    getDurationEnv("REQUEST_TIMEOUT", 120*time.Second),
		LookupTimeout:     getDurationEnv("LOOKUP_TIMEOUT", 10*time.Second),
		StreamIdleTimeout: getDurationEnv("STREAM_IDLE_TIMEOUT", 60*time.Second),
		ShowUsageFooter:   getEnv("SHOW_USAGE_FOOTER", "true") == "true",
		OTLPEndpoint:      getEnv("OTLP_ENDPOINT", ""),
		ShutdownTimeout:   getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		SupersetURL:       getEnv("SUPERSET_URL", "http://localhost:8088"),
		SupersetUsername:  getEnv("SUPERSET_ADMIN_USERNAME", "admin"),
		SupersetPassword:  getEnv("SUPERSET_ADMIN_PASSWORD", "admin"),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
