package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LLMConfig holds the completion provider settings. An empty APIKey disables
// semantic grading and item generation; the engine then runs on fallbacks.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// ProctorDefaults are the platform-wide proctoring settings applied when a
// session carries no override.
type ProctorDefaults struct {
	AllowTabSwitchCount int
	RiskThreshold       int
}

type Config struct {
	Port        string
	Environment string
	DatabaseURL string
	RedisURL    string
	LogLevel    slog.Level

	LLM     LLMConfig
	Proctor ProctorDefaults

	// Operation deadlines.
	GenerationTimeout time.Duration
	GradingTimeout    time.Duration
	NotesTimeout      time.Duration

	// DedupWindow is how long a topic generation lease blocks duplicates.
	DedupWindow time.Duration

	ShutdownTimeout time.Duration
}

// LoadConfig reads configuration from the environment, with .env as a
// development convenience.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", ""),
			APIKey:  os.Getenv("LLM_API_KEY"),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
		},

		Proctor: ProctorDefaults{
			AllowTabSwitchCount: getEnvInt("PROCTOR_TAB_SWITCH_ALLOWANCE", 2),
			RiskThreshold:       getEnvInt("PROCTOR_RISK_THRESHOLD", 20),
		},

		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 8*time.Second),
		GradingTimeout:    getEnvDuration("GRADING_TIMEOUT", 10*time.Second),
		NotesTimeout:      getEnvDuration("NOTES_TIMEOUT", 15*time.Second),
		DedupWindow:       getEnvDuration("GENERATION_DEDUP_WINDOW", 120*time.Second),
		ShutdownTimeout:   getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
