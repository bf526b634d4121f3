package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Remote backends accepted by REMOTE_BACKEND.
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds the configuration for the application.
type Config struct {
	RecipesDir    string
	DataDir       string
	StorageKey    string
	RemoteBackend string
	SQLitePath    string
	DatabaseURL   string
	SaveDelay     time.Duration
	PollInterval  time.Duration
	JWTSecret     string
	Port          string

	// Identity the CLI signs in as before running a command.
	Identity string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
}

// NewFromEnv creates a new Config object from environment variables.
func NewFromEnv() (*Config, error) {
	recipesDir := os.Getenv("RECIPES_DIR")
	if recipesDir == "" {
		return nil, fmt.Errorf("RECIPES_DIR environment variable not set")
	}

	dataDir := getEnv("DATA_DIR", "data")

	backend := strings.ToLower(getEnv("REMOTE_BACKEND", BackendNone))
	switch backend {
	case BackendNone, BackendMemory, BackendSQLite, BackendPostgres:
	default:
		return nil, fmt.Errorf("unsupported REMOTE_BACKEND %q", backend)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if backend == BackendPostgres && databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	saveDelay, err := getMillis("SAVE_DEBOUNCE_MS", 300)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getMillis("POLL_INTERVAL_MS", 1000)
	if err != nil {
		return nil, err
	}

	allowed, err := parseUserIDs(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, err
	}

	return &Config{
		RecipesDir:             recipesDir,
		DataDir:                dataDir,
		StorageKey:             getEnv("PLAN_STORAGE_KEY", "mealPlanner"),
		RemoteBackend:          backend,
		SQLitePath:             getEnv("SQLITE_PATH", filepath.Join(dataDir, "plannings.db")),
		DatabaseURL:            databaseURL,
		SaveDelay:              saveDelay,
		PollInterval:           pollInterval,
		JWTSecret:              os.Getenv("AUTH_JWT_SECRET"),
		Port:                   getEnv("PORT", "8080"),
		Identity:               os.Getenv("MEAL_PLANNER_IDENTITY"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
	}, nil
}

// ValidateBot reports the settings the Telegram bot cannot start without.
func (c *Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getMillis(key string, fallback int) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return time.Duration(fallback) * time.Millisecond, nil
	}
	ms, err := strconv.Atoi(raw)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a non-negative number of milliseconds", key, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
