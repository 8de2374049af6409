// Package config loads application configuration from the environment
// (with optional .env file) and reads the persisted strategy definitions.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"signal-systemv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Upstream feed
	UpstreamURL   string
	UpstreamKey   string
	UpstreamTOTP  string
	SimulateFeeds bool // use the synthetic source instead of the upstream

	// Infrastructure
	RedisAddr     string
	RedisPassword string
	SQLitePath    string
	MetricsAddr   string
	HTTPAddr      string

	// Strategy definitions file (JSON array of strategy configs)
	StrategiesPath string

	// Outbound alerting (all optional)
	NotifyWebhookURL string
	TelegramBotToken string
	TelegramChatID   string
}

// Load reads configuration from a .env file (when present) and environment
// variables with sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err == nil {
		log.Println("[config] loaded .env")
	}

	cfg := &Config{
		UpstreamURL:   getEnv("UPSTREAM_WS_URL", ""),
		UpstreamKey:   getEnv("UPSTREAM_API_KEY", ""),
		UpstreamTOTP:  getEnv("UPSTREAM_TOTP_SECRET", ""),
		SimulateFeeds: getEnv("SIMULATE_FEEDS", "") == "true",

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		SQLitePath:     getEnv("SQLITE_PATH", "data/market.db"),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		StrategiesPath: getEnv("STRATEGIES_PATH", "strategies.json"),

		NotifyWebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
	}

	if cfg.UpstreamURL == "" && !cfg.SimulateFeeds {
		log.Println("[config] UPSTREAM_WS_URL not set, falling back to simulated feeds")
		cfg.SimulateFeeds = true
	}
	return cfg
}

// LoadStrategies reads strategy definitions from a JSON file. Each entry is
// validated; invalid entries are returned as errors alongside the valid
// ones so one bad definition does not block the rest.
func LoadStrategies(path string) ([]model.StrategyConfig, []error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, []error{fmt.Errorf("read strategies file: %w", err)}
	}
	var configs []model.StrategyConfig
	if err := json.Unmarshal(raw, &configs); err != nil {
		return nil, []error{fmt.Errorf("parse strategies file: %w", err)}
	}

	var valid []model.StrategyConfig
	var errs []error
	for _, sc := range configs {
		if err := sc.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		valid = append(valid, sc)
	}
	return valid, errs
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
