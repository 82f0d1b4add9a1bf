// Package config provides configuration management for smartbot.
package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

// Config holds all configuration for the smartbot server and CLI.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (e.g., ":7080").
	ServerAddr string

	// DataDir is the directory for persistent data.
	DataDir string

	// Store selects the history backend: sqlite, bolt or memory.
	Store string

	// HistoryLimit caps the number of archived conversations.
	HistoryLimit int

	// Gateway endpoint and ambient credentials.
	GatewayURL     string
	GatewayToken   string
	GatewayCookie  string
	GatewayTimeout time.Duration

	// Slack integration (optional -- Socket Mode).
	SlackBotToken string
	SlackAppToken string

	// Telegram integration (optional -- long polling).
	TelegramBotToken string
}

// Load creates a Config from environment variables with sensible defaults.
func Load() (*Config, error) {
	dataDir := envOr("SMARTBOT_DATA_DIR", defaultDataDir())
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	cfg := &Config{
		ServerAddr:       envOr("SMARTBOT_ADDR", ":7080"),
		DataDir:          dataDir,
		Store:            strings.ToLower(envOr("SMARTBOT_STORE", StoreSQLite)),
		HistoryLimit:     envOrInt("SMARTBOT_HISTORY_LIMIT", 20),
		GatewayURL:       os.Getenv("SMARTBOT_GATEWAY_URL"),
		GatewayToken:     os.Getenv("SMARTBOT_GATEWAY_TOKEN"),
		GatewayCookie:    os.Getenv("SMARTBOT_GATEWAY_COOKIE"),
		GatewayTimeout:   envOrDuration("SMARTBOT_GATEWAY_TIMEOUT", 2*time.Minute),
		SlackBotToken:    os.Getenv("SLACK_BOT_TOKEN"),
		SlackAppToken:    os.Getenv("SLACK_APP_TOKEN"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("SMARTBOT_GATEWAY_URL is required")
	}
	switch c.Store {
	case StoreSQLite, StoreBolt, StoreMemory:
	default:
		return fmt.Errorf("SMARTBOT_STORE must be one of sqlite, bolt or memory, got %q", c.Store)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("SMARTBOT_HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

// StorePath returns the database file for the selected backend.
func (c *Config) StorePath() string {
	switch c.Store {
	case StoreBolt:
		return filepath.Join(c.DataDir, "history.bolt")
	case StoreSQLite:
		return filepath.Join(c.DataDir, "smartbot.db")
	}
	return ""
}

// SlackEnabled returns true if Slack Socket Mode is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackBotToken != "" && c.SlackAppToken != ""
}

// TelegramEnabled returns true if the Telegram bot is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

// LoadFileIntoEnv reads KEY=VALUE lines from path and sets any values not
// already present in the environment. A missing file is not an error.
func LoadFileIntoEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if os.Getenv(key) == "" {
			os.Setenv(key, strings.Trim(strings.TrimSpace(value), `"`))
		}
	}
	return scanner.Err()
}

// DefaultFile is the config.env location under the default data directory.
func DefaultFile() string {
	return filepath.Join(defaultDataDir(), "config.env")
}

func envOrInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartbot"
	}
	return filepath.Join(home, ".smartbot")
}
