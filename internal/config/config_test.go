package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SMARTBOT_DATA_DIR", dir)
	t.Setenv("SMARTBOT_ADDR", "")
	t.Setenv("SMARTBOT_STORE", "")
	t.Setenv("SMARTBOT_HISTORY_LIMIT", "")
	t.Setenv("SMARTBOT_GATEWAY_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ServerAddr != ":7080" {
		t.Fatalf("expected :7080, got %q", cfg.ServerAddr)
	}
	if cfg.Store != StoreSQLite || cfg.HistoryLimit != 20 || cfg.GatewayTimeout != 2*time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.StorePath() != filepath.Join(dir, "smartbot.db") {
		t.Fatalf("unexpected store path %q", cfg.StorePath())
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SMARTBOT_DATA_DIR", t.TempDir())
	t.Setenv("SMARTBOT_STORE", "BOLT")
	t.Setenv("SMARTBOT_HISTORY_LIMIT", "5")
	t.Setenv("SMARTBOT_GATEWAY_TIMEOUT", "10s")
	t.Setenv("SMARTBOT_GATEWAY_URL", "http://gw")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != StoreBolt || cfg.HistoryLimit != 5 || cfg.GatewayTimeout != 10*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if !strings.HasSuffix(cfg.StorePath(), "history.bolt") {
		t.Fatalf("unexpected store path %q", cfg.StorePath())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("SMARTBOT_DATA_DIR", t.TempDir())
	t.Setenv("SMARTBOT_HISTORY_LIMIT", "lots")
	t.Setenv("SMARTBOT_GATEWAY_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HistoryLimit != 20 || cfg.GatewayTimeout != 2*time.Minute {
		t.Fatalf("expected fallbacks, got %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := Config{GatewayURL: "http://gw", Store: StoreMemory, HistoryLimit: 20}
	if err := base.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	noURL := base
	noURL.GatewayURL = ""
	if err := noURL.Validate(); err == nil || !strings.Contains(err.Error(), "SMARTBOT_GATEWAY_URL") {
		t.Fatalf("expected gateway url error, got %v", err)
	}

	badStore := base
	badStore.Store = "redis"
	if err := badStore.Validate(); err == nil {
		t.Fatal("expected store error")
	}

	badLimit := base
	badLimit.HistoryLimit = 0
	if err := badLimit.Validate(); err == nil {
		t.Fatal("expected limit error")
	}
}

func TestChannelsEnabled(t *testing.T) {
	cfg := Config{SlackBotToken: "xoxb"}
	if cfg.SlackEnabled() {
		t.Fatal("slack needs both tokens")
	}
	cfg.SlackAppToken = "xapp"
	if !cfg.SlackEnabled() {
		t.Fatal("expected slack enabled")
	}
	if cfg.TelegramEnabled() {
		t.Fatal("telegram should be disabled")
	}
}

func TestLoadFileIntoEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.env")
	content := "# comment\n\nSMARTBOT_TEST_A=from-file\nSMARTBOT_TEST_B = \"quoted\"\nnot a pair\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("SMARTBOT_TEST_A", "")
	t.Setenv("SMARTBOT_TEST_B", "from-env")

	if err := LoadFileIntoEnv(path); err != nil {
		t.Fatalf("load file: %v", err)
	}
	if got := os.Getenv("SMARTBOT_TEST_A"); got != "from-file" {
		t.Fatalf("expected from-file, got %q", got)
	}
	if got := os.Getenv("SMARTBOT_TEST_B"); got != "from-env" {
		t.Fatalf("existing env must win, got %q", got)
	}
}

func TestLoadFileIntoEnvMissing(t *testing.T) {
	if err := LoadFileIntoEnv(filepath.Join(t.TempDir(), "nope.env")); err != nil {
		t.Fatalf("missing file should be ignored, got %v", err)
	}
}
