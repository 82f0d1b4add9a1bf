package smartbot

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/eventbus"
	"github.com/jxucoder/smartbot/gateway/remote"
	boltStore "github.com/jxucoder/smartbot/store/bolt"
	memoryStore "github.com/jxucoder/smartbot/store/memory"
	sqliteStore "github.com/jxucoder/smartbot/store/sqlite"
)

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(b *Builder) error {
	if b.config.ServerAddr == "" {
		b.config.ServerAddr = ":7080"
	}
	if b.config.DataDir == "" {
		b.config.DataDir = defaultDataDir()
	}
	if b.config.Store == "" {
		b.config.Store = "sqlite"
	}
	if b.config.HistoryLimit <= 0 {
		b.config.HistoryLimit = archive.DefaultLimit
	}
	if b.config.GatewayTimeout == 0 {
		b.config.GatewayTimeout = 2 * time.Minute
	}

	if err := os.MkdirAll(b.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	if b.store == nil {
		st, err := openStore(b.config)
		if err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
		b.store = st
	}

	if b.bus == nil {
		b.bus = eventbus.NewInMemoryBus()
	}

	if b.gw == nil {
		if b.config.GatewayURL == "" {
			return fmt.Errorf("gateway URL is required")
		}
		b.gw = remote.New(b.config.GatewayURL,
			remote.WithTimeout(b.config.GatewayTimeout),
			remote.WithToken(b.config.GatewayToken),
			remote.WithCookie(b.config.GatewayCookie),
		)
	}

	return nil
}

// openStore opens the history backend named by cfg.Store, applying the
// default path under cfg.DataDir when StorePath is empty.
func openStore(cfg Config) (archive.Store, error) {
	path := cfg.StorePath
	switch cfg.Store {
	case "sqlite":
		if path == "" {
			path = filepath.Join(cfg.DataDir, "smartbot.db")
		}
		return sqliteStore.New(path)
	case "bolt":
		if path == "" {
			path = filepath.Join(cfg.DataDir, "history.bolt")
		}
		return boltStore.New(path)
	case "memory":
		return memoryStore.New(), nil
	}
	return nil, fmt.Errorf("unknown store %q", cfg.Store)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartbot"
	}
	return filepath.Join(home, ".smartbot")
}
