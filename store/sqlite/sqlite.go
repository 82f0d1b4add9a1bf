// Package sqlite implements archive.Store using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/model"
)

// Store keeps serialized session histories in a key/value table.
type Store struct {
	db *sql.DB
}

var _ archive.Store = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read/write performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
		);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the sessions stored under key, or an empty slice if the key
// has never been written.
func (s *Store) Load(ctx context.Context, key string) ([]model.Session, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return []model.Session{}, nil
	}
	if err != nil {
		return nil, err
	}

	var sessions []model.Session
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	return sessions, nil
}

// Save replaces the value under key in a single statement.
func (s *Store) Save(ctx context.Context, key string, sessions []model.Session) error {
	if sessions == nil {
		sessions = []model.Session{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), time.Now().UTC(),
	)
	return err
}
