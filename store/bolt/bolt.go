// Package bolt implements archive.Store on a BoltDB file.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/model"
)

var bucketHistory = []byte("history")

// Store keeps each key's session list as one JSON value in a bucket.
type Store struct {
	db *bolt.DB
}

var _ archive.Store = (*Store)(nil)

// New opens (or creates) the BoltDB file at path.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating bolt directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHistory)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the sessions under key, or an empty slice when absent.
func (s *Store) Load(_ context.Context, key string) ([]model.Session, error) {
	sessions := []model.Session{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, &sessions)
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	return sessions, nil
}

// Save writes sessions under key in one transaction.
func (s *Store) Save(_ context.Context, key string, sessions []model.Session) error {
	if sessions == nil {
		sessions = []model.Session{}
	}
	enc, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketHistory)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), enc)
	})
}
