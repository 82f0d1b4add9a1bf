// Package memory implements archive.Store in process memory. It backs the
// "memory" storage option and doubles as a test fake.
package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/model"
)

// Store holds serialized values so callers never share memory with it.
type Store struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
	loadErr error
	saves   int
}

var _ archive.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{data: make(map[string][]byte)}
}

// FailSaves makes every subsequent Save return err (nil restores success).
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// FailLoads makes every subsequent Load return err.
func (s *Store) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadErr = err
}

// Saves reports how many successful saves have happened.
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Load decodes the value under key.
func (s *Store) Load(_ context.Context, key string) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadErr != nil {
		return nil, s.loadErr
	}
	sessions := []model.Session{}
	raw, ok := s.data[key]
	if !ok {
		return sessions, nil
	}
	if err := json.Unmarshal(raw, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Save encodes sessions under key.
func (s *Store) Save(_ context.Context, key string, sessions []model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.saveErr != nil {
		return s.saveErr
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	raw, err := json.Marshal(sessions)
	if err != nil {
		return err
	}
	s.data[key] = raw
	s.saves++
	return nil
}
