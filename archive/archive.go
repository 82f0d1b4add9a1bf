// Package archive keeps the bounded, most-recent-first history of past
// conversations and persists it through a key/value Store.
package archive

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/jxucoder/smartbot/model"
)

// HistoryKey is the single key under which the whole history is stored.
const HistoryKey = "chatHistory"

// DefaultLimit is the number of sessions kept when no limit is given.
const DefaultLimit = 20

// ErrUnavailable marks a persistence failure. The in-memory history has
// already been updated when it is returned.
var ErrUnavailable = errors.New("archive: persistence unavailable")

// Store is the persistence port. Load returns an empty slice and no error
// when the key has never been written.
type Store interface {
	Load(ctx context.Context, key string) ([]model.Session, error)
	Save(ctx context.Context, key string, sessions []model.Session) error
}

// Archive is safe for concurrent use.
type Archive struct {
	mu       sync.RWMutex
	store    Store
	limit    int
	sessions []model.Session // most recent first
}

// New returns an empty archive backed by store. A limit <= 0 selects
// DefaultLimit.
func New(store Store, limit int) *Archive {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Archive{store: store, limit: limit}
}

// Restore replaces the in-memory history with what the store holds,
// trimmed to the limit. On error the archive stays empty.
func (a *Archive) Restore(ctx context.Context) error {
	sessions, err := a.store.Load(ctx, HistoryKey)
	if err != nil {
		return fmt.Errorf("%w: loading history: %v", ErrUnavailable, err)
	}
	if len(sessions) > a.limit {
		sessions = sessions[:a.limit]
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.sessions = make([]model.Session, len(sessions))
	for i, s := range sessions {
		a.sessions[i] = s.Clone()
	}
	return nil
}

// Archive snapshots msgs into a new session, prepends it and evicts the
// oldest entries beyond the limit. The returned id is valid even when the
// error wraps ErrUnavailable.
func (a *Archive) Archive(ctx context.Context, msgs []model.Message) (string, error) {
	sess := model.Session{
		ID:        model.NewID(),
		Title:     model.TitleFor(msgs),
		CreatedAt: time.Now().UTC(),
		Messages:  model.CloneMessages(msgs),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	next := make([]model.Session, 0, min(len(a.sessions)+1, a.limit))
	next = append(next, sess)
	next = append(next, a.sessions...)
	if len(next) > a.limit {
		next = next[:a.limit]
	}
	a.sessions = next

	return sess.ID, a.persistLocked(ctx)
}

// Delete removes one session. Deleting an unknown id is a no-op and does
// not touch the store.
func (a *Archive) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range a.sessions {
		if s.ID == id {
			a.sessions = append(a.sessions[:i:i], a.sessions[i+1:]...)
			return a.persistLocked(ctx)
		}
	}
	return nil
}

// Clear empties the history.
func (a *Archive) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.sessions = nil
	return a.persistLocked(ctx)
}

// Get returns a copy of the session with the given id.
func (a *Archive) Get(id string) (model.Session, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, s := range a.sessions {
		if s.ID == id {
			return s.Clone(), true
		}
	}
	return model.Session{}, false
}

// Len returns the number of archived sessions.
func (a *Archive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

// List returns the sessions most-recent-first. Each iteration observes the
// history as of the moment it starts and yields copies, so the sequence
// can be ranged over repeatedly and callers cannot mutate the archive.
func (a *Archive) List() iter.Seq[model.Session] {
	return func(yield func(model.Session) bool) {
		a.mu.RLock()
		snapshot := a.sessions
		a.mu.RUnlock()

		for _, s := range snapshot {
			if !yield(s.Clone()) {
				return
			}
		}
	}
}

// persistLocked writes the whole collection. Callers hold a.mu.
func (a *Archive) persistLocked(ctx context.Context) error {
	out := make([]model.Session, len(a.sessions))
	copy(out, a.sessions)
	if err := a.store.Save(ctx, HistoryKey, out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
