// Package eventbus provides in-memory pub/sub for conversation events.
package eventbus

import (
	"sync"
	"time"

	"github.com/jxucoder/smartbot/model"
)

// Event types.
const (
	TypeTyping  = "typing"  // a gateway call was dispatched
	TypeIdle    = "idle"    // the outcome was recorded
	TypeMessage = "message" // a turn was appended
	TypeReset   = "reset"   // the live log was replaced
)

// Event is one notification about a conversation.
type Event struct {
	ID           int64          `json:"id"`
	Conversation string         `json:"conversation"`
	Type         string         `json:"type"`
	Message      *model.Message `json:"message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Bus fans events out to subscribers of a conversation.
type Bus interface {
	Subscribe(conversation string) chan *Event
	Unsubscribe(conversation string, ch chan *Event)
	Publish(conversation string, event *Event)
}

// InMemoryBus is the default Bus.
type InMemoryBus struct {
	mu     sync.RWMutex
	subs   map[string][]chan *Event
	nextID int64
}

// NewInMemoryBus creates a new InMemoryBus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subs: make(map[string][]chan *Event),
	}
}

// Subscribe creates a channel that receives events for a conversation.
func (b *InMemoryBus) Subscribe(conversation string) chan *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *Event, 64)
	b.subs[conversation] = append(b.subs[conversation], ch)
	return ch
}

// Unsubscribe removes a channel from the conversation's subscribers.
func (b *InMemoryBus) Unsubscribe(conversation string, ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[conversation]
	for i, s := range subs {
		if s == ch {
			b.subs[conversation] = append(subs[:i], subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends an event to all subscribers for a conversation. ID,
// Conversation and CreatedAt are filled in when unset.
func (b *InMemoryBus) Publish(conversation string, event *Event) {
	b.mu.Lock()
	b.nextID++
	if event.ID == 0 {
		event.ID = b.nextID
	}
	b.mu.Unlock()

	if event.Conversation == "" {
		event.Conversation = conversation
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs[conversation] {
		select {
		case ch <- event:
		default:
			// Drop event if subscriber is too slow.
		}
	}
}
