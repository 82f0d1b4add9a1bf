// Package model defines the core domain types shared across all SmartBot packages.
// It has zero dependencies on other SmartBot packages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a turn.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Attachment describes a file attached to a user turn. The binary itself
// never lives in the conversation; only its metadata does.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Message is one turn of a conversation.
type Message struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	Sender     Sender      `json:"sender"`
	Timestamp  time.Time   `json:"timestamp"`
	Edited     bool        `json:"edited,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
}

// Clock returns the hour:minute display form of the message timestamp.
func (m Message) Clock() string {
	return m.Timestamp.Local().Format("15:04")
}

// IsUser reports whether the message was authored by the user.
func (m Message) IsUser() bool { return m.Sender == SenderUser }

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

// Session is an archived snapshot of a past conversation.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// Clone returns a deep copy of s.
func (s Session) Clone() Session {
	s.Messages = CloneMessages(s.Messages)
	return s
}

// DefaultTitle is used for sessions that contain no user message.
const DefaultTitle = "Conversation"

// titleRunes is how many runes of the first user message make up a title.
const titleRunes = 30

// NewID returns a new opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NewMessage builds a message stamped with the current time.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:        NewID(),
		Text:      text,
		Sender:    sender,
		Timestamp: time.Now().UTC(),
	}
}

// CloneMessages deep-copies a slice of messages. A nil input yields an
// empty, non-nil slice so JSON encodes it as [].
func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// TitleFor derives a session title from the first user message.
func TitleFor(msgs []Message) string {
	for _, m := range msgs {
		if m.IsUser() {
			return Ellipsize(strings.TrimSpace(m.Text), titleRunes)
		}
	}
	return DefaultTitle
}

// Ellipsize keeps the first keep runes of s and appends "..." when
// anything was cut.
func Ellipsize(s string, keep int) string {
	r := []rune(s)
	if len(r) <= keep {
		return s
	}
	return string(r[:max(keep, 0)]) + "..."
}
