// Package chatlog holds the ordered, mutable list of turns for one live
// conversation.
package chatlog

import (
	"errors"
	"time"

	"github.com/jxucoder/smartbot/model"
)

var (
	ErrDuplicateID = errors.New("chatlog: duplicate message id")
	ErrNotFound    = errors.New("chatlog: message not found")
	ErrNotEditable = errors.New("chatlog: message is not editable")
)

// Log is an insertion-ordered sequence of messages. It is not safe for
// concurrent use; the owning controller serializes access.
type Log struct {
	msgs []model.Message
}

// New returns a log seeded with the given messages.
func New(seed ...model.Message) *Log {
	l := &Log{}
	l.Reset(seed...)
	return l
}

// Reset discards every message and installs copies of seed.
func (l *Log) Reset(seed ...model.Message) {
	l.msgs = model.CloneMessages(seed)
}

// Len returns the number of messages.
func (l *Log) Len() int { return len(l.msgs) }

// Messages returns a deep copy of the log in conversation order.
func (l *Log) Messages() []model.Message {
	return model.CloneMessages(l.msgs)
}

// Get returns a copy of the message with the given id.
func (l *Log) Get(id string) (model.Message, bool) {
	i := l.index(id)
	if i < 0 {
		return model.Message{}, false
	}
	return l.msgs[i].Clone(), true
}

// Append adds msg to the tail.
func (l *Log) Append(msg model.Message) error {
	if l.index(msg.ID) >= 0 {
		return ErrDuplicateID
	}
	l.msgs = append(l.msgs, msg.Clone())
	return nil
}

// ReplaceText rewrites the text of a user message and marks it edited.
func (l *Log) ReplaceText(id, text string) error {
	i := l.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if !l.msgs[i].IsUser() {
		return ErrNotEditable
	}
	l.msgs[i].Text = text
	l.msgs[i].Edited = true
	l.msgs[i].Timestamp = time.Now().UTC()
	return nil
}

// TruncateAfter drops every message following id. With inclusive set the
// message itself is dropped too.
func (l *Log) TruncateAfter(id string, inclusive bool) error {
	i := l.index(id)
	if i < 0 {
		return ErrNotFound
	}
	end := i + 1
	if inclusive {
		end = i
	}
	clear(l.msgs[end:])
	l.msgs = l.msgs[:end]
	return nil
}

// FindLastUserBefore returns the nearest user message preceding id.
func (l *Log) FindLastUserBefore(id string) (model.Message, bool) {
	i := l.index(id)
	if i < 0 {
		return model.Message{}, false
	}
	for j := i - 1; j >= 0; j-- {
		if l.msgs[j].IsUser() {
			return l.msgs[j].Clone(), true
		}
	}
	return model.Message{}, false
}

func (l *Log) index(id string) int {
	for i, m := range l.msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}
