// Package conversation drives one live conversation: it owns the message
// log, enforces that at most one gateway call is outstanding, and moves
// finished conversations into the archive.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log"
	"strings"
	"sync"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/chatlog"
	"github.com/jxucoder/smartbot/eventbus"
	"github.com/jxucoder/smartbot/gateway"
	"github.com/jxucoder/smartbot/model"
)

// Fixed texts for synthetic turns.
const (
	WelcomeText      = "Hello! I'm your AI assistant. I can help you with writing, analysis, problem-solving, and much more. What would you like to explore today?"
	FreshText        = "Hi there! I'm ready for a fresh conversation. What would you like to discuss today?"
	FailedReplyText  = "❌ AI failed to respond"
	FailedUploadText = "❌ File upload failed. Please try again."
)

var (
	ErrBusy            = errors.New("conversation: a response is already pending")
	ErrBlankText       = errors.New("conversation: message text is blank")
	ErrNoFile          = errors.New("conversation: file has no name")
	ErrNotFound        = errors.New("conversation: message not found")
	ErrNotEditable     = errors.New("conversation: only user messages can be edited")
	ErrSessionNotFound = errors.New("conversation: archived session not found")
)

// Controller is safe for concurrent use. Its lock is never held across a
// gateway or speech call.
type Controller struct {
	gw      gateway.Gateway
	archive *archive.Archive
	bus     eventbus.Bus
	name    string

	transcriber Transcriber
	speaker     Speaker

	mu      sync.Mutex
	log     *chatlog.Log
	pending bool
	epoch   uint64 // bumped whenever the live log is replaced
	active  string // id of the loaded archived session, if any
}

// Option configures a Controller.
type Option func(*Controller)

// WithBus publishes conversation events on bus under the given name.
func WithBus(bus eventbus.Bus, name string) Option {
	return func(c *Controller) {
		c.bus = bus
		c.name = name
	}
}

// WithTranscriber installs a speech-to-text capability.
func WithTranscriber(t Transcriber) Option {
	return func(c *Controller) { c.transcriber = t }
}

// WithSpeaker installs a text-to-speech capability.
func WithSpeaker(s Speaker) Option {
	return func(c *Controller) { c.speaker = s }
}

// New creates a controller whose log holds only the welcome turn.
func New(gw gateway.Gateway, arc *archive.Archive, opts ...Option) *Controller {
	c := &Controller{
		gw:      gw,
		archive: arc,
		name:    "default",
		log:     chatlog.New(model.NewMessage(model.SenderAssistant, WelcomeText)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name identifies the conversation on the event bus.
func (c *Controller) Name() string { return c.name }

// Messages returns a copy of the live log.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.Messages()
}

// Pending reports whether a gateway call is outstanding.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// ActiveSession returns the id of the archived session currently loaded,
// or "" for a fresh conversation.
func (c *Controller) ActiveSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// History lists archived sessions, most recent first.
func (c *Controller) History() iter.Seq[model.Session] {
	return c.archive.List()
}

// Send appends text as a user turn and records the assistant reply.
func (c *Controller) Send(ctx context.Context, text string) error {
	return c.send(ctx, text, false)
}

// SendStructured is Send with the structured response contract.
func (c *Controller) SendStructured(ctx context.Context, text string) error {
	return c.send(ctx, text, true)
}

func (c *Controller) send(ctx context.Context, text string, structured bool) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankText
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return ErrBusy
	}
	user := model.NewMessage(model.SenderUser, text)
	if err := c.appendLocked(user); err != nil {
		c.mu.Unlock()
		return err
	}
	epoch := c.beginLocked()
	c.mu.Unlock()

	c.complete(ctx, epoch, text, structured)
	return nil
}

// AttachFile records a file turn and uploads the file.
func (c *Controller) AttachFile(ctx context.Context, file gateway.File) error {
	if strings.TrimSpace(file.Name) == "" {
		return ErrNoFile
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return ErrBusy
	}
	user := model.NewMessage(model.SenderUser, "📎 Attached file: "+file.Name)
	user.Attachment = &model.Attachment{Name: file.Name, Size: file.Size}
	if err := c.appendLocked(user); err != nil {
		c.mu.Unlock()
		return err
	}
	epoch := c.beginLocked()
	c.mu.Unlock()

	text := fmt.Sprintf("✅ File %q uploaded successfully. You can now ask questions about it.", file.Name)
	if _, err := c.gw.Upload(context.WithoutCancel(ctx), file); err != nil {
		log.Printf("conversation %s: upload of %q failed: %v", c.name, file.Name, err)
		text = FailedUploadText
	}
	c.finish(epoch, model.NewMessage(model.SenderAssistant, text))
	return nil
}

// Retry regenerates the reply for a turn. For a user turn everything after
// it is discarded and its text is resent. For an assistant turn the
// nearest preceding user turn is used; if there is none, Retry does
// nothing.
func (c *Controller) Retry(ctx context.Context, id string) error {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return ErrBusy
	}
	target, ok := c.log.Get(id)
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	anchor := target
	if !target.IsUser() {
		prev, ok := c.log.FindLastUserBefore(id)
		if !ok {
			c.mu.Unlock()
			return nil
		}
		anchor = prev
	}
	epoch, err := c.regenerateLocked(anchor.ID)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.complete(ctx, epoch, anchor.Text, false)
	return nil
}

// Edit replaces a user turn's text and regenerates from it.
func (c *Controller) Edit(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankText
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return ErrBusy
	}
	target, ok := c.log.Get(id)
	if !ok {
		c.mu.Unlock()
		return ErrNotFound
	}
	if !target.IsUser() {
		c.mu.Unlock()
		return ErrNotEditable
	}
	if err := c.log.ReplaceText(id, text); err != nil {
		c.mu.Unlock()
		return fmt.Errorf("editing %s: %w", id, err)
	}
	epoch, err := c.regenerateLocked(id)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	c.complete(ctx, epoch, text, false)
	return nil
}

// StartNewConversation archives the live log when it holds more than the
// seed turn, then resets to a fresh seed. While a reply is pending the
// log is not archived and the in-flight reply is detached. The returned id is empty when nothing was archived; an error wrapping
// archive.ErrUnavailable means the session is archived in memory but was
// not persisted.
func (c *Controller) StartNewConversation(ctx context.Context) (string, error) {
	c.mu.Lock()
	msgs := c.log.Messages()
	wasPending := c.pending
	c.resetLocked()
	c.mu.Unlock()

	if wasPending {
		log.Printf("conversation %s: abandoning in-flight response, unanswered log not archived", c.name)
		return "", nil
	}
	if len(msgs) <= 1 {
		return "", nil
	}
	id, err := c.archive.Archive(ctx, msgs)
	if err != nil {
		log.Printf("conversation %s: archiving: %v", c.name, err)
	}
	return id, err
}

// LoadConversation replaces the live log with a copy of an archived
// session. The archive itself is not modified.
func (c *Controller) LoadConversation(sessionID string) error {
	sess, ok := c.archive.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending {
		log.Printf("conversation %s: abandoning in-flight response to load %s", c.name, sessionID)
	}
	c.epoch++
	c.pending = false
	c.log.Reset(sess.Messages...)
	c.active = sessionID
	c.publish(&eventbus.Event{Type: eventbus.TypeReset})
	c.publish(&eventbus.Event{Type: eventbus.TypeIdle})
	return nil
}

// DeleteSession removes an archived session. If it is the one currently
// loaded, the live log is reset without archiving it again.
func (c *Controller) DeleteSession(ctx context.Context, sessionID string) error {
	err := c.archive.Delete(ctx, sessionID)

	c.mu.Lock()
	if c.active == sessionID && sessionID != "" {
		c.resetLocked()
	}
	c.mu.Unlock()

	if err != nil {
		log.Printf("conversation %s: deleting %s: %v", c.name, sessionID, err)
	}
	return err
}

// ClearHistory empties the archive and resets the live log without
// archiving it.
func (c *Controller) ClearHistory(ctx context.Context) error {
	err := c.archive.Clear(ctx)

	c.mu.Lock()
	c.resetLocked()
	c.mu.Unlock()

	if err != nil {
		log.Printf("conversation %s: clearing history: %v", c.name, err)
	}
	return err
}

// --- internals ---

// beginLocked marks the conversation pending and returns the epoch the
// outcome must match to be recorded.
func (c *Controller) beginLocked() uint64 {
	c.pending = true
	c.publish(&eventbus.Event{Type: eventbus.TypeTyping})
	return c.epoch
}

// regenerateLocked drops everything after the user turn id and begins a
// new pending call.
func (c *Controller) regenerateLocked(id string) (uint64, error) {
	if err := c.log.TruncateAfter(id, false); err != nil {
		return 0, fmt.Errorf("truncating after %s: %w", id, err)
	}
	c.publish(&eventbus.Event{Type: eventbus.TypeReset})
	return c.beginLocked(), nil
}

func (c *Controller) complete(ctx context.Context, epoch uint64, prompt string, structured bool) {
	text := FailedReplyText
	resp, err := c.gw.Complete(context.WithoutCancel(ctx), gateway.CompletionRequest{
		Message:    prompt,
		Structured: structured,
	})
	if err != nil {
		log.Printf("conversation %s: %v", c.name, err)
	} else {
		text = resp.Reply
	}
	c.finish(epoch, model.NewMessage(model.SenderAssistant, text))
}

// finish records the outcome of a gateway call and clears pending, unless
// the conversation was replaced while the call was in flight.
func (c *Controller) finish(epoch uint64, reply model.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch {
		log.Printf("conversation %s: discarding detached reply %s", c.name, reply.ID)
		return
	}
	if err := c.appendLocked(reply); err != nil {
		log.Printf("conversation %s: recording reply: %v", c.name, err)
	}
	c.pending = false
	c.publish(&eventbus.Event{Type: eventbus.TypeIdle})
}

func (c *Controller) appendLocked(msg model.Message) error {
	if err := c.log.Append(msg); err != nil {
		return fmt.Errorf("appending %s: %w", msg.ID, err)
	}
	c.publish(&eventbus.Event{Type: eventbus.TypeMessage, Message: &msg})
	return nil
}

func (c *Controller) resetLocked() {
	c.epoch++
	c.pending = false
	c.active = ""
	c.log.Reset(model.NewMessage(model.SenderAssistant, FreshText))
	c.publish(&eventbus.Event{Type: eventbus.TypeReset})
	c.publish(&eventbus.Event{Type: eventbus.TypeIdle})
}

func (c *Controller) publish(ev *eventbus.Event) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(c.name, ev)
}
