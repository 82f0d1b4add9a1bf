package channel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/conversation"
	"github.com/jxucoder/smartbot/gateway"
	"github.com/jxucoder/smartbot/model"
)

// HelpText lists the commands understood by Handle.
const HelpText = `Send any text to chat with the assistant.

/new                 archive this conversation and start fresh
/retry               regenerate the last reply
/edit <text>         replace your last message and regenerate
/structured <text>   ask for a structured document analysis
/history             list archived conversations
/load <n>            continue archived conversation n
/delete <n>          delete archived conversation n
/clear               delete all archived conversations
/prompts             show suggested prompts
/help                show this message`

// BusyText is shown when input arrives while a reply is pending.
const BusyText = "Still working on your previous message, please wait."

// Handle interprets one line of user input against c and returns the text
// to show back. Plain text is sent as a message; lines starting with "/"
// are commands.
func Handle(ctx context.Context, c *conversation.Controller, input string) string {
	input = strings.TrimSpace(input)
	if input == "" {
		return ""
	}
	if !strings.HasPrefix(input, "/") {
		return replyOrError(c, c.Send(ctx, input))
	}

	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "/start", "/help":
		return HelpText

	case "/new":
		id, err := c.StartNewConversation(ctx)
		return savedText(c, id, err)

	case "/retry":
		msgs := c.Messages()
		if len(msgs) <= 1 {
			return "Nothing to retry."
		}
		return replyOrError(c, c.Retry(ctx, msgs[len(msgs)-1].ID))

	case "/edit":
		last, ok := lastBy(c, model.SenderUser)
		if !ok {
			return "You have not sent anything to edit yet."
		}
		return replyOrError(c, c.Edit(ctx, last.ID, arg))

	case "/structured":
		if arg == "" {
			arg = conversation.StructuredTemplate
		}
		return replyOrError(c, c.SendStructured(ctx, arg))

	case "/history":
		return FormatHistory(c)

	case "/load":
		sess, err := historyArg(c, arg)
		if err != nil {
			return err.Error()
		}
		if err := c.LoadConversation(sess.ID); err != nil {
			return errorText(err)
		}
		return fmt.Sprintf("Loaded %q (%d messages).\n\n%s", sess.Title, len(sess.Messages), lastText(c))

	case "/delete":
		sess, err := historyArg(c, arg)
		if err != nil {
			return err.Error()
		}
		if err := c.DeleteSession(ctx, sess.ID); err != nil && !errors.Is(err, archive.ErrUnavailable) {
			return errorText(err)
		}
		return fmt.Sprintf("Deleted %q.", sess.Title)

	case "/clear":
		if err := c.ClearHistory(ctx); err != nil && !errors.Is(err, archive.ErrUnavailable) {
			return errorText(err)
		}
		return "History cleared. Started a fresh conversation."

	case "/prompts":
		var sb strings.Builder
		sb.WriteString("Try one of these:\n")
		for _, p := range conversation.QuickPrompts {
			sb.WriteString("• " + p + "\n")
		}
		return strings.TrimRight(sb.String(), "\n")
	}

	return fmt.Sprintf("Unknown command %s. Send /help for the list.", cmd)
}

// Attach uploads file into c and returns the text to show back.
func Attach(ctx context.Context, c *conversation.Controller, file gateway.File) string {
	return replyOrError(c, c.AttachFile(ctx, file))
}

// FormatHistory renders the archive as a numbered list, most recent first.
func FormatHistory(c *conversation.Controller) string {
	var sb strings.Builder
	n := 0
	for s := range c.History() {
		n++
		fmt.Fprintf(&sb, "%d. %s (%d messages, %s)\n", n, s.Title, len(s.Messages), humanize.Time(s.CreatedAt))
	}
	if n == 0 {
		return "No conversation history yet."
	}
	return strings.TrimRight(sb.String(), "\n")
}

// savedText reports the outcome of /new. The archived session may already
// have been evicted by another conversation sharing the archive.
func savedText(c *conversation.Controller, id string, err error) string {
	if id == "" {
		return "Started a fresh conversation."
	}
	msg := "Saved the conversation to history. Started a fresh conversation."
	if sess, ok := sessionByID(c, id); ok {
		msg = fmt.Sprintf("Saved %q to history. Started a fresh conversation.", sess.Title)
	}
	if errors.Is(err, archive.ErrUnavailable) {
		msg += "\n(Warning: history could not be written to storage.)"
	}
	return msg
}

func replyOrError(c *conversation.Controller, err error) string {
	if err != nil {
		return errorText(err)
	}
	return lastText(c)
}

func errorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return BusyText
	case errors.Is(err, conversation.ErrNoFile):
		return "That file has no name."
	case errors.Is(err, conversation.ErrBlankText):
		return "Please include some text."
	case errors.Is(err, conversation.ErrNotFound), errors.Is(err, conversation.ErrSessionNotFound):
		return "That conversation or message no longer exists."
	case errors.Is(err, conversation.ErrNotEditable):
		return "Only your own messages can be edited."
	}
	return "Something went wrong: " + err.Error()
}

func lastText(c *conversation.Controller) string {
	msgs := c.Messages()
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

func lastBy(c *conversation.Controller, sender model.Sender) (model.Message, bool) {
	msgs := c.Messages()
	for j := len(msgs) - 1; j >= 0; j-- {
		if msgs[j].Sender == sender {
			return msgs[j], true
		}
	}
	return model.Message{}, false
}

func historyArg(c *conversation.Controller, arg string) (model.Session, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return model.Session{}, errors.New("Please give a conversation number from /history.")
	}
	sess, ok := historyAt(c, n)
	if !ok {
		return model.Session{}, fmt.Errorf("There is no conversation %d in /history.", n)
	}
	return sess, nil
}

// historyAt returns the n-th archived session, counting from 1.
func historyAt(c *conversation.Controller, n int) (model.Session, bool) {
	i := 0
	for s := range c.History() {
		i++
		if i == n {
			return s, true
		}
	}
	return model.Session{}, false
}

func sessionByID(c *conversation.Controller, id string) (model.Session, bool) {
	for s := range c.History() {
		if s.ID == id {
			return s, true
		}
	}
	return model.Session{}, false
}
