// Package telegram provides a Telegram bot for smartbot.
//
// Uses long polling -- no public URL or webhook needed. Each chat is its
// own conversation; documents sent to the bot are attached to it.
package telegram

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/jxucoder/smartbot/channel"
	"github.com/jxucoder/smartbot/conversation"
	"github.com/jxucoder/smartbot/gateway"
)

// maxMessageLen is Telegram's limit for one text message.
const maxMessageLen = 4096

// Bot is the Telegram bot.
type Bot struct {
	api   *tgbotapi.BotAPI
	pool  *channel.Pool
	files *http.Client
}

// NewBot creates a new Telegram bot.
func NewBot(token string, pool *channel.Pool) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("creating Telegram bot: %w", err)
	}

	log.Printf("Telegram bot authorized as @%s", api.Self.UserName)

	return &Bot{
		api:   api,
		pool:  pool,
		files: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

// Name returns the channel name.
func (b *Bot) Name() string { return "telegram" }

// Run starts the long-polling loop. Blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	log.Println("Telegram bot listening for messages...")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message != nil {
				go b.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	conv := b.pool.Get(conversationKey(chatID))

	if msg.Document != nil {
		b.typing(chatID)
		b.sendReply(chatID, msg.MessageID, b.attach(ctx, msg.Document, conv))
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	if !strings.HasPrefix(text, "/") {
		b.typing(chatID)
	}
	if reply := channel.Handle(ctx, conv, text); reply != "" {
		b.sendReply(chatID, msg.MessageID, reply)
	}
}

// attach downloads a document from Telegram and uploads it to the
// conversation's gateway.
func (b *Bot) attach(ctx context.Context, doc *tgbotapi.Document, conv *conversation.Controller) string {
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		log.Printf("Telegram: failed to resolve file %s: %v", doc.FileID, err)
		return "Could not fetch that file from Telegram."
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "Could not fetch that file from Telegram."
	}
	resp, err := b.files.Do(req)
	if err != nil {
		log.Printf("Telegram: failed to download file %s: %v", doc.FileID, err)
		return "Could not fetch that file from Telegram."
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("Telegram: file %s download status %d", doc.FileID, resp.StatusCode)
		return "Could not fetch that file from Telegram."
	}

	name := doc.FileName
	if name == "" {
		name = doc.FileUniqueID
	}
	log.Printf("Telegram: attaching %s (%s)", name, humanize.Bytes(uint64(doc.FileSize)))

	return channel.Attach(ctx, conv, gateway.File{Name: name, Size: int64(doc.FileSize), Content: resp.Body})
}

// typing shows the "typing..." indicator while a reply is generated.
func (b *Bot) typing(chatID int64) {
	if _, err := b.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)); err != nil {
		log.Printf("Telegram: failed to send chat action: %v", err)
	}
}

// sendReply sends text as a reply, trying Markdown first since assistant
// replies usually contain it.
func (b *Bot) sendReply(chatID int64, replyTo int, text string) {
	for _, part := range splitMessage(text, maxMessageLen) {
		msg := tgbotapi.NewMessage(chatID, part)
		msg.ReplyToMessageID = replyTo
		msg.ParseMode = tgbotapi.ModeMarkdown

		if _, err := b.api.Send(msg); err != nil {
			// Retry without markdown in case of parse errors.
			msg.ParseMode = ""
			if _, err := b.api.Send(msg); err != nil {
				log.Printf("Telegram: failed to send message: %v", err)
			}
		}
	}
}

func conversationKey(chatID int64) string {
	return "telegram:" + strconv.FormatInt(chatID, 10)
}

// splitMessage breaks text into chunks of at most limit bytes, preferring
// line boundaries.
func splitMessage(text string, limit int) []string {
	var parts []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n")
		if cut <= 0 {
			cut = limit
			// Do not split a UTF-8 sequence.
			for cut > 0 && !utf8Start(text[cut]) {
				cut--
			}
			if cut == 0 {
				cut = limit
			}
		}
		parts = append(parts, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
