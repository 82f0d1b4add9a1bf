// Package slack provides a Slack bot for smartbot using Socket Mode.
//
// Socket Mode connects to Slack via WebSocket -- no public URL needed.
// Each thread the bot is mentioned in, and each direct-message channel,
// is its own conversation.
package slack

import (
	"context"
	"log"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/jxucoder/smartbot/channel"
)

// Bot is the Slack Socket Mode bot.
type Bot struct {
	api          *slack.Client
	socketClient *socketmode.Client
	pool         *channel.Pool
}

// NewBot creates a new Slack Socket Mode bot.
func NewBot(botToken, appToken string, pool *channel.Pool) *Bot {
	api := slack.New(
		botToken,
		slack.OptionAppLevelToken(appToken),
	)

	socketClient := socketmode.New(
		api,
		socketmode.OptionLog(log.New(log.Writer(), "slack-socketmode: ", log.LstdFlags)),
	)

	return &Bot{
		api:          api,
		socketClient: socketClient,
		pool:         pool,
	}
}

// Name returns the channel name.
func (b *Bot) Name() string { return "slack" }

// Run connects to Slack via Socket Mode and processes events.
// It blocks until the context is canceled or a fatal error occurs.
func (b *Bot) Run(ctx context.Context) error {
	go b.eventLoop(ctx)
	log.Println("Slack bot connecting via Socket Mode...")
	return b.socketClient.RunContext(ctx)
}

func (b *Bot) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.socketClient.Events:
			if !ok {
				return
			}
			b.handleEvent(ctx, evt)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		log.Println("Slack: connecting...")
	case socketmode.EventTypeConnected:
		log.Println("Slack: connected")
	case socketmode.EventTypeConnectionError:
		log.Println("Slack: connection error, will retry...")
	case socketmode.EventTypeEventsAPI:
		eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		// Slack requires an ack within 3 seconds.
		b.socketClient.Ack(*evt.Request)

		if eventsAPIEvent.Type == slackevents.CallbackEvent {
			b.handleCallbackEvent(ctx, eventsAPIEvent.InnerEvent)
		}
	case socketmode.EventTypeInteractive:
		b.socketClient.Ack(*evt.Request)
	}
}

func (b *Bot) handleCallbackEvent(ctx context.Context, innerEvent slackevents.EventsAPIInnerEvent) {
	switch ev := innerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		threadTS := threadOf(ev.TimeStamp, ev.ThreadTimeStamp)
		go b.respond(ctx, ev.Channel, threadTS, stripMention(ev.Text))
	case *slackevents.MessageEvent:
		// Direct messages only; mentions in channels arrive as AppMentionEvent.
		if ev.ChannelType != "im" || ev.BotID != "" || ev.SubType != "" {
			return
		}
		go b.respond(ctx, ev.Channel, "", ev.Text)
	}
}

// respond runs one line of input through the conversation for the
// thread and posts the result.
func (b *Bot) respond(ctx context.Context, channelID, threadTS, text string) {
	if strings.TrimSpace(text) == "" {
		b.post(channelID, threadTS, "Say something after mentioning me, or send `/help`.")
		return
	}
	conv := b.pool.Get(conversationKey(channelID, threadTS))
	reply := channel.Handle(ctx, conv, text)
	if reply == "" {
		return
	}
	b.post(channelID, threadTS, reply)
}

// post sends a plain text message, as a thread reply when threadTS is set.
func (b *Bot) post(channelID, threadTS, text string) {
	opts := []slack.MsgOption{slack.MsgOptionText(text, false)}
	if threadTS != "" {
		opts = append(opts, slack.MsgOptionTS(threadTS))
	}
	if _, _, err := b.api.PostMessage(channelID, opts...); err != nil {
		log.Printf("Slack: failed to post message to %s: %v", channelID, err)
	}
}

// stripMention removes the leading bot mention (<@U12345>) from text.
func stripMention(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "<@") {
		if idx := strings.Index(text, ">"); idx >= 0 {
			text = text[idx+1:]
		}
	}
	return strings.TrimSpace(text)
}

// threadOf returns the thread a reply belongs in.
func threadOf(ts, threadTS string) string {
	if threadTS != "" {
		return threadTS
	}
	return ts
}

func conversationKey(channelID, threadTS string) string {
	if threadTS == "" {
		return "slack:" + channelID
	}
	return "slack:" + channelID + ":" + threadTS
}
