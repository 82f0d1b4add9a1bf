// Package smartbot is the top-level entry point for the smartbot server.
//
// Use the Builder to compose an application:
//
//	app, err := smartbot.NewBuilder().WithConfig(cfg).Build()
//	app.Start(ctx)
//
// Or replace individual components:
//
//	app, err := smartbot.NewBuilder().
//	    WithStore(myStore).
//	    WithGateway(myGateway).
//	    Build()
package smartbot

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/channel"
	"github.com/jxucoder/smartbot/conversation"
	"github.com/jxucoder/smartbot/eventbus"
	"github.com/jxucoder/smartbot/gateway"
	"github.com/jxucoder/smartbot/httpapi"
)

// WebConversation is the bus name of the conversation served over HTTP.
const WebConversation = "web"

// Config holds top-level configuration for a smartbot application.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (default ":7080").
	ServerAddr string

	// DataDir is the directory for persistent data (default "~/.smartbot").
	DataDir string

	// Store selects the history backend: "sqlite" (default), "bolt" or "memory".
	Store string

	// StorePath overrides the database file for the sqlite and bolt backends.
	StorePath string

	// HistoryLimit caps the number of archived conversations (default 20).
	HistoryLimit int

	// GatewayURL is the base URL of the chat backend.
	GatewayURL string

	// GatewayToken and GatewayCookie are attached to every gateway request.
	GatewayToken  string
	GatewayCookie string

	// GatewayTimeout bounds each gateway request (default 2m).
	GatewayTimeout time.Duration
}

// Builder constructs an App.
type Builder struct {
	config   Config
	store    archive.Store
	bus      eventbus.Bus
	gw       gateway.Gateway
	convOpts []conversation.Option
}

// NewBuilder creates a new Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the history persistence backend.
func (b *Builder) WithStore(s archive.Store) *Builder {
	b.store = s
	return b
}

// WithBus sets the event bus implementation.
func (b *Builder) WithBus(bus eventbus.Bus) *Builder {
	b.bus = bus
	return b
}

// WithGateway sets the chat backend.
func (b *Builder) WithGateway(gw gateway.Gateway) *Builder {
	b.gw = gw
	return b
}

// WithConversationOptions adds options applied to the web conversation,
// such as a transcriber or speaker.
func (b *Builder) WithConversationOptions(opts ...conversation.Option) *Builder {
	b.convOpts = append(b.convOpts, opts...)
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	arc := archive.New(b.store, b.config.HistoryLimit)
	if err := arc.Restore(context.Background()); err != nil {
		log.Printf("Warning: starting with empty history: %v", err)
	}

	opts := append([]conversation.Option{conversation.WithBus(b.bus, WebConversation)}, b.convOpts...)
	web := conversation.New(b.gw, arc, opts...)

	return &App{
		config:  b.config,
		store:   b.store,
		bus:     b.bus,
		archive: arc,
		web:     web,
		pool:    channel.NewPool(b.gw, arc, b.bus),
		handler: httpapi.New(web, b.bus),
	}, nil
}

// App is a smartbot application.
type App struct {
	config   Config
	store    archive.Store
	bus      eventbus.Bus
	archive  *archive.Archive
	web      *conversation.Controller
	pool     *channel.Pool
	handler  *httpapi.Handler
	channels []channel.Channel
}

// Conversation returns the conversation served over HTTP.
func (a *App) Conversation() *conversation.Controller { return a.web }

// Pool returns the per-chat conversations used by channels.
func (a *App) Pool() *channel.Pool { return a.pool }

// Archive returns the shared history.
func (a *App) Archive() *archive.Archive { return a.archive }

// Handler returns the HTTP API handler.
func (a *App) Handler() *httpapi.Handler { return a.handler }

// AddChannel registers a channel to run alongside the HTTP server.
func (a *App) AddChannel(ch channel.Channel) {
	a.channels = append(a.channels, ch)
}

// Start starts the HTTP server and all channels. Blocks until ctx is done.
func (a *App) Start(ctx context.Context) error {
	for _, ch := range a.channels {
		go func() {
			if err := ch.Run(ctx); err != nil {
				log.Printf("%s channel error: %v", ch.Name(), err)
			}
		}()
	}

	srv := &http.Server{
		Addr:    a.config.ServerAddr,
		Handler: a.handler.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("smartbot server listening on %s", a.config.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return a.Close()
}

// Close releases the store.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
