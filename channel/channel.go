// Package channel connects chat surfaces (Slack, Telegram, the terminal)
// to conversation controllers.
package channel

import (
	"context"
	"sync"

	"github.com/jxucoder/smartbot/archive"
	"github.com/jxucoder/smartbot/conversation"
	"github.com/jxucoder/smartbot/eventbus"
	"github.com/jxucoder/smartbot/gateway"
)

// Channel is a long-running chat surface.
type Channel interface {
	Name() string
	Run(ctx context.Context) error
}

// Pool hands out one controller per conversation key. All controllers
// share the gateway, archive and bus.
type Pool struct {
	gw      gateway.Gateway
	archive *archive.Archive
	bus     eventbus.Bus

	mu    sync.Mutex
	convs map[string]*conversation.Controller
}

// NewPool creates an empty pool. bus may be nil.
func NewPool(gw gateway.Gateway, arc *archive.Archive, bus eventbus.Bus) *Pool {
	return &Pool{
		gw:      gw,
		archive: arc,
		bus:     bus,
		convs:   make(map[string]*conversation.Controller),
	}
}

// Get returns the controller for key, creating it on first use.
func (p *Pool) Get(key string) *conversation.Controller {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c, ok := p.convs[key]; ok {
		return c
	}
	var opts []conversation.Option
	if p.bus != nil {
		opts = append(opts, conversation.WithBus(p.bus, key))
	}
	c := conversation.New(p.gw, p.archive, opts...)
	p.convs[key] = c
	return c
}

// Len returns the number of live conversations.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.convs)
}
