package routing

import (
	"context"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

// Handler answers one inbound message. An empty reply with a nil error
// means "no response". This is the seam where an agent plugs in.
type Handler interface {
	Handle(ctx context.Context, sessionKey string, msg domain.InboundMessage) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, sessionKey string, msg domain.InboundMessage) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, sessionKey string, msg domain.InboundMessage) (string, error) {
	return f(ctx, sessionKey, msg)
}

// Router consumes the bus inbound queue and publishes handler replies as
// outbound messages addressed back to the originating chat.
type Router struct {
	bus     *bus.Bus
	handler Handler
	scope   string
	log     *logging.Logger
}

func NewRouter(b *bus.Bus, handler Handler, scope string, log *logging.Logger) *Router {
	return &Router{
		bus:     b,
		handler: handler,
		scope:   scope,
		log:     log.Sub("router"),
	}
}

// Run processes inbound messages until the context is canceled. Handler
// failures are logged per message; they never stop the loop.
func (r *Router) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.bus.Inbound():
			r.route(ctx, msg)
		}
	}
}

func (r *Router) route(ctx context.Context, msg domain.InboundMessage) {
	key := ResolveSessionKey(r.scope, msg)
	r.log.Debug().
		Str("session", key).
		Str("channel", msg.Channel).
		Str("from", msg.From).
		Msg("routing inbound message")

	reply, err := r.handler.Handle(ctx, key, msg)
	if err != nil {
		r.log.Error().Err(err).Str("session", key).Msg("handler failed")
		return
	}
	if reply == "" {
		return
	}

	out := domain.OutboundMessage{
		Channel: msg.Channel,
		To:      msg.ChatID,
		Body:    reply,
	}
	if err := r.bus.PublishOutbound(out); err != nil {
		r.log.Warn().Err(err).Str("session", key).Msg("outbound queue rejected reply, dropping")
	}
}
