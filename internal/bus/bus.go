// Package bus provides the async message queue between channels and the
// agent core. Channels are producers only; a single consumer drains the
// inbound queue.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/parleybot/parley/internal/domain"
)

// ErrQueueFull is returned when the inbound queue cannot accept a message.
// The caller retains ownership of the message.
var ErrQueueFull = errors.New("bus: inbound queue full")

// Publisher is the producer-side contract channels depend on.
type Publisher interface {
	PublishInbound(msg domain.InboundMessage) error
}

const defaultQueueSize = 100

// Bus carries inbound messages from channels to the router and outbound
// messages from the router back to per-channel subscribers.
type Bus struct {
	inbound  chan domain.InboundMessage
	outbound chan domain.OutboundMessage

	mu          sync.RWMutex
	subscribers map[string][]func(domain.OutboundMessage)
}

// New creates a bus with buffered queues of the given size.
// A size of zero or less uses the default.
func New(size int) *Bus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bus{
		inbound:     make(chan domain.InboundMessage, size),
		outbound:    make(chan domain.OutboundMessage, size),
		subscribers: make(map[string][]func(domain.OutboundMessage)),
	}
}

// PublishInbound enqueues a message from a channel. It never blocks: when
// the queue is full it returns ErrQueueFull and the caller keeps the
// message.
func (b *Bus) PublishInbound(msg domain.InboundMessage) error {
	select {
	case b.inbound <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Inbound returns the consumer side of the inbound queue.
func (b *Bus) Inbound() <-chan domain.InboundMessage {
	return b.inbound
}

// PublishOutbound enqueues a response for dispatch to channel subscribers.
func (b *Bus) PublishOutbound(msg domain.OutboundMessage) error {
	select {
	case b.outbound <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Outbound returns the consumer side of the outbound queue. Most callers
// want DispatchOutbound instead.
func (b *Bus) Outbound() <-chan domain.OutboundMessage {
	return b.outbound
}

// Subscribe registers a callback for outbound messages on a channel name.
func (b *Bus) Subscribe(channel string, fn func(domain.OutboundMessage)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[channel] = append(b.subscribers[channel], fn)
}

// DispatchOutbound runs the outbound dispatch loop until ctx is cancelled.
func (b *Bus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.outbound:
			b.mu.RLock()
			subs := b.subscribers[msg.Channel]
			b.mu.RUnlock()
			for _, fn := range subs {
				fn(msg)
			}
		}
	}
}

// InboundSize returns the number of pending inbound messages.
func (b *Bus) InboundSize() int { return len(b.inbound) }
