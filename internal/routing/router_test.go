package routing

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "debug")
}

func inbound(channel, from, chatID, body string) domain.InboundMessage {
	return domain.InboundMessage{
		ID:        "m1",
		Channel:   channel,
		From:      from,
		FromName:  from,
		ChatID:    chatID,
		ChatType:  domain.ChatTypeGroup,
		Body:      body,
		Timestamp: time.Now(),
	}
}

func TestResolveSessionKey(t *testing.T) {
	msg := inbound("irc", "alice", "#general", "hi")

	assert.Equal(t, "irc:#general:alice", ResolveSessionKey(ScopePerSender, msg))
	assert.Equal(t, "global", ResolveSessionKey(ScopeGlobal, msg))

	// Unknown scope falls back to per-sender.
	assert.Equal(t, "irc:#general:alice", ResolveSessionKey("", msg))
}

func TestRouterRepliesToOriginChat(t *testing.T) {
	b := bus.New(10)
	var got []domain.OutboundMessage
	var mu sync.Mutex
	b.Subscribe("discord", func(out domain.OutboundMessage) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, out)
	})

	handler := HandlerFunc(func(ctx context.Context, key string, msg domain.InboundMessage) (string, error) {
		return "pong: " + msg.Body, nil
	})
	r := NewRouter(b, handler, ScopePerSender, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)
	go b.DispatchOutbound(ctx)

	require.NoError(t, b.PublishInbound(inbound("discord", "u1", "chan1", "ping")))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "discord", got[0].Channel)
	assert.Equal(t, "chan1", got[0].To)
	assert.Equal(t, "pong: ping", got[0].Body)
}

func TestRouterSkipsEmptyReplies(t *testing.T) {
	b := bus.New(10)
	handler := HandlerFunc(func(ctx context.Context, key string, msg domain.InboundMessage) (string, error) {
		return "", nil
	})
	r := NewRouter(b, handler, ScopePerSender, testLogger())

	r.route(context.Background(), inbound("irc", "alice", "#x", "hi"))

	select {
	case out := <-b.Outbound():
		t.Fatalf("unexpected outbound message: %+v", out)
	default:
	}
}

func TestRouterSurvivesHandlerErrors(t *testing.T) {
	b := bus.New(10)
	calls := 0
	handler := HandlerFunc(func(ctx context.Context, key string, msg domain.InboundMessage) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	})
	r := NewRouter(b, handler, ScopePerSender, testLogger())

	r.route(context.Background(), inbound("irc", "alice", "#x", "first"))
	r.route(context.Background(), inbound("irc", "alice", "#x", "second"))

	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, len(b.Outbound()))
}

func TestRouterRunStopsOnCancel(t *testing.T) {
	b := bus.New(10)
	r := NewRouter(b, HandlerFunc(func(ctx context.Context, key string, msg domain.InboundMessage) (string, error) {
		return "", nil
	}), ScopePerSender, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
}

func TestExecHandler(t *testing.T) {
	h := NewExecHandler("tr a-z A-Z", time.Second, testLogger())

	reply, err := h.Handle(context.Background(), "k", inbound("irc", "alice", "#x", "hello"))
	require.NoError(t, err)
	assert.Equal(t, "HELLO", reply)
}

func TestExecHandlerEnvironment(t *testing.T) {
	h := NewExecHandler(`printf '%s|%s' "$PARLEY_CHANNEL" "$PARLEY_SESSION"`, time.Second, testLogger())

	reply, err := h.Handle(context.Background(), "irc:#x:alice", inbound("irc", "alice", "#x", "hi"))
	require.NoError(t, err)
	assert.Equal(t, "irc|irc:#x:alice", reply)
}

func TestExecHandlerFailureIncludesStderr(t *testing.T) {
	h := NewExecHandler("echo nope >&2; exit 3", time.Second, testLogger())

	_, err := h.Handle(context.Background(), "k", inbound("irc", "alice", "#x", "hi"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestExecHandlerTimeout(t *testing.T) {
	h := NewExecHandler("sleep 5", 50*time.Millisecond, testLogger())

	_, err := h.Handle(context.Background(), "k", inbound("irc", "alice", "#x", "hi"))
	assert.Error(t, err)
}
