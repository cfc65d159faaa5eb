package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "debug")
}

// fakeConn scripts the server side of a gateway session. Frames pushed to
// reads are returned from ReadMessage in order; closing reads ends the
// session. Written frames are exposed on writes.
type fakeConn struct {
	reads  chan []byte
	writes chan []byte

	mu     sync.Mutex
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 16),
		writes: make(chan []byte, 16),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	b, ok := <-f.reads
	if !ok {
		return 0, nil, errors.New("use of closed network connection")
	}
	return 1, b, nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.writes <- data
	return nil
}

func (f *fakeConn) SetReadDeadline(t time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) serve(frames ...string) {
	for _, fr := range frames {
		f.reads <- []byte(fr)
	}
}

// nextWrite returns the next frame the client wrote, decoded.
func (f *fakeConn) nextWrite(t *testing.T) frame {
	t.Helper()
	select {
	case b := <-f.writes:
		var fr frame
		require.NoError(t, json.Unmarshal(b, &fr))
		return fr
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return frame{}
	}
}

// capturePublisher records published messages.
type capturePublisher struct {
	mu   sync.Mutex
	msgs []domain.InboundMessage
	err  error
}

func (p *capturePublisher) PublishInbound(msg domain.InboundMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *capturePublisher) all() []domain.InboundMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.InboundMessage(nil), p.msgs...)
}

func mentionOff() *bool {
	b := false
	return &b
}

func testChannel(pub *capturePublisher) *Channel {
	cfg := config.DiscordConfig{
		Token:       "tok",
		AllowFrom:   []string{"*"},
		MentionOnly: mentionOff(),
	}
	return New(cfg, pub, nil, testLogger())
}

const helloFrame = `{"op":10,"d":{"heartbeat_interval":41250}}`

func TestRunSessionIdentifiesAfterHello(t *testing.T) {
	c := testChannel(&capturePublisher{})
	fc := newFakeConn()

	go func() {
		fc.serve(helloFrame)
		close(fc.reads)
	}()

	// The run flag is not set, so the scripted close is a clean exit.
	assert.NoError(t, c.runSession(fc))

	fr := fc.nextWrite(t)
	assert.Equal(t, opIdentify, fr.Op)
	assert.Equal(t, int64(41250), c.heartbeatMS.Load())
}

func TestRunSessionResumesWithStoredSession(t *testing.T) {
	c := testChannel(&capturePublisher{})
	c.sessionID = "abc"
	c.seq.Store(7)
	fc := newFakeConn()

	go func() {
		fc.serve(helloFrame)
		close(fc.reads)
	}()

	c.runSession(fc)

	fr := fc.nextWrite(t)
	require.Equal(t, opResume, fr.Op)

	var d struct {
		SessionID string `json:"session_id"`
		Seq       int64  `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(fr.D, &d))
	assert.Equal(t, "abc", d.SessionID)
	assert.Equal(t, int64(7), d.Seq)
}

func TestRunSessionCapturesReady(t *testing.T) {
	c := testChannel(&capturePublisher{})
	fc := newFakeConn()

	ready := `{"op":0,"t":"READY","s":1,"d":{"session_id":"abc","resume_gateway_url":"wss://x.gg/999","user":{"id":"self1"}}}`
	go func() {
		fc.serve(helloFrame, ready)
		close(fc.reads)
	}()

	c.runSession(fc)

	assert.Equal(t, "abc", c.sessionID)
	assert.Equal(t, "wss://x.gg/999", c.resumeURL)
	assert.Equal(t, "self1", c.selfID)
	assert.Equal(t, int64(1), c.seq.Load())
	assert.True(t, c.Healthy())
}

func TestRunSessionRejectsNonHelloFirstFrame(t *testing.T) {
	c := testChannel(&capturePublisher{})
	fc := newFakeConn()

	go fc.serve(`{"op":11}`)

	err := c.runSession(fc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected HELLO")
}

func TestDispatchReconnectAbortsAttempt(t *testing.T) {
	c := testChannel(&capturePublisher{})
	fc := newFakeConn()

	go fc.serve(helloFrame, `{"op":7}`)

	err := c.runSession(fc)
	assert.ErrorIs(t, err, errReconnect)
}

func TestDispatchInvalidSessionDiscardsAndReidentifies(t *testing.T) {
	c := testChannel(&capturePublisher{})
	c.sessionID = "abc"
	c.resumeURL = "wss://x.gg"
	fc := newFakeConn()

	go func() {
		fc.serve(helloFrame, `{"op":9,"d":false}`)
		close(fc.reads)
	}()

	c.runSession(fc)

	assert.Empty(t, c.sessionID)
	assert.Empty(t, c.resumeURL)

	fc.nextWrite(t) // RESUME from the handshake
	fr := fc.nextWrite(t)
	assert.Equal(t, opIdentify, fr.Op)
}

func TestDispatchServerHeartbeatRequest(t *testing.T) {
	c := testChannel(&capturePublisher{})
	c.seq.Store(12)
	fc := newFakeConn()

	go func() {
		fc.serve(helloFrame, `{"op":1}`)
		close(fc.reads)
	}()

	c.runSession(fc)

	fc.nextWrite(t) // IDENTIFY
	b := <-fc.writes
	assert.JSONEq(t, `{"op":1,"d":12}`, string(b))
}

func TestRunSessionIgnoresBadFrames(t *testing.T) {
	c := testChannel(&capturePublisher{})
	fc := newFakeConn()

	ready := `{"op":0,"t":"READY","s":2,"d":{"session_id":"s","resume_gateway_url":"","user":{"id":"u"}}}`
	go func() {
		fc.serve(helloFrame, `not json`, ready)
		close(fc.reads)
	}()

	c.runSession(fc)
	assert.Equal(t, "s", c.sessionID)
}

func TestAdvanceSeqNeverRewinds(t *testing.T) {
	c := testChannel(&capturePublisher{})
	c.advanceSeq(5)
	c.advanceSeq(3)
	assert.Equal(t, int64(5), c.seq.Load())
	c.advanceSeq(9)
	assert.Equal(t, int64(9), c.seq.Load())
}

func messageFrame(authorID, username, channelID, guildID, content string, bot bool) json.RawMessage {
	m := map[string]any{
		"id":         "m1",
		"channel_id": channelID,
		"guild_id":   guildID,
		"content":    content,
		"timestamp":  "2026-08-30T12:00:00Z",
		"author": map[string]any{
			"id":       authorID,
			"username": username,
			"bot":      bot,
		},
	}
	b, _ := json.Marshal(m)
	return b
}

func TestHandleMessageCreatePublishes(t *testing.T) {
	pub := &capturePublisher{}
	c := testChannel(pub)
	c.selfID = "self1"

	c.handleMessageCreate(messageFrame("u1", "alice", "chan1", "guild1", "hello", false))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "discord", msgs[0].Channel)
	assert.Equal(t, "u1", msgs[0].From)
	assert.Equal(t, "alice", msgs[0].FromName)
	assert.Equal(t, "chan1", msgs[0].ChatID)
	assert.Equal(t, domain.ChatTypeGroup, msgs[0].ChatType)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.NotEmpty(t, msgs[0].ID)
	assert.Equal(t, 2026, msgs[0].Timestamp.Year())
}

func TestHandleMessageCreateDMChatType(t *testing.T) {
	pub := &capturePublisher{}
	c := testChannel(pub)

	c.handleMessageCreate(messageFrame("u1", "alice", "dm1", "", "hi", false))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.ChatTypeDM, msgs[0].ChatType)
}

func TestHandleMessageCreateDropsSelf(t *testing.T) {
	pub := &capturePublisher{}
	c := testChannel(pub)
	c.selfID = "self1"

	c.handleMessageCreate(messageFrame("self1", "me", "chan1", "g", "echo", false))
	assert.Empty(t, pub.all())
}

func TestHandleMessageCreateDropsBots(t *testing.T) {
	pub := &capturePublisher{}
	c := testChannel(pub)

	c.handleMessageCreate(messageFrame("b1", "bot", "chan1", "g", "beep", true))
	assert.Empty(t, pub.all())
}

func TestHandleMessageCreateMentionGating(t *testing.T) {
	pub := &capturePublisher{}
	cfg := config.DiscordConfig{Token: "tok", AllowFrom: []string{"*"}}
	c := New(cfg, pub, nil, testLogger())
	c.selfID = "self1"

	// Guild message without a mention is gated out.
	c.handleMessageCreate(messageFrame("u1", "alice", "chan1", "g", "hello", false))
	assert.Empty(t, pub.all())

	// Mentioning the bot passes the gate.
	c.handleMessageCreate(messageFrame("u1", "alice", "chan1", "g", "<@self1> hello", false))
	assert.Len(t, pub.all(), 1)

	// DMs are never gated.
	c.handleMessageCreate(messageFrame("u1", "alice", "dm1", "", "hello", false))
	assert.Len(t, pub.all(), 2)
}

func TestHandleMessageCreateAllowlist(t *testing.T) {
	pub := &capturePublisher{}
	cfg := config.DiscordConfig{Token: "tok", AllowFrom: []string{"u1"}, MentionOnly: mentionOff()}
	c := New(cfg, pub, nil, testLogger())

	c.handleMessageCreate(messageFrame("u1", "alice", "c", "", "hi", false))
	c.handleMessageCreate(messageFrame("u2", "mallory", "c", "", "hi", false))

	msgs := pub.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, "u1", msgs[0].From)
}

func TestHandleMessageCreateEmptyAllowlistDeniesAll(t *testing.T) {
	pub := &capturePublisher{}
	cfg := config.DiscordConfig{Token: "tok", MentionOnly: mentionOff()}
	c := New(cfg, pub, nil, testLogger())

	c.handleMessageCreate(messageFrame("u1", "alice", "c", "", "hi", false))
	assert.Empty(t, pub.all())
}

func TestHandleMessageCreateQueueFullDoesNotPanic(t *testing.T) {
	pub := &capturePublisher{err: fmt.Errorf("queue full")}
	c := testChannel(pub)

	c.handleMessageCreate(messageFrame("u1", "alice", "c", "", "hi", false))
	assert.Empty(t, pub.all())
}

func TestHeartbeatLoopSendsAfterInterval(t *testing.T) {
	c := testChannel(&capturePublisher{})
	c.heartbeatMS.Store(50)
	c.seq.Store(3)
	fc := newFakeConn()

	done := make(chan struct{})
	go c.heartbeatLoop(fc, done)

	select {
	case b := <-fc.writes:
		assert.JSONEq(t, `{"op":1,"d":3}`, string(b))
	case <-time.After(2 * time.Second):
		t.Fatal("no heartbeat sent")
	}
	close(done)
}

func TestHeartbeatLoopStopsWhileParked(t *testing.T) {
	c := testChannel(&capturePublisher{})
	fc := newFakeConn()

	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		c.heartbeatLoop(fc, done)
		close(finished)
	}()

	close(done)
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("heartbeat loop did not exit")
	}
}
