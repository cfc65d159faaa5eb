package discord

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/parleybot/parley/internal/domain"
)

const (
	handshakeTimeout = 15 * time.Second
	// helloTimeout bounds the wait for the first frame so a silent remote
	// triggers reconnect instead of a permanent hang.
	helloTimeout = 30 * time.Second
	// heartbeatSlice bounds shutdown latency inside the heartbeat worker.
	heartbeatSlice = 100 * time.Millisecond
)

// errReconnect aborts the current attempt when the server requests a
// reconnect; the supervisor retries after backoff.
var errReconnect = errors.New("discord: server requested reconnect")

// gatewayConn is the narrow slice of *websocket.Conn the protocol logic
// needs, so the dispatch loop is testable against scripted fakes.
type gatewayConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// runOnce performs a single connection attempt: dial, handshake, and the
// steady-state dispatch loop. The supervisor calls it repeatedly.
func (c *Channel) runOnce() error {
	host := defaultGatewayHost
	if c.resumeURL != "" {
		host = parseGatewayHost(c.resumeURL)
	}

	conn, err := c.dial(host)
	if err != nil {
		c.setErr(err)
		return fmt.Errorf("discord: connecting to %s: %w", host, err)
	}
	c.setConn(conn)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.heartbeatLoop(conn, done)
	}()

	err = c.runSession(conn)

	close(done)
	c.setConn(nil)
	conn.Close()
	wg.Wait()

	c.ready.Store(false)
	c.heartbeatMS.Store(0)
	c.setErr(err)
	return err
}

func (c *Channel) dial(host string) (gatewayConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial("wss://"+host+"/?v=10&encoding=json", nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// runSession drives one gateway session: HELLO, IDENTIFY or RESUME, then
// the dispatch loop until the connection ends or a fatal condition occurs.
func (c *Channel) runSession(conn gatewayConn) error {
	// The first frame must be HELLO; don't wait for it forever.
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("discord: reading HELLO: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var hello frame
	if err := json.Unmarshal(raw, &hello); err != nil || hello.Op != opHello {
		return fmt.Errorf("discord: expected HELLO, got %q", raw)
	}
	if err := c.storeHello(hello.D); err != nil {
		return err
	}

	if c.sessionID != "" {
		c.log.Info().Str("sessionId", c.sessionID).Int64("seq", c.seq.Load()).Msg("resuming gateway session")
		err = c.writeFrame(conn, resumePayload(c.cfg.Token, c.sessionID, c.seq.Load()))
	} else {
		c.log.Info().Msg("identifying new gateway session")
		err = c.writeFrame(conn, identifyPayload(c.cfg.Token, c.intents()))
	}
	if err != nil {
		return fmt.Errorf("discord: handshake send: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if !c.sup.Running() {
				return nil
			}
			return fmt.Errorf("discord: gateway read: %w", err)
		}

		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.log.Warn().Err(err).Msg("ignoring unparseable gateway frame")
			continue
		}
		if err := c.dispatch(conn, f); err != nil {
			return err
		}
	}
}

func (c *Channel) intents() uint {
	if c.cfg.Intents != 0 {
		return c.cfg.Intents
	}
	return defaultIntents
}

func (c *Channel) storeHello(d json.RawMessage) error {
	var hello helloData
	if err := json.Unmarshal(d, &hello); err != nil || hello.HeartbeatInterval <= 0 {
		return fmt.Errorf("discord: malformed HELLO payload")
	}
	c.heartbeatMS.Store(hello.HeartbeatInterval)
	c.log.Debug().Int64("intervalMs", hello.HeartbeatInterval).Msg("heartbeat interval negotiated")
	return nil
}

// dispatch routes one gateway frame. A non-nil return aborts the attempt.
func (c *Channel) dispatch(conn gatewayConn, f frame) error {
	switch f.Op {
	case opHello:
		return c.storeHello(f.D)

	case opDispatch:
		if f.S != nil {
			c.advanceSeq(*f.S)
		}
		switch f.T {
		case "READY":
			c.handleReady(f.D)
		case "MESSAGE_CREATE":
			c.handleMessageCreate(f.D)
		default:
			c.log.Debug().Str("event", f.T).Msg("ignoring dispatch event")
		}

	case opHeartbeat:
		// Server-requested heartbeat: answer immediately.
		if err := c.writeFrame(conn, heartbeatPayload(c.seq.Load())); err != nil {
			return fmt.Errorf("discord: requested heartbeat: %w", err)
		}

	case opHeartbeatACK:
		// No-op.

	case opReconnect:
		return errReconnect

	case opInvalidSession:
		var resumable bool
		_ = json.Unmarshal(f.D, &resumable)
		if !resumable {
			c.log.Warn().Msg("session invalidated, discarding session state")
			c.sessionID = ""
			c.resumeURL = ""
			c.clearResumeState()
		}
		if err := c.writeFrame(conn, identifyPayload(c.cfg.Token, c.intents())); err != nil {
			return fmt.Errorf("discord: re-identify after invalid session: %w", err)
		}

	default:
		c.log.Debug().Int("op", f.Op).Msg("ignoring unknown gateway op")
	}
	return nil
}

// advanceSeq moves the stored sequence forward only; out-of-order
// redelivery after a resume never rewinds it.
func (c *Channel) advanceSeq(s int64) {
	for {
		cur := c.seq.Load()
		if s <= cur || c.seq.CompareAndSwap(cur, s) {
			return
		}
	}
}

// handleReady captures the session identity, replacing any prior values.
func (c *Channel) handleReady(d json.RawMessage) {
	var ready readyData
	if err := json.Unmarshal(d, &ready); err != nil {
		c.log.Warn().Err(err).Msg("malformed READY payload")
		return
	}
	c.sessionID = ready.SessionID
	c.resumeURL = ready.ResumeGatewayURL
	c.selfID = ready.User.ID
	c.ready.Store(true)
	c.setErr(nil)
	c.saveResumeState()
	c.log.Info().Str("sessionId", ready.SessionID).Str("selfId", ready.User.ID).Msg("gateway session ready")
}

// handleMessageCreate filters and normalizes one inbound message, then
// hands it to the bus. Publish failures release the message; they never
// fail the connection.
func (c *Channel) handleMessageCreate(d json.RawMessage) {
	var m messageCreate
	if err := json.Unmarshal(d, &m); err != nil {
		c.log.Warn().Err(err).Msg("malformed MESSAGE_CREATE payload")
		return
	}

	if m.Author.ID == c.selfID {
		return
	}
	if m.Author.Bot && !c.gate.AllowBot() {
		return
	}

	group := m.GuildID != ""
	if c.gate.GateMention(group, isMentioned(m.Content, c.selfID)) {
		return
	}

	if !c.gate.AllowSender(m.Author.ID) {
		c.log.Debug().Str("from", m.Author.ID).Msg("sender not in allowlist, dropping message")
		return
	}

	chatType := domain.ChatTypeDM
	if group {
		chatType = domain.ChatTypeGroup
	}

	ts, err := time.Parse(time.RFC3339, m.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	msg := domain.InboundMessage{
		ID:        uuid.New().String(),
		Channel:   channelName,
		From:      m.Author.ID,
		FromName:  m.Author.Username,
		ChatID:    m.ChannelID,
		ChatType:  chatType,
		Body:      m.Content,
		Timestamp: ts,
	}
	for _, a := range m.Attachments {
		msg.Media = append(msg.Media, domain.Attachment{
			ID:       a.ID,
			URL:      a.URL,
			Filename: a.Filename,
			Size:     a.Size,
		})
	}

	if err := c.bus.PublishInbound(msg); err != nil {
		c.log.Warn().Err(err).Str("from", m.Author.ID).Msg("inbound queue rejected message, dropping")
	}
}

// heartbeatLoop periodically sends a keepalive frame once the interval is
// known. It parks until HELLO sets the interval, then sleeps the full
// interval in small slices so shutdown stays responsive. Send failures are
// logged, not fatal: the receive loop surfaces the connection error.
func (c *Channel) heartbeatLoop(conn gatewayConn, done <-chan struct{}) {
	for c.heartbeatMS.Load() == 0 {
		select {
		case <-done:
			return
		case <-time.After(heartbeatSlice):
		}
	}

	for {
		interval := time.Duration(c.heartbeatMS.Load()) * time.Millisecond
		if !c.sleepHeartbeat(interval, done) {
			return
		}
		if err := c.writeFrame(conn, heartbeatPayload(c.seq.Load())); err != nil {
			c.log.Warn().Err(err).Msg("heartbeat send failed")
		}
	}
}

// sleepHeartbeat waits for the full interval, returning false if the
// attempt ended first.
func (c *Channel) sleepHeartbeat(interval time.Duration, done <-chan struct{}) bool {
	deadline := time.Now().Add(interval)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		if remaining > heartbeatSlice {
			remaining = heartbeatSlice
		}
		select {
		case <-done:
			return false
		case <-time.After(remaining):
		}
	}
}

func (c *Channel) setConn(conn gatewayConn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.conn = conn
}

// closeConn closes the live socket so a read blocked in a syscall fails
// promptly. Called from the stopping goroutine.
func (c *Channel) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

// writeFrame serializes writes; the gateway worker and the heartbeat
// worker share the socket's write side.
func (c *Channel) writeFrame(conn gatewayConn, data []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}
