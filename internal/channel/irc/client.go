package irc

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
)

const (
	channelName    = "irc"
	defaultPort    = 6667
	defaultTLSPort = 6697

	// maxLineLen is the protocol's hard per-line byte ceiling including
	// the CRLF terminator.
	maxLineLen = 512
	// prefixMargin reserves room for the ":nick!user@host " prefix the
	// server prepends when relaying our lines to other clients.
	prefixMargin = 96

	maxNickRetries = 5

	dialTimeout = 15 * time.Second
	// registrationTimeout bounds each read during registration so a
	// silent server triggers reconnect instead of a permanent hang.
	registrationTimeout = 60 * time.Second
)

// ErrNotConnected is returned by Send when no live connection exists.
var ErrNotConnected = errors.New("irc: not connected")

// ErrCollisionLimit is returned when nick collision retries are exhausted.
var ErrCollisionLimit = errors.New("irc: nick collision limit reached")

// serviceBots are network service accounts whose messages never reach the
// agent. Matched case-insensitively against the sender nickname.
var serviceBots = map[string]struct{}{
	"nickserv": {},
	"chanserv": {},
	"memoserv": {},
	"hostserv": {},
	"botserv":  {},
	"operserv": {},
	"global":   {},
}

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg  config.IRCConfig
	log  *logging.Logger
	bus  bus.Publisher
	gate channel.Gate
	sup  *channel.Supervisor

	registered atomic.Bool

	// connMu guards the write path and the Stop-side socket close.
	connMu sync.Mutex
	conn   net.Conn

	// Owned exclusively by the connection worker.
	nick        string
	nickRetries int

	statusMu sync.Mutex
	lastErr  string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, publisher bus.Publisher, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
		bus: publisher,
		gate: channel.Gate{
			MentionOnly: cfg.MentionGated(),
			Allow:       cfg.AllowFrom,
			FoldCase:    true, // IRC nicks are case-insensitive handles
		},
		sup: channel.NewSupervisor(channelName, log),
	}
}

func (c *Channel) Name() string { return channelName }

// Start launches the supervised connection loop. Missing configuration
// surfaces here; connection failures are retried internally.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.Server == "" {
		return &config.ConfigError{Message: "irc: server not configured"}
	}
	if c.cfg.Nick == "" {
		return &config.ConfigError{Message: "irc: nick not configured"}
	}

	c.log.Info().
		Str("server", c.cfg.Server).
		Str("nick", c.cfg.Nick).
		Bool("tls", c.cfg.UseTLS).
		Bool("sasl", c.cfg.SASL).
		Str("password", logging.Redact(c.cfg.Password)).
		Msg("starting irc client")
	return c.sup.Start(c.runOnce)
}

// Stop clears the run flag, closes the socket to unblock the worker, and
// joins it. Idempotent.
func (c *Channel) Stop(ctx context.Context) error {
	c.sup.Stop(c.closeConn)
	c.registered.Store(false)
	return nil
}

// Send delivers text to a channel or nick. Explicit newlines are hard line
// breaks; each resulting line is split to fit the protocol's byte ceiling
// minus the framing and relay-prefix overhead.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if msg.To == "" {
		return fmt.Errorf("irc: no target specified")
	}

	budget := maxLineLen - prefixMargin - len("PRIVMSG ") - len(msg.To) - len(" :\r\n")
	if budget < 1 {
		return &config.ConfigError{Message: "irc: target too long for a protocol line"}
	}

	sent := 0
	for _, line := range strings.Split(msg.Body, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		for _, chunk := range channel.Split(line, budget) {
			if err := c.sendLine("PRIVMSG " + msg.To + " :" + chunk); err != nil {
				return fmt.Errorf("irc: sending to %s: %w", msg.To, err)
			}
			sent++
		}
	}

	c.log.Debug().Str("to", msg.To).Int("lines", sent).Msg("sent irc message")
	return nil
}

// Healthy reports whether registration completed on the live connection.
func (c *Channel) Healthy() bool { return c.registered.Load() }

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return domain.ChannelStatus{
		Channel:   channelName,
		Connected: c.registered.Load(),
		Running:   c.sup.Running(),
		LastError: c.lastErr,
	}
}

func (c *Channel) setErr(err error) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if err == nil {
		c.lastErr = ""
		return
	}
	c.lastErr = err.Error()
}

// runOnce performs a single connection attempt. The supervisor calls it
// repeatedly with backoff.
func (c *Channel) runOnce() error {
	conn, err := c.dial()
	if err != nil {
		c.setErr(err)
		return fmt.Errorf("irc: connecting to %s: %w", c.cfg.Server, err)
	}
	c.setConn(conn)

	err = c.runWire(conn)

	c.setConn(nil)
	conn.Close()
	c.registered.Store(false)
	c.setErr(err)
	return err
}

func (c *Channel) dial() (net.Conn, error) {
	port := c.cfg.Port
	if port == 0 {
		if c.cfg.UseTLS {
			port = defaultTLSPort
		} else {
			port = defaultPort
		}
	}
	addr := fmt.Sprintf("%s:%d", c.cfg.Server, port)

	if c.cfg.UseTLS {
		return tls.DialWithDialer(&net.Dialer{Timeout: dialTimeout}, "tcp", addr, nil)
	}
	return net.DialTimeout("tcp", addr, dialTimeout)
}

// runWire registers on the connection and then dispatches lines until the
// connection ends or a fatal condition occurs.
func (c *Channel) runWire(conn net.Conn) error {
	c.nick = c.cfg.Nick
	c.nickRetries = 0
	c.registered.Store(false)

	if err := c.register(); err != nil {
		return err
	}

	r := bufio.NewReaderSize(conn, maxLineLen*2)
	for {
		if !c.registered.Load() {
			conn.SetReadDeadline(time.Now().Add(registrationTimeout))
		} else {
			conn.SetReadDeadline(time.Time{})
		}

		raw, err := r.ReadString('\n')
		if err != nil {
			if !c.sup.Running() {
				return nil
			}
			return fmt.Errorf("irc: reading line: %w", err)
		}

		m, ok := parseLine(raw)
		if !ok {
			continue
		}
		if err := c.handleLine(m); err != nil {
			return err
		}
	}
}

// register sends the initial handshake burst. SASL is negotiated
// reactively by handleLine; PASS is used only for a plain server password.
func (c *Channel) register() error {
	if c.cfg.SASL && c.cfg.Password != "" {
		if err := c.sendLine("CAP REQ :sasl"); err != nil {
			return err
		}
	} else if c.cfg.Password != "" {
		if err := c.sendLine("PASS " + c.cfg.Password); err != nil {
			return err
		}
	}
	if err := c.sendLine("NICK " + c.nick); err != nil {
		return err
	}
	realName := c.cfg.RealName
	if realName == "" {
		realName = c.nick
	}
	return c.sendLine("USER " + c.nick + " 0 * :" + realName)
}

// handleLine routes one parsed line. A non-nil return aborts the attempt.
func (c *Channel) handleLine(m message) error {
	switch m.command {
	case "PING":
		token := ""
		if len(m.params) > 0 {
			token = m.params[len(m.params)-1]
		}
		return c.sendLine("PONG :" + token)

	case "CAP":
		for _, p := range m.params {
			if p == "ACK" {
				return c.sendLine("AUTHENTICATE PLAIN")
			}
		}

	case "AUTHENTICATE":
		if len(m.params) > 0 && m.params[0] == "+" {
			return c.sendLine("AUTHENTICATE " + saslPlain(c.cfg.Nick, c.cfg.Password))
		}

	case "903": // RPL_SASLSUCCESS
		c.log.Debug().Msg("sasl authentication succeeded")
		return c.sendLine("CAP END")

	case "904", "905": // ERR_SASLFAIL, ERR_SASLTOOLONG
		return fmt.Errorf("irc: sasl authentication failed (%s)", m.command)

	case "433": // ERR_NICKNAMEINUSE
		if c.nickRetries >= maxNickRetries {
			return fmt.Errorf("%w: nick %q still in use after %d retries", ErrCollisionLimit, c.nick, maxNickRetries)
		}
		c.nickRetries++
		c.nick += "_"
		c.log.Warn().Str("nick", c.nick).Msg("nick collision, retrying")
		return c.sendLine("NICK " + c.nick)

	case "001": // RPL_WELCOME
		c.registered.Store(true)
		c.setErr(nil)
		c.log.Info().Str("nick", c.nick).Msg("registered with server")
		for _, room := range c.cfg.Channels {
			if err := c.sendLine("JOIN " + room); err != nil {
				return err
			}
		}

	case "PRIVMSG":
		c.handlePrivmsg(m)

	default:
		c.log.Debug().Str("command", m.command).Msg("ignoring line")
	}
	return nil
}

// handlePrivmsg filters and normalizes one inbound message, then hands it
// to the bus. Publish failures release the message; they never fail the
// connection.
func (c *Channel) handlePrivmsg(m message) {
	if len(m.params) < 2 {
		c.log.Warn().Msg("privmsg missing target or text")
		return
	}
	sender := nickFromPrefix(m.prefix)
	if sender == "" || strings.EqualFold(sender, c.nick) {
		return
	}
	if _, svc := serviceBots[strings.ToLower(sender)]; svc && !c.gate.AllowBot() {
		return
	}

	target, text := m.params[0], m.params[len(m.params)-1]
	group := channelTarget(target)

	mentioned := strings.Contains(strings.ToLower(text), strings.ToLower(c.nick))
	if c.gate.GateMention(group, mentioned) {
		return
	}

	if !c.gate.AllowSender(sender) {
		c.log.Debug().Str("from", sender).Msg("sender not in allowlist, dropping message")
		return
	}

	// Channel messages are answered in the channel; direct messages are
	// answered to the sender, not to our own nick.
	replyTarget := target
	chatType := domain.ChatTypeGroup
	if !group {
		replyTarget = sender
		chatType = domain.ChatTypeDM
	}

	msg := domain.InboundMessage{
		ID:        uuid.New().String(),
		Channel:   channelName,
		From:      sender,
		FromName:  sender,
		ChatID:    replyTarget,
		ChatType:  chatType,
		Body:      text,
		Timestamp: time.Now(),
	}
	if err := c.bus.PublishInbound(msg); err != nil {
		c.log.Warn().Err(err).Str("from", sender).Msg("inbound queue rejected message, dropping")
	}
}

func (c *Channel) setConn(conn net.Conn) {
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

// sendLine writes one CRLF-terminated protocol line.
func (c *Channel) sendLine(line string) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	_, err := c.conn.Write([]byte(line + "\r\n"))
	return err
}
