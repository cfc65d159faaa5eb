// Package discord implements the Discord messaging channel over the
// realtime gateway protocol: HELLO/IDENTIFY/RESUME handshake, heartbeat
// worker, op-code dispatch, and REST message delivery.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/parleybot/parley/internal/bus"
	"github.com/parleybot/parley/internal/channel"
	"github.com/parleybot/parley/internal/config"
	"github.com/parleybot/parley/internal/domain"
	"github.com/parleybot/parley/internal/logging"
	"github.com/parleybot/parley/internal/store"
)

const (
	channelName        = "discord"
	defaultGatewayHost = "gateway.discord.gg"
	defaultAPIBase     = "https://discord.com/api/v10"

	// maxMessageLen is the platform's message-size ceiling in bytes.
	maxMessageLen = 2000
)

// Channel implements domain.Channel for Discord.
type Channel struct {
	cfg    config.DiscordConfig
	log    *logging.Logger
	bus    bus.Publisher
	gate   channel.Gate
	sup    *channel.Supervisor
	resume *store.ResumeStore // nil disables resume persistence

	// Shared between the gateway worker and the heartbeat worker.
	seq         atomic.Int64
	heartbeatMS atomic.Int64
	ready       atomic.Bool

	// connMu guards the write path and the Stop-side socket close.
	connMu sync.Mutex
	conn   gatewayConn

	// Session identity, owned exclusively by the gateway worker.
	sessionID string
	resumeURL string
	selfID    string

	http    *http.Client
	apiBase string

	statusMu sync.Mutex
	lastErr  string
}

// New creates a Discord channel from configuration.
func New(cfg config.DiscordConfig, publisher bus.Publisher, resume *store.ResumeStore, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("discord"),
		bus: publisher,
		gate: channel.Gate{
			ListenToBots: cfg.ListenToBots,
			MentionOnly:  cfg.MentionGated(),
			Allow:        cfg.AllowFrom,
		},
		sup:     channel.NewSupervisor(channelName, log),
		resume:  resume,
		http:    &http.Client{Timeout: 30 * time.Second},
		apiBase: defaultAPIBase,
	}
}

func (c *Channel) Name() string { return channelName }

// Start launches the supervised gateway connection loop. Missing
// credentials surface here; connection failures are retried internally.
func (c *Channel) Start(ctx context.Context) error {
	if c.cfg.Token == "" {
		return &config.ConfigError{Message: "discord: token not configured"}
	}

	c.restoreResumeState()

	c.log.Info().
		Str("token", logging.Redact(c.cfg.Token)).
		Msg("starting discord gateway")
	return c.sup.Start(c.runOnce)
}

// Stop shuts the channel down: clears the run flag, closes the socket to
// unblock the gateway worker, joins both workers, and persists the resume
// state. Idempotent.
func (c *Channel) Stop(ctx context.Context) error {
	c.sup.Stop(c.closeConn)
	c.saveResumeState()
	c.ready.Store(false)
	return nil
}

// Send delivers text to a Discord channel, splitting it into
// platform-legal chunks. Each chunk is an independent API call; a failure
// aborts the remaining chunks but does not affect the gateway connection.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if c.cfg.Token == "" {
		return &config.ConfigError{Message: "discord: token not configured"}
	}
	if msg.To == "" {
		return fmt.Errorf("discord: no target specified")
	}

	// Best-effort typing indicator; failures are deliberately ignored.
	c.triggerTyping(ctx, msg.To)

	chunks := channel.Split(msg.Body, maxMessageLen)
	for i, chunk := range chunks {
		if err := c.createMessage(ctx, msg.To, chunk); err != nil {
			return fmt.Errorf("discord: sending chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}

	c.log.Debug().Str("to", msg.To).Int("chunks", len(chunks)).Msg("sent discord message")
	return nil
}

// Healthy reports whether the gateway session reached READY.
func (c *Channel) Healthy() bool { return c.ready.Load() }

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return domain.ChannelStatus{
		Channel:   channelName,
		Connected: c.ready.Load(),
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

// restoreResumeState loads a previously persisted session identity so the
// first connection attempt can RESUME instead of replaying the backlog.
func (c *Channel) restoreResumeState() {
	if c.resume == nil {
		return
	}
	state, ok, err := c.resume.Get(channelName)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to load resume state")
		return
	}
	if !ok {
		return
	}
	c.sessionID = state.SessionID
	c.resumeURL = state.ResumeURL
	c.seq.Store(state.Sequence)
	c.log.Info().Str("sessionId", state.SessionID).Int64("seq", state.Sequence).Msg("restored gateway session")
}

func (c *Channel) saveResumeState() {
	if c.resume == nil || c.sessionID == "" {
		return
	}
	err := c.resume.Put(channelName, store.ResumeState{
		SessionID: c.sessionID,
		ResumeURL: c.resumeURL,
		Sequence:  c.seq.Load(),
	})
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to save resume state")
	}
}

func (c *Channel) clearResumeState() {
	if c.resume == nil {
		return
	}
	if err := c.resume.Clear(channelName); err != nil {
		c.log.Warn().Err(err).Msg("failed to clear resume state")
	}
}

// createMessage posts one message chunk through the REST API.
func (c *Channel) createMessage(ctx context.Context, channelID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/channels/"+channelID+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("api rejected request: status %d", resp.StatusCode)
	}
	return nil
}

// triggerTyping fires the typing indicator. Errors are swallowed: the
// indicator is cosmetic and must never fail a send.
func (c *Channel) triggerTyping(ctx context.Context, channelID string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.apiBase+"/channels/"+channelID+"/typing", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
