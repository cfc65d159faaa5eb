package discord

import (
	"encoding/json"
	"runtime"
	"strings"
)

// Gateway op codes.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opResume         = 6
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatACK   = 11
)

// defaultIntents requests guild messages, direct messages, and message
// content: GUILDS | GUILD_MESSAGES | DIRECT_MESSAGES | MESSAGE_CONTENT.
const defaultIntents uint = 1<<0 | 1<<9 | 1<<12 | 1<<15

// frame is the envelope of every gateway message.
type frame struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *int64          `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// helloData is the payload of the HELLO frame.
type helloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// readyData is the payload of the READY dispatch event.
type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
	User             struct {
		ID string `json:"id"`
	} `json:"user"`
}

// messageCreate is the payload of the MESSAGE_CREATE dispatch event,
// reduced to the fields the channel layer needs.
type messageCreate struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Author    struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"author"`
	Attachments []struct {
		ID       string `json:"id"`
		URL      string `json:"url"`
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	} `json:"attachments"`
}

// heartbeatPayload builds a heartbeat frame carrying the current sequence.
// A zero sequence sends a null payload.
func heartbeatPayload(seq int64) []byte {
	var d any
	if seq != 0 {
		d = seq
	}
	data, _ := json.Marshal(struct {
		Op int `json:"op"`
		D  any `json:"d"`
	}{Op: opHeartbeat, D: d})
	return data
}

// identifyPayload builds the IDENTIFY frame for a fresh session.
func identifyPayload(token string, intents uint) []byte {
	data, _ := json.Marshal(struct {
		Op int `json:"op"`
		D  any `json:"d"`
	}{
		Op: opIdentify,
		D: map[string]any{
			"token":   "Bot " + token,
			"intents": intents,
			"properties": map[string]string{
				"os":      runtime.GOOS,
				"browser": "parley",
				"device":  "parley",
			},
		},
	})
	return data
}

// resumePayload builds the RESUME frame for reattaching to a prior session.
func resumePayload(token, sessionID string, seq int64) []byte {
	data, _ := json.Marshal(struct {
		Op int `json:"op"`
		D  any `json:"d"`
	}{
		Op: opResume,
		D: map[string]any{
			"token":      "Bot " + token,
			"session_id": sessionID,
			"seq":        seq,
		},
	})
	return data
}

// parseGatewayHost extracts the bare host from a gateway URL. A bare
// hostname with no scheme is returned unchanged.
func parseGatewayHost(raw string) string {
	host := raw
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/?"); i >= 0 {
		host = host[:i]
	}
	return host
}

// isMentioned reports whether the bot identified by id is referenced in
// text using Discord's mention syntax (plain or nickname form).
func isMentioned(text, id string) bool {
	if id == "" {
		return false
	}
	return strings.Contains(text, "<@"+id+">") || strings.Contains(text, "<@!"+id+">")
}
