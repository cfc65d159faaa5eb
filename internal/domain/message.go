// Package domain defines the transport-agnostic types shared by channels,
// the bus, and the router.
package domain

import "time"

// ChatType classifies the conversation context.
type ChatType string

const (
	ChatTypeDM    ChatType = "dm"
	ChatTypeGroup ChatType = "group"
)

// Attachment represents a file or media attachment on a message.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// InboundMessage is the canonical message a transport hands to the bus.
// Ownership transfers to the bus on successful publish; on failure the
// transport keeps it.
type InboundMessage struct {
	ID        string       `json:"id"`
	Channel   string       `json:"channel"`
	From      string       `json:"from"`
	FromName  string       `json:"fromName,omitempty"`
	ChatID    string       `json:"chatId"`
	ChatType  ChatType     `json:"chatType"`
	Body      string       `json:"body"`
	Timestamp time.Time    `json:"timestamp"`
	Media     []Attachment `json:"media,omitempty"`
}

// SessionKey returns the stable per-conversation key for this message.
func (m InboundMessage) SessionKey() string {
	return m.Channel + ":" + m.ChatID
}

// OutboundMessage is a message to be sent via a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	To      string `json:"to"`
	Body    string `json:"body"`
}
