// Package routing drains the inbound queue, resolves conversation
// sessions, and turns handler replies into outbound messages.
package routing

import "github.com/parleybot/parley/internal/domain"

// Session scopes.
const (
	ScopePerSender = "per-sender"
	ScopeGlobal    = "global"
)

// ResolveSessionKey derives the conversation session key for a message.
// Per-sender scope gives every sender in every room its own session;
// global scope funnels all traffic into one.
func ResolveSessionKey(scope string, msg domain.InboundMessage) string {
	if scope == ScopeGlobal {
		return "global"
	}
	return msg.SessionKey() + ":" + msg.From
}
