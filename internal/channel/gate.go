package channel

import "strings"

// Gate holds the shared inbound filtering rules. The checks are applied by
// each transport in a fixed order: bot-author suppression, mention-only
// gating (group contexts only), then the allowlist. The transport supplies
// the transport-specific data (author bot flag, mention syntax).
type Gate struct {
	// ListenToBots permits messages whose author is a bot or service
	// account. Off by default.
	ListenToBots bool

	// MentionOnly suppresses group messages that do not reference the
	// transport's own identity. Direct messages are never gated.
	MentionOnly bool

	// Allow lists permitted sender identifiers. The wildcard "*" allows
	// every sender. An empty list denies all senders: the gate fails
	// closed rather than open.
	Allow []string

	// FoldCase matches allowlist entries case-insensitively, for
	// transports whose handles are case-insensitive (IRC nicks).
	FoldCase bool
}

// AllowBot reports whether a bot-authored message may pass.
func (g Gate) AllowBot() bool { return g.ListenToBots }

// GateMention reports whether a group message should be dropped for lack
// of a mention. mentioned is the transport's own mention check result.
func (g Gate) GateMention(chatTypeGroup, mentioned bool) bool {
	return g.MentionOnly && chatTypeGroup && !mentioned
}

// AllowSender reports whether sender passes the allowlist. An empty
// allowlist denies every sender.
func (g Gate) AllowSender(sender string) bool {
	for _, entry := range g.Allow {
		if entry == "*" {
			return true
		}
		if g.FoldCase {
			if strings.EqualFold(entry, sender) {
				return true
			}
		} else if entry == sender {
			return true
		}
	}
	return false
}
