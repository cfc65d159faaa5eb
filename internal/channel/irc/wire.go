// Package irc implements the IRC messaging channel over a raw TCP or TLS
// socket: registration with SASL PLAIN and nick-collision retry, RFC 1459
// line parsing, PING/PONG keepalive, and PRIVMSG delivery.
package irc

import "strings"

// message is one parsed protocol line.
type message struct {
	prefix  string
	command string
	params  []string
}

// parseLine parses a raw protocol line of the form
//
//	[:<prefix>] <command> <param>* [:<trailing>]
//
// The trailing parameter begins at the first " :" sequence and may contain
// further spaces. Empty tokens between params are discarded. An empty or
// CRLF-only line yields ok=false, not an error.
func parseLine(raw string) (message, bool) {
	raw = strings.TrimRight(raw, "\r\n")
	if raw == "" {
		return message{}, false
	}

	var m message
	if raw[0] == ':' {
		i := strings.IndexByte(raw, ' ')
		if i < 0 {
			return message{}, false
		}
		m.prefix = raw[1:i]
		raw = raw[i+1:]
	}

	var trailing string
	hasTrailing := false
	if i := strings.Index(raw, " :"); i >= 0 {
		trailing = raw[i+2:]
		hasTrailing = true
		raw = raw[:i]
	} else if raw != "" && raw[0] == ':' {
		// Trailing immediately after the prefix, with no middle params.
		trailing = raw[1:]
		hasTrailing = true
		raw = ""
	}

	for _, tok := range strings.Split(raw, " ") {
		if tok == "" {
			continue
		}
		if m.command == "" {
			m.command = tok
			continue
		}
		m.params = append(m.params, tok)
	}
	if m.command == "" {
		return message{}, false
	}
	if hasTrailing {
		m.params = append(m.params, trailing)
	}
	return m, true
}

// nickFromPrefix extracts the sender nickname from a message prefix: the
// portion up to the first '!', or the whole prefix when no '!' is present.
func nickFromPrefix(prefix string) string {
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

// channelTarget reports whether target names a channel rather than a user.
func channelTarget(target string) bool {
	return strings.HasPrefix(target, "#") || strings.HasPrefix(target, "&")
}
