package irc

import "encoding/base64"

// saslPlain builds the SASL PLAIN payload for an empty authorization
// identity: base64(NUL || nick || NUL || password).
func saslPlain(nick, password string) string {
	raw := make([]byte, 0, len(nick)+len(password)+2)
	raw = append(raw, 0)
	raw = append(raw, nick...)
	raw = append(raw, 0)
	raw = append(raw, password...)
	return base64.StdEncoding.EncodeToString(raw)
}
