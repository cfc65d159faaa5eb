package channel

import (
	"strings"
	"unicode/utf8"
)

// Split breaks text into chunks of at most limit bytes, preferring natural
// break points. A newline within the last half of the window wins, then a
// space, then a hard cut at the byte limit (never inside a multi-byte
// character). The boundary character stays in the emitted chunk, so the
// concatenation of all chunks reproduces text exactly.
func Split(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > limit {
		cut := splitPoint(rest, limit)
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// splitPoint picks where to cut the next chunk out of text, which is known
// to be longer than limit bytes.
func splitPoint(text string, limit int) int {
	window := text[:limit]

	// A break point in the first half would produce a pathologically short
	// chunk, so only accept newlines and spaces at or past the midpoint.
	if i := strings.LastIndexByte(window, '\n'); i >= limit/2 {
		return i + 1
	}
	if i := strings.LastIndexByte(window, ' '); i >= limit/2 {
		return i + 1
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		// Degenerate limit smaller than one rune; split anyway.
		cut = limit
	}
	return cut
}
