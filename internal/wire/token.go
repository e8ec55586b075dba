package wire

import "strings"

// TokenDelimiter separates the speakable part of the assistant's reply
// from the machine-readable JSON the model appends after it. Everything
// from the delimiter on must never be shown or spoken.
const TokenDelimiter = "|||"

// SplitSpeakable splits accumulated assistant text at the delimiter.
// found reports whether the delimiter was present; meta is the raw text
// after it, trimmed. Callers apply this to the whole accumulated reply,
// not to single tokens, since the delimiter can arrive split across
// token boundaries.
func SplitSpeakable(text string) (speakable, meta string, found bool) {
	before, after, found := strings.Cut(text, TokenDelimiter)
	if !found {
		return text, "", false
	}
	return strings.TrimRight(before, " \n"), strings.TrimSpace(after), true
}
