package present

import (
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/govpoll/internal/chat"
)

// Ellipsis marks truncated text.
const Ellipsis = "..."

// Truncate cuts s to at most limit runes of the input. Cut text ends with
// Ellipsis, which counts toward the limit. The text itself is never
// rewritten, and a cut never separates a character from its combining
// marks.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= len(Ellipsis) {
		return string([]rune(Ellipsis)[:max(limit, 0)])
	}

	runes := []rune(s)
	cut := limit - len(Ellipsis)
	for cut > 0 && !norm.NFC.PropertiesString(string(runes[cut])).BoundaryBefore() {
		cut--
	}
	return string(runes[:cut]) + Ellipsis
}

// Fit caps a rendered message at the chat platform limit.
func Fit(s string) string {
	return Truncate(s, chat.MaxMessageLength)
}
