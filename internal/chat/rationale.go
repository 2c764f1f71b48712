package chat

import (
	"strings"

	"github.com/roach88/govpoll/internal/gov"
)

// RationalePrefix marks a thread message as a voting rationale.
const RationalePrefix = "RATIONAL:"

// ExtractRationale returns the rationale text carried by msg. Bot messages
// and messages that do not start with RationalePrefix carry none.
func ExtractRationale(msg Message) (string, bool) {
	if msg.Bot || !strings.HasPrefix(msg.Content, RationalePrefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(msg.Content, RationalePrefix)), true
}

// Rationales converts the rationale-bearing messages of a history into
// entries for gaid. Entries keep the history order, newest first.
func Rationales(gaid string, history []Message) []gov.Rationale {
	var out []gov.Rationale
	for _, msg := range history {
		text, ok := ExtractRationale(msg)
		if !ok {
			continue
		}
		out = append(out, gov.Rationale{
			GAID:       gaid,
			AuthorID:   msg.AuthorID,
			AuthorName: msg.AuthorName,
			Text:       text,
			PostedAt:   msg.PostedAt,
		})
	}
	return out
}
