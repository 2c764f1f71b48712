// Package chat defines the chat-platform operations the proposal tracker
// consumes. Handles returned by a Platform are opaque strings that the
// tracker persists and hands back unchanged.
package chat

import (
	"context"
	"errors"
	"time"

	"github.com/roach88/govpoll/internal/gov"
)

// MaxMessageLength is the platform's hard cap on one message, in runes.
const MaxMessageLength = 2000

// HistoryLimit bounds how many of a thread's most recent messages are read
// during result collection.
const HistoryLimit = 200

// ErrNotFound is returned when a thread, message or poll no longer exists.
var ErrNotFound = errors.New("chat resource not found")

// Poll describes a single-choice poll to attach to a thread.
type Poll struct {
	Question string
	Answers  []gov.Option
	Duration time.Duration
}

// Message is one entry of a thread's history.
type Message struct {
	ID         string
	AuthorID   string
	AuthorName string
	Bot        bool
	Content    string
	PostedAt   time.Time
}

// Platform is the chat collaborator used by the engine.
type Platform interface {
	// CreateThread opens a new discussion thread under the configured
	// channel and returns its handle.
	CreateThread(ctx context.Context, title string) (threadID string, err error)

	// PostMessage posts content into a thread.
	PostMessage(ctx context.Context, threadID, content string) error

	// CreatePoll attaches a poll to a thread and returns its handle.
	CreatePoll(ctx context.Context, threadID string, poll Poll) (pollID string, err error)

	// PollCounts reads the current per-option vote counts of a poll.
	// Options with no votes may be missing. Returns ErrNotFound when the
	// thread or poll is gone.
	PollCounts(ctx context.Context, threadID, pollID string) (gov.Tally, error)

	// History returns up to limit of the thread's most recent messages,
	// newest first. Returns ErrNotFound when the thread is gone.
	History(ctx context.Context, threadID string, limit int) ([]Message, error)
}
