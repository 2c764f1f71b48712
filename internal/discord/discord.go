// Package discord implements chat.Platform on top of the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/roach88/govpoll/internal/chat"
	"github.com/roach88/govpoll/internal/gov"
)

const (
	// ThreadAutoArchiveMinutes archives idle proposal threads after a week.
	ThreadAutoArchiveMinutes = 10080

	// Discord accepts poll durations in whole hours, up to 32 days.
	minPollHours = 1
	maxPollHours = 768

	// ChannelMessages returns at most 100 messages per request.
	historyPageSize = 100
)

// session is the subset of *discordgo.Session the adapter uses.
type session interface {
	ThreadStartComplex(channelID string, data *discordgo.ThreadStart, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessage(channelID, messageID string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessages(channelID string, limit int, beforeID, afterID, aroundID string, options ...discordgo.RequestOption) ([]*discordgo.Message, error)
}

// Platform posts proposals into threads under one parent channel.
type Platform struct {
	s         session
	channelID string
	logger    *zap.Logger
}

var _ chat.Platform = (*Platform)(nil)

// New returns a Platform that creates threads under channelID.
func New(s *discordgo.Session, channelID string, logger *zap.Logger) *Platform {
	return newPlatform(s, channelID, logger)
}

func newPlatform(s session, channelID string, logger *zap.Logger) *Platform {
	return &Platform{s: s, channelID: channelID, logger: logger.Named("discord")}
}

// Connect creates a bot session and opens its gateway connection. The caller
// closes the returned session.
func Connect(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent

	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("open discord session: %w", err)
	}
	return s, nil
}

// CreateThread starts a public thread in the parent channel.
func (p *Platform) CreateThread(ctx context.Context, title string) (string, error) {
	ch, err := p.s.ThreadStartComplex(p.channelID, &discordgo.ThreadStart{
		Name:                title,
		AutoArchiveDuration: ThreadAutoArchiveMinutes,
		Type:                discordgo.ChannelTypeGuildPublicThread,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create thread: %w", mapError(err))
	}
	p.logger.Debug("thread created", zap.String("thread_id", ch.ID), zap.String("title", title))
	return ch.ID, nil
}

// PostMessage sends content into a thread.
func (p *Platform) PostMessage(ctx context.Context, threadID, content string) error {
	if _, err := p.s.ChannelMessageSend(threadID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("post message to %s: %w", threadID, mapError(err))
	}
	return nil
}

// CreatePoll sends a poll message into a thread. The returned handle is the
// poll message's ID.
func (p *Platform) CreatePoll(ctx context.Context, threadID string, poll chat.Poll) (string, error) {
	msg, err := p.s.ChannelMessageSendComplex(threadID, &discordgo.MessageSend{
		Poll: toPoll(poll),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("create poll in %s: %w", threadID, mapError(err))
	}
	return msg.ID, nil
}

// PollCounts fetches the poll message and maps its answer counts onto
// options by answer label.
func (p *Platform) PollCounts(ctx context.Context, threadID, pollID string) (gov.Tally, error) {
	msg, err := p.s.ChannelMessage(threadID, pollID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("read poll %s: %w", pollID, mapError(err))
	}
	if msg.Poll == nil {
		return nil, fmt.Errorf("read poll %s: message has no poll: %w", pollID, chat.ErrNotFound)
	}
	return tallyPoll(msg.Poll), nil
}

// History pages backwards through a thread until limit messages were read or
// the thread start was reached.
func (p *Platform) History(ctx context.Context, threadID string, limit int) ([]chat.Message, error) {
	out := make([]chat.Message, 0, limit)
	before := ""
	for len(out) < limit {
		n := min(historyPageSize, limit-len(out))
		page, err := p.s.ChannelMessages(threadID, n, before, "", "", discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("read history of %s: %w", threadID, mapError(err))
		}
		for _, m := range page {
			out = append(out, toMessage(m))
		}
		if len(page) < n {
			break
		}
		before = page[len(page)-1].ID
	}
	return out, nil
}

// PollHours converts a poll duration to Discord's whole-hour granularity,
// rounding up and clamping to the accepted range.
func PollHours(d time.Duration) int {
	hours := int((d + time.Hour - 1) / time.Hour)
	return max(minPollHours, min(maxPollHours, hours))
}

func toPoll(poll chat.Poll) *discordgo.Poll {
	answers := make([]discordgo.PollAnswer, 0, len(poll.Answers))
	for _, opt := range poll.Answers {
		answers = append(answers, discordgo.PollAnswer{
			Media: &discordgo.PollMedia{
				Text:  string(opt),
				Emoji: &discordgo.ComponentEmoji{Name: opt.Emoji()},
			},
		})
	}
	return &discordgo.Poll{
		Question:         discordgo.PollMedia{Text: poll.Question},
		Answers:          answers,
		AllowMultiselect: false,
		Duration:         PollHours(poll.Duration),
	}
}

func tallyPoll(poll *discordgo.Poll) gov.Tally {
	tally := gov.NewTally()
	if poll.Results == nil {
		return tally
	}

	labels := make(map[int]string, len(poll.Answers))
	for _, a := range poll.Answers {
		if a.Media != nil {
			labels[a.AnswerID] = a.Media.Text
		}
	}

	for _, c := range poll.Results.AnswerCounts {
		if c == nil {
			continue
		}
		opt, err := gov.ParseOption(labels[c.ID])
		if err != nil {
			continue
		}
		tally[opt] += c.Count
	}
	return tally
}

func toMessage(m *discordgo.Message) chat.Message {
	msg := chat.Message{
		ID:       m.ID,
		Content:  m.Content,
		PostedAt: m.Timestamp.UTC(),
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorName = m.Author.Username
		msg.Bot = m.Author.Bot
	}
	return msg
}

// mapError translates Discord's unknown-resource responses to
// chat.ErrNotFound.
func mapError(err error) error {
	var rest *discordgo.RESTError
	if !errors.As(err, &rest) {
		return err
	}
	if rest.Message != nil {
		switch rest.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownMessage:
			return fmt.Errorf("%w: %v", chat.ErrNotFound, err)
		}
	}
	if rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %v", chat.ErrNotFound, err)
	}
	return err
}
